package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pricing_backend/utils"
)

// RequestContextMiddleware attaches the correlation id and the caller name
// to the request context. A missing x-correlation-id gets a fresh uuid.
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if cid := strings.TrimSpace(c.GetHeader("x-correlation-id")); cid != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, cid)
		}
		ctx, cid := utils.EnsureCorrelationId(ctx)
		if by := strings.TrimSpace(c.GetHeader("x-requested-by")); by != "" {
			ctx = utils.SetRequestedByInContext(ctx, by)
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
