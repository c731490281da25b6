package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/sirupsen/logrus"
)

// ErrorLogger logs only requests that recorded gin errors.
func ErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}
