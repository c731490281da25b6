package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pricing_backend/utils"
	"github.com/stretchr/testify/assert"
)

func TestRequestContextMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestContextMiddleware())

	var gotCid, gotBy string
	r.GET("/ping", func(c *gin.Context) {
		gotCid, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		gotBy, _ = utils.GetRequestedByFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("x-correlation-id", "cid-1")
	req.Header.Set("x-requested-by", "ops")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "cid-1", gotCid)
	assert.Equal(t, "ops", gotBy)
	assert.Equal(t, "cid-1", w.Header().Get("x-correlation-id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, gotCid)
	assert.NotEqual(t, "cid-1", gotCid)
	assert.Equal(t, gotCid, w.Header().Get("x-correlation-id"))
}
