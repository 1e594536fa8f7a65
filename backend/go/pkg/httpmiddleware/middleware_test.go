package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agentic_rag/backend/go/pkg/circuitbreaker"
	"agentic_rag/backend/go/pkg/logger"
	"agentic_rag/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(ratelimiter.NewTokenBucket(0.001, 2)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/").Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/").Code)
}

func TestUnlimitedNeverRejects(t *testing.T) {
	r := gin.New()
	limiter, err := ratelimiter.FromConfig(ratelimiter.Config{Enabled: false, Rate: 1, Capacity: 1})
	require.NoError(t, err)
	r.Use(RateLimit(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/").Code)
	}
}

func TestCircuitBreak(t *testing.T) {
	r := gin.New()
	r.Use(CircuitBreak(circuitbreaker.New(2, 1, time.Minute)), RequestLogger(logger.Discard()))
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusInternalServerError, serve(r, "/fail").Code)
	}
	w := serve(r, "/fail")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Circuit Breaker is open")
}
