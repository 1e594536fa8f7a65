package api

import (
	"strings"

	"agentic_rag/backend/go/internal/protocol"
	"agentic_rag/backend/go/pkg/circuitbreaker"
	"agentic_rag/backend/go/pkg/httpmiddleware"
	"agentic_rag/backend/go/pkg/logger"
	"agentic_rag/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1"

// RouterOptions configures the HTTP entry point.
type RouterOptions struct {
	Limiter ratelimiter.RateLimiter
	// Breaker, when set, sheds load after repeated server errors.
	Breaker *circuitbreaker.Breaker
	Log     *logger.Logger
}

// NewRouter registers all the routes of the agent server.
func NewRouter(api *API, opts RouterOptions) *gin.Engine {
	if opts.Limiter == nil {
		opts.Limiter = ratelimiter.Unlimited{}
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}

	router := gin.New()
	router.Use(gin.Recovery(), httpmiddleware.RequestLogger(opts.Log))
	router.GET("/healthz", api.HealthHandler)

	v1 := router.Group(apiPrefix)
	v1.Use(httpmiddleware.RateLimit(opts.Limiter))
	if opts.Breaker != nil {
		v1.Use(httpmiddleware.CircuitBreak(opts.Breaker))
	}
	{
		v1.POST(strings.TrimPrefix(protocol.PathIngest, apiPrefix), api.IngestHandler)
		v1.POST(strings.TrimPrefix(protocol.PathAnswer, apiPrefix), api.AnswerHandler)
		v1.GET("/rag/stats", api.StatsHandler)
	}
	return router
}
