package api

import (
	"net/http"

	"agentic_rag/backend/go/internal/protocol"
	"agentic_rag/backend/go/internal/rag_service/rag/storages/vectorstore"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxRequestBytes caps one request envelope.
const maxRequestBytes = 1 << 20

// StatsFunc reports the vector store summary.
type StatsFunc func() vectorstore.Stats

// API provides the HTTP handlers of the agent server.
type API struct {
	dispatcher *protocol.Dispatcher
	stats      StatsFunc
	logger     *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(d *protocol.Dispatcher, stats StatsFunc, log *logger.Logger) *API {
	if log == nil {
		log = logger.Discard()
	}
	return &API{dispatcher: d, stats: stats, logger: log}
}

// IngestHandler handles POST /api/v1/agent/ingest.
func (a *API) IngestHandler(c *gin.Context) {
	a.serve(c, protocol.TypeIngestionRequest)
}

// AnswerHandler handles POST /api/v1/agent/answer.
func (a *API) AnswerHandler(c *gin.Context) {
	a.serve(c, protocol.TypeQARequest)
}

func (a *API) serve(c *gin.Context, want protocol.MessageType) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)
	raw, err := c.GetRawData()
	if err != nil {
		a.fail(c, ragerr.Wrap(err, ragerr.CodeProtocolTransport, "reading request body"))
		return
	}
	out, err := serveEnvelope(c.Request.Context(), a.dispatcher, want, raw)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

func (a *API) fail(c *gin.Context, err error) {
	a.logger.WithError(err).Warn("Invalid request payload")
	c.JSON(ragerr.HTTPStatus(err), gin.H{"error": err.Error(), "code": ragerr.CodeOf(err)})
}

// StatsHandler handles GET /api/v1/rag/stats.
func (a *API) StatsHandler(c *gin.Context) {
	if a.stats == nil {
		c.JSON(http.StatusOK, vectorstore.Stats{})
		return
	}
	c.JSON(http.StatusOK, a.stats())
}

// HealthHandler handles GET /healthz.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
