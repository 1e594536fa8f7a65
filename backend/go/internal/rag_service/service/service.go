package service

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/protocol"
	"agentic_rag/backend/go/internal/rag_service/models"
	"agentic_rag/backend/go/internal/rag_service/rag/pipeline"
	"agentic_rag/backend/go/internal/rag_service/rag/storages/vectorstore"
	"agentic_rag/backend/go/pkg/logger"

	"gorm.io/datatypes"
)

// Ledger records every ingestion attempt.
type Ledger interface {
	RecordIngestion(ctx context.Context, rec *models.IngestionRecord) error
}

// StatsSource reports the size of the vector store.
type StatsSource interface {
	Stats() vectorstore.Stats
}

// Ingester and Answerer are the two pipeline operations the agents serve.
type Ingester interface {
	Ingest(ctx context.Context, ref string) pipeline.IngestionResult
}

type Answerer interface {
	Answer(ctx context.Context, query string, k int) pipeline.QAResult
}

// Service binds the ingestion and QA pipelines to protocol requests.
type Service struct {
	ingestion Ingester
	qa        Answerer
	stats     StatsSource
	ledger    Ledger
	log       *logger.Logger
}

type Option func(*Service)

// WithLedger enables the ingestion ledger.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// New creates a Service. ingestion and qa share one vector store.
func New(ingestion Ingester, qa Answerer, stats StatsSource, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Discard()
	}
	s := &Service{ingestion: ingestion, qa: qa, stats: stats, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register installs the request handlers on d.
func (s *Service) Register(d *protocol.Dispatcher) {
	d.Handle(protocol.TypeIngestionRequest, s.HandleIngestion)
	d.Handle(protocol.TypeQARequest, s.HandleQuestion)
}

// Stats returns the current vector store summary.
func (s *Service) Stats() vectorstore.Stats {
	if s.stats == nil {
		return vectorstore.Stats{}
	}
	return s.stats.Stats()
}

// HandleIngestion serves INGESTION_REQUEST.
func (s *Service) HandleIngestion(ctx context.Context, req protocol.Message) protocol.Payload {
	p := req.Payload.(protocol.IngestionRequestPayload)
	log := s.log.WithTraceID(req.TraceID)
	log.Info(fmt.Sprintf("[Tool: %s] Processing %s", protocol.ToolIngest, p.FilePath))

	res := s.ingestion.Ingest(ctx, p.FilePath)
	if res.OK() {
		log.Info(res.Message)
	} else {
		log.WithError(res.Err).Warn(fmt.Sprintf("Ingestion of %s failed: %s", p.FilePath, res.Code()))
	}
	s.record(ctx, log, req.TraceID, p.FilePath, res)

	out := protocol.IngestionResponsePayload{Status: string(res.Status), Message: res.Message}
	if res.OK() {
		out.ChunksCreated = res.ChunksCreated
	}
	return out
}

// HandleQuestion serves QA_REQUEST.
func (s *Service) HandleQuestion(ctx context.Context, req protocol.Message) protocol.Payload {
	p := req.Payload.(protocol.QARequestPayload)
	log := s.log.WithTraceID(req.TraceID)
	log.Info(fmt.Sprintf("[Tool: %s] Answering '%s'", protocol.ToolAnswer, p.Query))

	res := s.qa.Answer(ctx, p.Query, p.K)
	if !res.OK() {
		log.WithError(res.Err).Warn(fmt.Sprintf("Answering failed: %s", res.Code()))
	}
	sources := res.SourceChunks
	if sources == nil {
		sources = []string{}
	}
	return protocol.QAResponsePayload{Status: string(res.Status), Result: res.Result, SourceChunks: sources}
}

// record writes the ledger row. A ledger failure never changes the response.
func (s *Service) record(ctx context.Context, log *logger.Logger, traceID, ref string, res pipeline.IngestionResult) {
	if s.ledger == nil {
		return
	}
	rec := &models.IngestionRecord{
		TraceID:       traceID,
		Source:        ref,
		Status:        string(res.Status),
		ChunksCreated: res.ChunksCreated,
		ErrorCode:     string(res.Code()),
		Message:       res.Message,
	}
	if len(res.Provenance) > 0 {
		rec.Provenance = datatypes.JSONMap(res.Provenance)
	}
	if err := s.ledger.RecordIngestion(context.WithoutCancel(ctx), rec); err != nil {
		log.WithError(err).Warn("Could not write ingestion ledger")
	}
}
