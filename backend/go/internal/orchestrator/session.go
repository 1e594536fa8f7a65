// Package orchestrator drives the two-phase user action of the UI: index a
// document, then ask a question about it under the same trace.
package orchestrator

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/protocol"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"
)

// Apology is shown to the user for any failed action.
const Apology = "Sorry, I couldn't process that request. Please try again."

// Outcome is the result of one user action.
type Outcome struct {
	TraceID   string
	Ingestion protocol.IngestionResponsePayload
	// Answer is zero when ingestion did not succeed.
	Answer protocol.QAResponsePayload
	Asked  bool
}

// OK reports whether every step of the action succeeded.
func (o Outcome) OK() bool {
	if o.Ingestion.Status != protocol.StatusSuccess {
		return false
	}
	return !o.Asked || o.Answer.Status == protocol.StatusSuccess
}

// Reply is the text shown to the user.
func (o Outcome) Reply() string {
	if !o.OK() {
		return Apology
	}
	if o.Asked {
		return o.Answer.Result
	}
	return o.Ingestion.Message
}

// Session talks to the agents through one protocol client.
type Session struct {
	client *protocol.Client
	k      int
	log    *logger.Logger
}

type Option func(*Session)

// WithTopK asks for k source chunks per question instead of the server default.
func WithTopK(k int) Option {
	return func(s *Session) { s.k = k }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Session) { s.log = log }
}

func NewSession(client *protocol.Client, opts ...Option) *Session {
	s := &Session{client: client, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest indexes ref under a fresh trace.
func (s *Session) Ingest(ctx context.Context, ref string) (Outcome, error) {
	out := Outcome{TraceID: protocol.NewTraceID()}
	ing, err := s.client.Ingest(ctx, out.TraceID, ref)
	if err != nil {
		return out, err
	}
	out.Ingestion = ing
	return out, nil
}

// Ask sends a question under a fresh trace, against whatever is already indexed.
func (s *Session) Ask(ctx context.Context, query string) (Outcome, error) {
	out := Outcome{
		TraceID:   protocol.NewTraceID(),
		Ingestion: protocol.IngestionResponsePayload{Status: protocol.StatusSuccess},
		Asked:     true,
	}
	qa, err := s.client.Ask(ctx, out.TraceID, query, s.k)
	if err != nil {
		return out, err
	}
	out.Answer = qa
	return out, nil
}

// IngestAndAsk ingests ref and, only once that ingestion reports success,
// asks query under the same trace id.
func (s *Session) IngestAndAsk(ctx context.Context, ref, query string) (Outcome, error) {
	out, err := s.Ingest(ctx, ref)
	log := s.log.WithTraceID(out.TraceID)
	if err != nil {
		log.WithError(err).Warn(fmt.Sprintf("Ingestion of %s failed: %s", ref, ragerr.CodeOf(err)))
		return out, err
	}
	if out.Ingestion.Status != protocol.StatusSuccess {
		log.Warn(fmt.Sprintf("Not asking, ingestion of %s reported: %s", ref, out.Ingestion.Message))
		return out, nil
	}
	log.Info(out.Ingestion.Message)

	out.Asked = true
	qa, err := s.client.Ask(ctx, out.TraceID, query, s.k)
	if err != nil {
		log.WithError(err).Warn(fmt.Sprintf("Question failed: %s", ragerr.CodeOf(err)))
		return out, err
	}
	out.Answer = qa
	return out, nil
}
