package pipeline

import (
	"context"
	"fmt"
	"strings"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"
)

// DefaultTopK is the number of chunks retrieved when the caller does not say.
const DefaultTopK = 5

// RetrievalQA answers questions from the chunks nearest to them.
type RetrievalQA struct {
	store    interfaces.VectorStore
	answerer interfaces.Answerer
	topK     int
	log      *logger.Logger
}

// NewRetrievalQA creates a RetrievalQA. topK <= 0 means DefaultTopK.
func NewRetrievalQA(store interfaces.VectorStore, answerer interfaces.Answerer, topK int, log *logger.Logger) *RetrievalQA {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RetrievalQA{store: store, answerer: answerer, topK: topK, log: log}
}

// Answer retrieves k chunks (the configured default when k <= 0), asks the
// answerer and returns the answer with the chunk texts it was given.
// It never returns an error or panics.
func (q *RetrievalQA) Answer(ctx context.Context, query string, k int) (res QAResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = qaFailure(ragerr.New(ragerr.CodeInternal, fmt.Sprintf("panic while answering: %v", rec)))
		}
	}()

	if k <= 0 {
		k = q.topK
	}
	if strings.TrimSpace(query) == "" {
		return qaFailure(ragerr.New(ragerr.CodeRetrieval, "query is empty"))
	}
	q.log.Info(fmt.Sprintf("Starting retrieval for query: '%s'", query))

	hits, err := q.store.Search(ctx, query, k)
	if err != nil {
		q.log.WithError(err).Error(fmt.Sprintf("Failed to query vector store: %v", err))
		return qaFailure(err)
	}
	q.log.Info(fmt.Sprintf("Retrieved %d chunks from vector store", len(hits)))

	answer, err := q.answerer.Generate(ctx, BuildPrompt(query, hits))
	if err != nil {
		q.log.WithError(err).Error(fmt.Sprintf("LLM failed to generate answer: %v", err))
		return qaFailure(err)
	}

	sources := make([]string, len(hits))
	for i, h := range hits {
		sources[i] = h.Chunk.Text
	}
	q.log.Info("Successfully generated answer from LLM.")
	return QAResult{Status: StatusSuccess, Result: answer, SourceChunks: sources}
}

func qaFailure(err error) QAResult {
	return QAResult{
		Status:       StatusFailure,
		Result:       fmt.Sprintf("An error occurred: %v", err),
		SourceChunks: []string{},
		Err:          err,
	}
}
