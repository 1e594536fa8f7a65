package pipeline

import (
	"strings"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"
)

// PromptTemplate instructs the model to answer from the retrieved context only.
const PromptTemplate = "Use the context below to answer the question. If you don't know the answer from the context, just say you don't know.\n" +
	"Context: {context}\n" +
	"Question: {question}\n" +
	"Helpful Answer:"

// BuildPrompt fills PromptTemplate. Chunk texts are joined with a blank line
// in retrieval order.
func BuildPrompt(query string, hits []*schema.ScoredChunk) string {
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Chunk.Text)
	}
	// A single pass, so braces inside the context or question are left alone.
	return strings.NewReplacer(
		"{context}", strings.Join(texts, "\n\n"),
		"{question}", query,
	).Replace(PromptTemplate)
}
