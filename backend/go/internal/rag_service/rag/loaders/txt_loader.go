package loaders

import (
	"context"
	"os"
	"unicode/utf8"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/google/uuid"
)

// TxtLoader reads plain text and Markdown files as a single Document.
type TxtLoader struct{}

// NewTxtLoader creates a new TxtLoader.
func NewTxtLoader() *TxtLoader {
	return &TxtLoader{}
}

// Load rejects files that are not valid UTF-8, since those are binaries with a text extension.
func (l *TxtLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, ragerr.New(ragerr.CodeEmptyOrCorruptDocument, "file is not valid UTF-8 text", ragerr.FieldPath(path))
	}

	doc := &schema.Document{
		ID:       uuid.New().String(),
		Text:     string(content),
		Metadata: map[string]interface{}{},
	}
	return []*schema.Document{doc}, nil
}

var _ interfaces.Loader = (*TxtLoader)(nil)
