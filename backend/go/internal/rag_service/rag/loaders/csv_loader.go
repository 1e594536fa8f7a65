package loaders

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"

	"github.com/google/uuid"
)

// CsvLoader turns each data row of a CSV file into a Document of "column: value" lines.
type CsvLoader struct{}

func NewCsvLoader() *CsvLoader {
	return &CsvLoader{}
}

func (l *CsvLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var documents []*schema.Document
	for row := 0; ; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var b strings.Builder
		for i, value := range record {
			name := ""
			if i < len(header) {
				name = strings.TrimSpace(header[i])
			}
			if name == "" {
				name = "column_" + strconv.Itoa(i)
			}
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(value)
		}
		documents = append(documents, &schema.Document{
			ID:   uuid.New().String(),
			Text: b.String(),
			Metadata: map[string]interface{}{
				schema.MetadataKeyRow: row,
			},
		})
	}
	return documents, nil
}

var _ interfaces.Loader = (*CsvLoader)(nil)
