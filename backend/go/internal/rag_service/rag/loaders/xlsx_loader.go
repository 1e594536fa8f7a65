package loaders

import (
	"context"
	"strings"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// XlsxLoader implements the Loader interface for reading Excel (.xlsx) files.
type XlsxLoader struct{}

// NewXlsxLoader creates a new XlsxLoader.
func NewXlsxLoader() *XlsxLoader {
	return &XlsxLoader{}
}

// Load renders each non-empty sheet as a Markdown table and returns a Document per sheet.
func (l *XlsxLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var documents []*schema.Document
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			continue
		}

		width := 0
		for _, row := range rows {
			if len(row) > width {
				width = len(row)
			}
		}
		if width == 0 {
			continue
		}

		var md strings.Builder
		writeRow(&md, rows[0], width)
		md.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
		for _, row := range rows[1:] {
			writeRow(&md, row, width)
		}

		documents = append(documents, &schema.Document{
			ID:   uuid.New().String(),
			Text: md.String(),
			Metadata: map[string]interface{}{
				schema.MetadataKeySheet: sheetName,
			},
		})
	}
	return documents, nil
}

// writeRow pads short rows so every table line has the same number of cells.
func writeRow(md *strings.Builder, row []string, width int) {
	cells := make([]string, width)
	copy(cells, row)
	md.WriteString("| " + strings.Join(cells, " | ") + " |\n")
}

var _ interfaces.Loader = (*XlsxLoader)(nil)
