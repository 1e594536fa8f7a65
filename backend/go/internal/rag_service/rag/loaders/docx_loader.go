package loaders

import (
	"context"
	"strings"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"

	"github.com/google/uuid"
	"github.com/unidoc/unioffice/v2/common/license"
	"github.com/unidoc/unioffice/v2/document"
)

// SetOfficeLicense 设置 unioffice 的计量许可证，未设置时 DocxLoader 打开文件会失败。
func SetOfficeLicense(key string) error {
	if key == "" {
		return nil
	}
	return license.SetMeteredKey(key)
}

// DocxLoader 实现了用于读取 Word (.docx) 文件的 Loader 接口。
type DocxLoader struct{}

// NewDocxLoader 创建一个新的 DocxLoader。
func NewDocxLoader() *DocxLoader {
	return &DocxLoader{}
}

// Load 读取 .docx 文件的所有段落和表格，返回一个 Document。
func (l *DocxLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	doc, err := document.Open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	var b strings.Builder
	for _, p := range doc.Paragraphs() {
		writeParagraph(&b, p)
	}

	// 表格逐行输出，单元格之间用 " | " 分隔
	for _, t := range doc.Tables() {
		for _, row := range t.Rows() {
			cells := row.Cells()
			parts := make([]string, 0, len(cells))
			for _, cell := range cells {
				var cb strings.Builder
				for _, p := range cell.Paragraphs() {
					for _, r := range p.Runs() {
						cb.WriteString(r.Text())
					}
				}
				parts = append(parts, strings.TrimSpace(cb.String()))
			}
			b.WriteString(strings.Join(parts, " | "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return []*schema.Document{{
		ID:       uuid.New().String(),
		Text:     b.String(),
		Metadata: map[string]interface{}{},
	}}, nil
}

func writeParagraph(b *strings.Builder, p document.Paragraph) {
	for _, r := range p.Runs() {
		b.WriteString(r.Text())
	}
	b.WriteString("\n")
}

// 编译时检查，确保 DocxLoader 实现了 Loader 接口
var _ interfaces.Loader = (*DocxLoader)(nil)
