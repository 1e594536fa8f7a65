package loaders

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"

	"github.com/google/uuid"
)

// PptxLoader reads the text frames of each slide of a .pptx package.
// It reads the OOXML parts directly so no office license is needed.
type PptxLoader struct{}

func NewPptxLoader() *PptxLoader {
	return &PptxLoader{}
}

// Load returns one Document per slide with text, in slide order.
func (l *PptxLoader) Load(ctx context.Context, p string) ([]*schema.Document, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	type slidePart struct {
		number int
		file   *zip.File
	}
	var slides []slidePart
	for _, f := range zr.File {
		dir, name := path.Split(f.Name)
		if dir != "ppt/slides/" || !strings.HasPrefix(name, "slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "slide"), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slidePart{number: n, file: f})
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("no slides found in %s", p)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var documents []*schema.Document
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := slideText(s.file)
		if err != nil {
			return nil, fmt.Errorf("reading slide %d: %w", s.number, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		documents = append(documents, &schema.Document{
			ID:   uuid.New().String(),
			Text: text,
			Metadata: map[string]interface{}{
				schema.MetadataKeySlide: s.number,
			},
		})
	}
	return documents, nil
}

// slideText collects <a:t> runs, one line per <a:p> paragraph.
func slideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

var _ interfaces.Loader = (*PptxLoader)(nil)
