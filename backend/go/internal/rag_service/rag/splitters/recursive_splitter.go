package splitters

import (
	"context"
	"fmt"
	"strings"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"

	"github.com/google/uuid"
)

// DefaultSeparators are tried in order, coarsest first. The empty separator
// splits at fixed character positions and always terminates the recursion.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", " ", ""}

// RecursiveCharacterSplitter splits text on the coarsest separator that yields
// small enough pieces, then packs pieces greedily into chunks of at most
// chunkSize characters. Consecutive chunks share exactly chunkOverlap
// characters: the tail of one chunk is repeated at the head of the next.
//
// Sizes are counted in Unicode code points.
type RecursiveCharacterSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   [][]rune
}

// NewRecursiveCharacterSplitter requires chunkSize > 0 and 0 <= chunkOverlap < chunkSize.
// Without explicit separators DefaultSeparators is used.
func NewRecursiveCharacterSplitter(chunkSize, chunkOverlap int, separators ...string) (*RecursiveCharacterSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	seps := make([][]rune, 0, len(separators)+1)
	for _, sep := range separators {
		seps = append(seps, []rune(sep))
	}
	if len(seps[len(seps)-1]) != 0 {
		seps = append(seps, nil)
	}
	return &RecursiveCharacterSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   seps,
	}, nil
}

// Split chunks every document. Documents with no non-whitespace text contribute nothing.
// Each chunk inherits its document's metadata plus chunk_index and start_index.
func (s *RecursiveCharacterSplitter) Split(ctx context.Context, docs []*schema.Document) ([]*schema.Chunk, error) {
	chunks := make([]*schema.Chunk, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc == nil || isBlank(doc.Text) {
			continue
		}

		text := []rune(doc.Text)
		sourceID := doc.Source()
		if sourceID == "" {
			sourceID = doc.ID
		}
		for i, sp := range s.spans(text) {
			meta := schema.CopyMetadata(doc.Metadata)
			meta[schema.MetadataKeyChunkIndex] = i
			meta[schema.MetadataKeyStartIndex] = sp.start
			chunks = append(chunks, &schema.Chunk{
				ID:       uuid.NewString(),
				Text:     string(text[sp.start:sp.end]),
				SourceID: sourceID,
				Metadata: meta,
			})
		}
	}
	return chunks, nil
}

// SplitText returns the chunk texts for a single string.
func (s *RecursiveCharacterSplitter) SplitText(text string) []string {
	runes := []rune(text)
	spans := s.spans(runes)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = string(runes[sp.start:sp.end])
	}
	return out
}

type span struct{ start, end int }

func (s *RecursiveCharacterSplitter) spans(text []rune) []span {
	n := len(text)
	if n == 0 {
		return nil
	}
	if n <= s.chunkSize {
		return []span{{0, n}}
	}

	// Pieces leave room for the overlap prefix, so every chunk after the
	// first can hold its overlap plus at least one new piece.
	pieces := s.pieces(text, 0, n, 0, s.chunkSize-s.chunkOverlap)

	var out []span
	start, i := 0, 0
	for i < len(pieces) {
		end := start
		for i < len(pieces) && pieces[i].end-start <= s.chunkSize {
			end = pieces[i].end
			i++
		}
		out = append(out, span{start, end})
		if i == len(pieces) {
			break
		}
		start = end - s.chunkOverlap
	}
	return out
}

// pieces tiles text[start:end) with spans no longer than max, cutting on the
// first separator from level onward that occurs in the range.
func (s *RecursiveCharacterSplitter) pieces(text []rune, start, end, level, max int) []span {
	if end-start <= max {
		return []span{{start, end}}
	}
	for lvl := level; lvl < len(s.separators); lvl++ {
		sep := s.separators[lvl]
		if len(sep) == 0 {
			out := make([]span, 0, (end-start)/max+1)
			for p := start; p < end; p += max {
				out = append(out, span{p, minInt(p+max, end)})
			}
			return out
		}

		cuts := cutAfter(text, start, end, sep)
		if len(cuts) < 2 {
			continue
		}
		out := make([]span, 0, len(cuts))
		for _, c := range cuts {
			if c.end-c.start <= max {
				out = append(out, c)
				continue
			}
			out = append(out, s.pieces(text, c.start, c.end, lvl+1, max)...)
		}
		return out
	}
	return []span{{start, end}}
}

// cutAfter splits text[start:end) after each occurrence of sep.
// The separator stays attached to the preceding piece so the pieces tile the range.
func cutAfter(text []rune, start, end int, sep []rune) []span {
	var out []span
	prev := start
	for i := start; i+len(sep) <= end; {
		if hasPrefixAt(text, i, sep) {
			out = append(out, span{prev, i + len(sep)})
			i += len(sep)
			prev = i
			continue
		}
		i++
	}
	if prev < end {
		out = append(out, span{prev, end})
	}
	return out
}

func hasPrefixAt(text []rune, at int, sep []rune) bool {
	for j, r := range sep {
		if text[at+j] != r {
			return false
		}
	}
	return true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var _ interfaces.Splitter = (*RecursiveCharacterSplitter)(nil)
