package splitters

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSplitter(t *testing.T, size, overlap int) *RecursiveCharacterSplitter {
	t.Helper()
	s, err := NewRecursiveCharacterSplitter(size, overlap)
	require.NoError(t, err)
	return s
}

// reconstruct undoes the overlap between consecutive chunks.
func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func sampleText(seed int64, paragraphs int) string {
	words := []string{"vector", "store", "chunk", "retrieval", "answer", "embedding", "índice", "数据", "context", "query"}
	rng := rand.New(rand.NewSource(seed))
	var b strings.Builder
	for p := 0; p < paragraphs; p++ {
		if p > 0 {
			b.WriteString("\n\n")
		}
		sentences := 2 + rng.Intn(6)
		for s := 0; s < sentences; s++ {
			n := 3 + rng.Intn(25)
			for w := 0; w < n; w++ {
				if w > 0 {
					b.WriteString(" ")
				}
				b.WriteString(words[rng.Intn(len(words))])
			}
			b.WriteString(". ")
			if rng.Intn(4) == 0 {
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func TestNewRecursiveCharacterSplitterValidates(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap above size", 10, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecursiveCharacterSplitter(tt.size, tt.overlap)
			assert.Error(t, err)
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s := newSplitter(t, 100, 10)

	chunks, err := s.Split(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, chunks)
	assert.Empty(t, chunks)

	chunks, err = s.Split(context.Background(), []*schema.Document{{Text: ""}, {Text: " \n\t "}})
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Empty(t, s.SplitText(""))
}

func TestSplitShortDocumentYieldsOneChunk(t *testing.T) {
	s := newSplitter(t, 1000, 200)
	doc := &schema.Document{
		ID:   "doc-1",
		Text: "A short note about vector stores.",
		Metadata: map[string]interface{}{
			schema.MetadataKeySource:   "/tmp/note.txt",
			schema.MetadataKeyFileName: "note.txt",
		},
	}

	chunks, err := s.Split(context.Background(), []*schema.Document{doc})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, doc.Text, c.Text)
	assert.Equal(t, "/tmp/note.txt", c.SourceID)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "note.txt", c.Metadata[schema.MetadataKeyFileName])
	assert.Equal(t, 0, c.Metadata[schema.MetadataKeyChunkIndex])
	assert.Equal(t, 0, c.Metadata[schema.MetadataKeyStartIndex])

	_, leaked := doc.Metadata[schema.MetadataKeyChunkIndex]
	assert.False(t, leaked, "source metadata must not be modified")
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60)

	chunks := newSplitter(t, 100, 0).SplitText(text)
	assert.Equal(t, []string{strings.Repeat("a", 60) + "\n\n", strings.Repeat("b", 60)}, chunks)

	chunks = newSplitter(t, 100, 10).SplitText(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 8)+"\n\n"+strings.Repeat("b", 60), chunks[1])
}

func TestSplitFallsBackToFixedWindows(t *testing.T) {
	text := strings.Repeat("x", 250)

	chunks := newSplitter(t, 100, 20).SplitText(text)

	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		lengths[i] = len(c)
	}
	assert.Equal(t, []int{80, 100, 100, 30}, lengths)
	assert.Equal(t, text, reconstruct(chunks, 20))
}

func TestSplitCountsCodePoints(t *testing.T) {
	text := strings.Repeat("é", 30)
	chunks := newSplitter(t, 10, 2).SplitText(text)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 10)
	}
	assert.Equal(t, text, reconstruct(chunks, 2))
}

func TestSplitCoverageAndOverlap(t *testing.T) {
	configs := []struct{ size, overlap int }{
		{1000, 200},
		{200, 50},
		{100, 20},
		{50, 0},
		{37, 36},
		{10, 9},
	}
	for seed := int64(1); seed <= 5; seed++ {
		text := sampleText(seed, 8)
		for _, cfg := range configs {
			chunks := newSplitter(t, cfg.size, cfg.overlap).SplitText(text)
			require.NotEmpty(t, chunks)

			assert.Equal(t, text, reconstruct(chunks, cfg.overlap), "seed %d size %d overlap %d", seed, cfg.size, cfg.overlap)
			for i, c := range chunks {
				r := []rune(c)
				assert.LessOrEqual(t, len(r), cfg.size)
				if i == 0 {
					continue
				}
				prev := []rune(chunks[i-1])
				assert.Equal(t, string(prev[len(prev)-cfg.overlap:]), string(r[:cfg.overlap]),
					"seed %d size %d overlap %d chunk %d", seed, cfg.size, cfg.overlap, i)
			}
		}
	}
}

func TestSplitAssignsRunningIndexAndOffsets(t *testing.T) {
	s := newSplitter(t, 100, 20)
	text := sampleText(42, 3)
	docs := []*schema.Document{
		{ID: "a", Text: text, Metadata: map[string]interface{}{schema.MetadataKeySource: "/docs/a.txt"}},
		{ID: "b", Text: "second document"},
	}

	chunks, err := s.Split(context.Background(), docs)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	runes := []rune(text)
	for i, c := range chunks[:len(chunks)-1] {
		assert.Equal(t, "/docs/a.txt", c.SourceID)
		assert.Equal(t, i, c.Metadata[schema.MetadataKeyChunkIndex])
		start := c.Metadata[schema.MetadataKeyStartIndex].(int)
		assert.Equal(t, c.Text, string(runes[start:start+len([]rune(c.Text))]))
	}

	last := chunks[len(chunks)-1]
	assert.Equal(t, "b", last.SourceID, "falls back to the document id without a source")
	assert.Equal(t, 0, last.Metadata[schema.MetadataKeyChunkIndex])
}

func TestSplitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSplitter(t, 100, 0).Split(ctx, []*schema.Document{{Text: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThreeParagraphDocumentFitsInOneChunk(t *testing.T) {
	text := "Go is a statically typed language.\n\nIt has goroutines and channels.\n\nIts toolchain builds fast binaries."
	chunks := newSplitter(t, 1000, 200).SplitText(text)
	assert.Equal(t, []string{text}, chunks)
}
