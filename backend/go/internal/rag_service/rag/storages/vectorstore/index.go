package vectorstore

import (
	"context"
	"sort"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"
)

// Entry is one stored chunk with its embedding. Seq is the insertion order
// and breaks distance ties.
type Entry struct {
	Seq    int64
	Chunk  *schema.Chunk
	Vector []float32
}

// Index is the persistence and nearest-neighbour backend behind a Store.
// Append is all-or-nothing. Implementations must allow Search and Len to run
// concurrently with Append.
type Index interface {
	Backend() string
	Dimension() int
	Len() int
	Append(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, query []float32, k int) ([]*schema.ScoredChunk, error)
	Close() error
}

// squaredL2 assumes len(a) == len(b).
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// nearest ranks entries by distance to query, ties by Seq, and keeps the best k.
func nearest(entries []Entry, query []float32, k int) []*schema.ScoredChunk {
	type hit struct {
		entry    *Entry
		distance float32
	}
	hits := make([]hit, len(entries))
	for i := range entries {
		hits[i] = hit{entry: &entries[i], distance: squaredL2(entries[i].Vector, query)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].entry.Seq < hits[j].entry.Seq
	})
	if k < len(hits) {
		hits = hits[:k]
	}

	out := make([]*schema.ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = &schema.ScoredChunk{Chunk: h.entry.Chunk, Distance: h.distance}
	}
	return out
}
