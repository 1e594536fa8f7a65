package vectorstore

import (
	"context"
	"fmt"
	"os"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"golang.org/x/sync/errgroup"
)

// Options tune how a Store calls the embedder.
type Options struct {
	// BatchSize is the number of texts per EmbedBatch call.
	BatchSize int
	// Concurrency is the number of batches embedded in parallel.
	Concurrency int
	Log         *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	return o
}

// Stats is a point-in-time summary of a Store.
type Stats struct {
	Backend   string `json:"backend"`
	Entries   int    `json:"entries"`
	Dimension int    `json:"dimension"`
}

// Store is the vector store: it embeds chunks and holds them in an Index.
// Writes to the index are serialized. Search and Len may run concurrently with Add and
// only ever observe whole batches.
type Store struct {
	index    Index
	embedder interfaces.Embedder
	opts     Options
	log      *logger.Logger
}

// OpenOrCreate opens the local store in dir, creating it if dir is missing or
// empty. A new store is seeded with a placeholder entry, which fixes the
// vector dimension.
func OpenOrCreate(ctx context.Context, dir string, embedder interfaces.Embedder, opts Options) (*Store, error) {
	if embedder == nil {
		return nil, ragerr.New(ragerr.CodeEmbedding, "no embedding capability configured")
	}
	opts = opts.withDefaults()

	if LocalIndexExists(dir) {
		idx, err := OpenLocalIndex(ctx, dir)
		if err != nil {
			return nil, err
		}
		s := newStore(idx, embedder, opts)
		if idx.Len() == 0 {
			if err := s.reseed(ctx); err != nil {
				idx.Close()
				return nil, err
			}
		}
		opts.Log.Info(fmt.Sprintf("Loaded vector store from %s with %d entries", dir, idx.Len()))
		return s, nil
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		return nil, ragerr.New(ragerr.CodePersistence,
			fmt.Sprintf("directory %s is not empty and holds no vector index", dir), ragerr.FieldPath(dir))
	}

	seed, err := embedOne(ctx, embedder, schema.PlaceholderText)
	if err != nil {
		return nil, err
	}
	idx, err := CreateLocalIndex(ctx, dir, len(seed))
	if err != nil {
		return nil, err
	}
	s := newStore(idx, embedder, opts)
	if err := s.seed(ctx, seed); err != nil {
		idx.Close()
		removeDBFiles(idx.path)
		return nil, err
	}
	opts.Log.Info(fmt.Sprintf("Created vector store in %s (dim %d)", dir, len(seed)))
	return s, nil
}

// OpenMilvus opens or creates the store backed by a Milvus collection.
func OpenMilvus(ctx context.Context, c client.Client, collection string, embedder interfaces.Embedder, opts Options) (*Store, error) {
	if embedder == nil {
		return nil, ragerr.New(ragerr.CodeEmbedding, "no embedding capability configured")
	}
	opts = opts.withDefaults()

	seed, err := embedOne(ctx, embedder, schema.PlaceholderText)
	if err != nil {
		return nil, err
	}
	idx, _, err := OpenMilvusIndex(ctx, c, collection, len(seed), opts.Log)
	if err != nil {
		return nil, err
	}
	s := newStore(idx, embedder, opts)
	if idx.Len() == 0 {
		if err := s.seed(ctx, seed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewWithIndex wraps an already opened Index. An empty index is seeded.
func NewWithIndex(ctx context.Context, idx Index, embedder interfaces.Embedder, opts Options) (*Store, error) {
	s := newStore(idx, embedder, opts.withDefaults())
	if idx.Len() > 0 {
		return s, nil
	}
	seed, err := embedOne(ctx, embedder, schema.PlaceholderText)
	if err != nil {
		return nil, err
	}
	return s, s.seed(ctx, seed)
}

func newStore(idx Index, embedder interfaces.Embedder, opts Options) *Store {
	return &Store{index: idx, embedder: embedder, opts: opts, log: opts.Log}
}

// reseed restores the placeholder in an index that was created but never seeded.
func (s *Store) reseed(ctx context.Context) error {
	vec, err := embedOne(ctx, s.embedder, schema.PlaceholderText)
	if err != nil {
		return err
	}
	if len(vec) != s.index.Dimension() {
		return ragerr.New(ragerr.CodeDimensionMismatch,
			fmt.Sprintf("embedding has dimension %d, store has %d", len(vec), s.index.Dimension()))
	}
	return s.seed(ctx, vec)
}

func (s *Store) seed(ctx context.Context, vec []float32) error {
	return s.index.Append(ctx, []Entry{{
		Chunk: &schema.Chunk{
			ID:       uuid.New().String(),
			Text:     schema.PlaceholderText,
			SourceID: schema.PlaceholderSourceID,
			Metadata: map[string]interface{}{schema.MetadataKeySource: schema.PlaceholderSourceID},
		},
		Vector: vec,
	}})
}

// Add embeds and stores chunks as one batch. If any embedding fails or any
// write fails, nothing from the batch becomes visible.
func (s *Store) Add(ctx context.Context, chunks []*schema.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := s.embedAll(ctx, chunks)
	if err != nil {
		return err
	}

	dim := s.index.Dimension()
	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return ragerr.New(ragerr.CodeDimensionMismatch,
				fmt.Sprintf("embedding has dimension %d, store has %d", len(vectors[i]), dim),
				ragerr.Field("chunk_id", c.ID))
		}
		entries[i] = Entry{Chunk: c, Vector: vectors[i]}
	}

	if err := s.index.Append(ctx, entries); err != nil {
		if ragerr.CodeOf(err) != "" {
			return err
		}
		return ragerr.Wrap(err, ragerr.CodePersistence, "storing chunks")
	}
	s.log.Info(fmt.Sprintf("Stored %d chunks, store now holds %d entries", len(chunks), s.index.Len()))
	return nil
}

// embedAll embeds chunk texts in batches, a bounded number at a time.
func (s *Store) embedAll(ctx context.Context, chunks []*schema.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for start := 0; start < len(chunks); start += s.opts.BatchSize {
		start := start
		end := start + s.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i, c := range chunks[start:end] {
				texts[i] = c.Text
			}
			vecs, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return asEmbeddingError(err)
			}
			if len(vecs) != len(texts) {
				return ragerr.New(ragerr.CodeEmbedding,
					fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vecs)))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Search returns up to k entries nearest to the query, best first.
func (s *Store) Search(ctx context.Context, query string, k int) ([]*schema.ScoredChunk, error) {
	if k <= 0 {
		return nil, ragerr.New(ragerr.CodeRetrieval, fmt.Sprintf("k must be positive, got %d", k))
	}
	vec, err := embedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}
	if len(vec) != s.index.Dimension() {
		return nil, ragerr.New(ragerr.CodeDimensionMismatch,
			fmt.Sprintf("query embedding has dimension %d, store has %d", len(vec), s.index.Dimension()))
	}

	hits, err := s.index.Search(ctx, vec, k)
	if err != nil {
		if ragerr.CodeOf(err) != "" {
			return nil, err
		}
		return nil, ragerr.Wrap(err, ragerr.CodeRetrieval, "searching vector store")
	}
	return hits, nil
}

// Len counts stored entries, the placeholder included.
func (s *Store) Len() int {
	return s.index.Len()
}

func (s *Store) Dimension() int {
	return s.index.Dimension()
}

func (s *Store) Stats() Stats {
	return Stats{Backend: s.index.Backend(), Entries: s.index.Len(), Dimension: s.index.Dimension()}
}

func (s *Store) Close() error {
	return s.index.Close()
}

func embedOne(ctx context.Context, e interfaces.Embedder, text string) ([]float32, error) {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, asEmbeddingError(err)
	}
	if len(vec) == 0 {
		return nil, ragerr.New(ragerr.CodeEmbedding, "empty embedding vector")
	}
	return vec, nil
}

func asEmbeddingError(err error) error {
	if ragerr.CodeOf(err) != "" {
		return err
	}
	return ragerr.Wrap(err, ragerr.CodeEmbedding, "embedding failed")
}

var _ interfaces.VectorStore = (*Store)(nil)
