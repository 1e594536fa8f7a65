package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// Schema fields of the Milvus collection.
	FieldID        = "id"
	FieldSeq       = "seq"
	FieldSourceID  = "source_id"
	FieldText      = "text"
	FieldMetadata  = "metadata"
	FieldEmbedding = "embedding"

	maxVarChar = 65535
)

// MilvusIndex stores entries in a Milvus collection and searches it with a
// flat L2 index, so results match the local backend.
type MilvusIndex struct {
	log        *logger.Logger
	client     client.Client
	collection string
	dim        int

	mu    sync.Mutex
	count atomic.Int64
}

// OpenMilvusIndex attaches to collection. The collection is created with
// dimension dim if it does not exist. It reports whether it was created.
func OpenMilvusIndex(ctx context.Context, c client.Client, collection string, dim int, log *logger.Logger) (*MilvusIndex, bool, error) {
	if c == nil {
		return nil, false, ragerr.New(ragerr.CodePersistence, "milvus client is not initialized")
	}
	if log == nil {
		log = logger.Discard()
	}
	idx := &MilvusIndex{log: log, client: c, collection: collection, dim: dim}

	has, err := c.HasCollection(ctx, collection)
	if err != nil {
		return nil, false, ragerr.Wrapf(err, ragerr.CodePersistence, "checking milvus collection %s", collection)
	}
	created := false
	if has {
		if err := idx.describe(ctx); err != nil {
			return nil, false, err
		}
	} else {
		if err := idx.create(ctx); err != nil {
			return nil, false, err
		}
		created = true
	}

	if err := c.LoadCollection(ctx, collection, false); err != nil {
		return nil, false, ragerr.Wrapf(err, ragerr.CodePersistence, "loading milvus collection %s", collection)
	}
	stats, err := c.GetCollectionStatistics(ctx, collection)
	if err != nil {
		return nil, false, ragerr.Wrapf(err, ragerr.CodePersistence, "reading milvus collection statistics")
	}
	rows, _ := strconv.ParseInt(stats["row_count"], 10, 64)
	idx.count.Store(rows)

	log.Info(fmt.Sprintf("Milvus collection %s ready with %d entries (dim %d)", collection, rows, idx.dim))
	return idx, created, nil
}

func (m *MilvusIndex) create(ctx context.Context) error {
	if m.dim <= 0 {
		return ragerr.New(ragerr.CodeDimensionMismatch, fmt.Sprintf("invalid dimension %d", m.dim))
	}
	s := entity.NewSchema().WithName(m.collection).WithDescription("RAG chunks").
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(64)).
		WithField(entity.NewField().WithName(FieldSeq).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldSourceID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096)).
		WithField(entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxVarChar)).
		WithField(entity.NewField().WithName(FieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxVarChar)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.dim)))

	if err := m.client.CreateCollection(ctx, s, 1); err != nil {
		return ragerr.Wrapf(err, ragerr.CodePersistence, "creating milvus collection %s", m.collection)
	}
	flat, err := entity.NewIndexFlat(entity.L2)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "building milvus index definition")
	}
	if err := m.client.CreateIndex(ctx, m.collection, FieldEmbedding, flat, false); err != nil {
		return ragerr.Wrapf(err, ragerr.CodePersistence, "creating milvus index on %s", m.collection)
	}
	m.log.Info(fmt.Sprintf("Created Milvus collection %s", m.collection))
	return nil
}

// describe reads the vector dimension of an existing collection.
func (m *MilvusIndex) describe(ctx context.Context) error {
	coll, err := m.client.DescribeCollection(ctx, m.collection)
	if err != nil {
		return ragerr.Wrapf(err, ragerr.CodePersistence, "describing milvus collection %s", m.collection)
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != FieldEmbedding {
			continue
		}
		dim, err := strconv.Atoi(f.TypeParams[entity.TypeParamDim])
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodePersistence, "reading milvus vector dimension")
		}
		m.dim = dim
		return nil
	}
	return ragerr.New(ragerr.CodePersistence, fmt.Sprintf("collection %s has no %s field", m.collection, FieldEmbedding))
}

func (m *MilvusIndex) Backend() string { return "milvus" }

func (m *MilvusIndex) Dimension() int { return m.dim }

func (m *MilvusIndex) Len() int { return int(m.count.Load()) }

// Append inserts all entries in a single Insert call and flushes. When the
// flush fails the inserted rows are deleted again, so a failed call leaves
// nothing searchable behind.
func (m *MilvusIndex) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(entries)
	ids := make([]string, n)
	seqs := make([]int64, n)
	sources := make([]string, n)
	texts := make([]string, n)
	metas := make([]string, n)
	vectors := make([][]float32, n)

	base := m.count.Load()
	for i, e := range entries {
		if len(e.Vector) != m.dim {
			return ragerr.New(ragerr.CodeDimensionMismatch,
				fmt.Sprintf("vector has dimension %d, collection has %d", len(e.Vector), m.dim))
		}
		metaJSON, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodePersistence, "marshalling chunk metadata", ragerr.Field("chunk_id", e.Chunk.ID))
		}
		ids[i] = e.Chunk.ID
		seqs[i] = base + int64(i)
		sources[i] = e.Chunk.SourceID
		texts[i] = e.Chunk.Text
		metas[i] = string(metaJSON)
		vectors[i] = e.Vector
	}

	m.log.Info(fmt.Sprintf("Inserting %d chunks into Milvus collection: %s", n, m.collection))
	_, err := m.client.Insert(ctx, m.collection, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnInt64(FieldSeq, seqs),
		entity.NewColumnVarChar(FieldSourceID, sources),
		entity.NewColumnVarChar(FieldText, texts),
		entity.NewColumnVarChar(FieldMetadata, metas),
		entity.NewColumnFloatVector(FieldEmbedding, m.dim, vectors),
	)
	if err != nil {
		m.log.Error(fmt.Sprintf("Failed to insert data into Milvus: %v", err))
		return ragerr.Wrap(err, ragerr.CodePersistence, "inserting into milvus")
	}
	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		m.log.WithError(err).Warn(fmt.Sprintf("Flush failed, removing %d inserted chunks", n))
		if derr := m.client.Delete(context.WithoutCancel(ctx), m.collection, "", idFilter(ids)); derr != nil {
			m.log.WithError(derr).Error("Failed to remove chunks of a failed batch from Milvus")
			return ragerr.Wrap(errors.Join(err, derr), ragerr.CodePersistence, "flushing milvus collection, rollback failed")
		}
		return ragerr.Wrap(err, ragerr.CodePersistence, "flushing milvus collection")
	}
	m.count.Add(int64(n))
	return nil
}

// idFilter builds a boolean expression matching the given primary keys.
func idFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return fmt.Sprintf("%s in [%s]", FieldID, strings.Join(quoted, ","))
}

func (m *MilvusIndex) Search(ctx context.Context, query []float32, k int) ([]*schema.ScoredChunk, error) {
	if len(query) != m.dim {
		return nil, ragerr.New(ragerr.CodeDimensionMismatch,
			fmt.Sprintf("query has dimension %d, collection has %d", len(query), m.dim))
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeRetrieval, "building milvus search params")
	}

	results, err := m.client.Search(
		ctx, m.collection, []string{}, "",
		[]string{FieldID, FieldSeq, FieldSourceID, FieldText, FieldMetadata},
		[]entity.Vector{entity.FloatVector(query)},
		FieldEmbedding, entity.L2, k, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		m.log.Error(fmt.Sprintf("Failed to search in Milvus: %v", err))
		return nil, ragerr.Wrap(err, ragerr.CodeRetrieval, "searching milvus")
	}

	type hit struct {
		seq   int64
		chunk *schema.ScoredChunk
	}
	var hits []hit
	for _, res := range results {
		findColumn := func(name string) entity.Column {
			for _, field := range res.Fields {
				if field.Name() == name {
					return field
				}
			}
			return nil
		}

		idCol, ok := findColumn(FieldID).(*entity.ColumnVarChar)
		if !ok {
			m.log.Warn("Search result is missing ID field or has wrong type, skipping.")
			continue
		}
		seqCol, _ := findColumn(FieldSeq).(*entity.ColumnInt64)
		sourceCol, _ := findColumn(FieldSourceID).(*entity.ColumnVarChar)
		textCol, _ := findColumn(FieldText).(*entity.ColumnVarChar)
		metaCol, _ := findColumn(FieldMetadata).(*entity.ColumnVarChar)

		for i := 0; i < res.ResultCount; i++ {
			chunk := &schema.Chunk{ID: idCol.Data()[i]}
			var seq int64
			if seqCol != nil {
				seq = seqCol.Data()[i]
			}
			if sourceCol != nil {
				chunk.SourceID = sourceCol.Data()[i]
			}
			if textCol != nil {
				chunk.Text = textCol.Data()[i]
			}
			if metaCol != nil {
				_ = json.Unmarshal([]byte(metaCol.Data()[i]), &chunk.Metadata)
			}
			hits = append(hits, hit{seq: seq, chunk: &schema.ScoredChunk{Chunk: chunk, Distance: res.Scores[i]}})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].chunk.Distance != hits[j].chunk.Distance {
			return hits[i].chunk.Distance < hits[j].chunk.Distance
		}
		return hits[i].seq < hits[j].seq
	})
	out := make([]*schema.ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = h.chunk
	}
	return out, nil
}

// Close releases the collection from memory. The client stays open for its owner.
func (m *MilvusIndex) Close() error {
	return m.client.ReleaseCollection(context.Background(), m.collection)
}

var _ Index = (*MilvusIndex)(nil)
