package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	ragerr "agentic_rag/backend/go/pkg/errors"

	_ "modernc.org/sqlite" // SQLite driver
)

// IndexFileName is the database file inside a local store directory.
const IndexFileName = "index.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	seq       INTEGER PRIMARY KEY,
	id        TEXT NOT NULL,
	source_id TEXT NOT NULL,
	text      TEXT NOT NULL,
	metadata  TEXT NOT NULL,
	vector    BLOB NOT NULL
);`

// snapshot is replaced, never mutated, so readers need no lock.
type snapshot struct {
	entries []Entry
}

// LocalIndex keeps every entry in memory for exact search and persists them in
// a SQLite file. Writes are serialized, reads work on the latest snapshot.
type LocalIndex struct {
	db   *sql.DB
	path string
	dim  int

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// LocalIndexExists reports whether dir holds a local index.
func LocalIndexExists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, IndexFileName))
	return err == nil && !info.IsDir()
}

// CreateLocalIndex initializes an empty index of the given dimension in dir.
func CreateLocalIndex(ctx context.Context, dir string, dim int) (*LocalIndex, error) {
	if dim <= 0 {
		return nil, ragerr.New(ragerr.CodeDimensionMismatch, fmt.Sprintf("invalid dimension %d", dim))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodePersistence, "creating vector store directory", ragerr.FieldPath(dir))
	}

	idx, err := openDB(dir)
	if err != nil {
		return nil, err
	}
	if err := idx.init(ctx, dim); err != nil {
		idx.db.Close()
		removeDBFiles(idx.path)
		return nil, err
	}
	idx.dim = dim
	idx.snap.Store(&snapshot{})
	return idx, nil
}

// OpenLocalIndex loads an existing index from dir.
func OpenLocalIndex(ctx context.Context, dir string) (*LocalIndex, error) {
	if !LocalIndexExists(dir) {
		return nil, ragerr.New(ragerr.CodePersistence, "no vector index in directory", ragerr.FieldPath(dir))
	}
	idx, err := openDB(dir)
	if err != nil {
		return nil, err
	}
	if err := idx.load(ctx); err != nil {
		idx.db.Close()
		return nil, err
	}
	return idx, nil
}

func openDB(dir string) (*LocalIndex, error) {
	path := filepath.Join(dir, IndexFileName)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodePersistence, "opening vector index", ragerr.FieldPath(path))
	}
	db.SetMaxOpenConns(1)
	return &LocalIndex{db: db, path: path}, nil
}

func (l *LocalIndex) init(ctx context.Context, dim int) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "creating vector index schema")
	}
	meta := map[string]string{
		"dimension":  strconv.Itoa(dim),
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return ragerr.Wrap(err, ragerr.CodePersistence, "writing vector index metadata")
		}
	}
	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "committing vector index schema")
	}
	return nil
}

func (l *LocalIndex) load(ctx context.Context) error {
	var rawDim string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'dimension'`).Scan(&rawDim)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "reading vector index metadata", ragerr.FieldPath(l.path))
	}
	dim, err := strconv.Atoi(rawDim)
	if err != nil || dim <= 0 {
		return ragerr.New(ragerr.CodePersistence, fmt.Sprintf("corrupt vector index dimension %q", rawDim), ragerr.FieldPath(l.path))
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, id, source_id, text, metadata, vector
		FROM entries ORDER BY seq`)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "reading vector index entries", ragerr.FieldPath(l.path))
	}
	defer rows.Close()

	var entries []Entry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			e        Entry
			chunk    schema.Chunk
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&e.Seq, &chunk.ID, &chunk.SourceID, &chunk.Text, &metaJSON, &blob); err != nil {
			return ragerr.Wrap(err, ragerr.CodePersistence, "scanning vector index entry")
		}
		if err := json.Unmarshal([]byte(metaJSON), &chunk.Metadata); err != nil {
			return ragerr.Wrap(err, ragerr.CodePersistence, "decoding chunk metadata", ragerr.Field("seq", e.Seq))
		}
		e.Vector = bytesToFloat32Slice(blob)
		if len(e.Vector) != dim {
			return ragerr.New(ragerr.CodePersistence,
				fmt.Sprintf("entry %d has dimension %d, index has %d", e.Seq, len(e.Vector), dim))
		}
		e.Chunk = &chunk
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "iterating vector index entries")
	}

	l.dim = dim
	l.snap.Store(&snapshot{entries: entries})
	return nil
}

func (l *LocalIndex) Backend() string { return "local" }

func (l *LocalIndex) Dimension() int { return l.dim }

func (l *LocalIndex) Len() int { return len(l.snap.Load().entries) }

// Append assigns sequence numbers, writes the entries in one transaction and
// publishes them only after the commit succeeded.
func (l *LocalIndex) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.snap.Load().entries
	next := make([]Entry, len(current), len(current)+len(entries))
	copy(next, current)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (seq, id, source_id, text, metadata, vector)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "preparing statement")
	}
	defer stmt.Close()

	seq := int64(len(current))
	for _, e := range entries {
		if len(e.Vector) != l.dim {
			return ragerr.New(ragerr.CodeDimensionMismatch,
				fmt.Sprintf("vector has dimension %d, index has %d", len(e.Vector), l.dim))
		}
		metaJSON, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return ragerr.Wrap(err, ragerr.CodePersistence, "marshalling chunk metadata", ragerr.Field("chunk_id", e.Chunk.ID))
		}
		if _, err := stmt.ExecContext(ctx, seq, e.Chunk.ID, e.Chunk.SourceID, e.Chunk.Text,
			string(metaJSON), float32SliceToBytes(e.Vector)); err != nil {
			return ragerr.Wrap(err, ragerr.CodePersistence, "saving chunk", ragerr.Field("chunk_id", e.Chunk.ID))
		}
		e.Seq = seq
		next = append(next, e)
		seq++
	}

	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "committing chunks")
	}
	l.snap.Store(&snapshot{entries: next})
	return nil
}

func (l *LocalIndex) Search(ctx context.Context, query []float32, k int) ([]*schema.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != l.dim {
		return nil, ragerr.New(ragerr.CodeDimensionMismatch,
			fmt.Sprintf("query has dimension %d, index has %d", len(query), l.dim))
	}
	return nearest(l.snap.Load().entries, query, k), nil
}

func (l *LocalIndex) Close() error {
	return l.db.Close()
}

func removeDBFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}

// float32SliceToBytes encodes a vector as little-endian float32s.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

var _ Index = (*LocalIndex)(nil)
