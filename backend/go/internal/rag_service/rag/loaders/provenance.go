package loaders

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"

	"github.com/djherbis/times"
)

// provenance describes where a document came from. localPath is the file that
// was read, source is the reference the caller gave (they differ for objects).
func provenance(localPath, source, mimeType string) map[string]interface{} {
	name := path.Base(filepath.ToSlash(source))
	meta := map[string]interface{}{
		schema.MetadataKeySource:   source,
		schema.MetadataKeyFileName: name,
	}
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), "."); ext != "" {
		meta[schema.MetadataKeyFileType] = ext
	}
	if mimeType != "" {
		meta[schema.MetadataKeyMimeType] = mimeType
	}
	if localPath == "" {
		return meta
	}

	ts, err := times.Stat(localPath)
	if err != nil {
		return meta
	}
	meta[schema.MetadataKeyModifiedAt] = ts.ModTime().UTC().Format(time.RFC3339)
	if ts.HasBirthTime() {
		meta[schema.MetadataKeyCreatedAt] = ts.BirthTime().UTC().Format(time.RFC3339)
	}
	return meta
}

// withProvenance adds provenance keys a loader did not already set.
func withProvenance(docs []*schema.Document, meta map[string]interface{}) {
	for _, doc := range docs {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{}, len(meta))
		}
		for k, v := range meta {
			if _, ok := doc.Metadata[k]; !ok {
				doc.Metadata[k] = v
			}
		}
	}
}
