package schema

const (
	// MetadataKeySource is the absolute path or object reference a document was loaded from.
	MetadataKeySource = "source"
	// MetadataKeyFileName is the key for the source file name.
	MetadataKeyFileName = "file_name"
	// MetadataKeyFileType is the lower-case extension without the dot, e.g. "pdf".
	MetadataKeyFileType = "file_type"
	// MetadataKeyMimeType is the sniffed content type.
	MetadataKeyMimeType = "mime_type"
	// MetadataKeyPageLabel is the 1-based page number for paged formats.
	MetadataKeyPageLabel = "page_label"
	// MetadataKeySlide is the 1-based slide number for presentations.
	MetadataKeySlide = "slide"
	// MetadataKeySheet is the worksheet name for spreadsheets.
	MetadataKeySheet = "sheet"
	// MetadataKeyRow is the 0-based data row for CSV files.
	MetadataKeyRow = "row"
	// MetadataKeyModifiedAt and MetadataKeyCreatedAt are RFC 3339 file times.
	MetadataKeyModifiedAt = "modified_at"
	MetadataKeyCreatedAt  = "created_at"

	// MetadataKeyChunkIndex is the running index of a chunk within its source document.
	MetadataKeyChunkIndex = "chunk_index"
	// MetadataKeyStartIndex is the offset, in characters, of the chunk within its source document.
	MetadataKeyStartIndex = "start_index"
)

// PlaceholderSourceID marks the entry a fresh vector store is seeded with.
const PlaceholderSourceID = "placeholder"

// PlaceholderText is the text of the seed entry.
const PlaceholderText = "initialization"

// Document is a loaded piece of raw text with its provenance, before chunking.
type Document struct {
	// ID is the unique identifier for this document.
	ID string

	// Text is the extracted plain text.
	Text string

	// Metadata holds provenance such as source, file_name and page_label.
	Metadata map[string]interface{}
}

// Source returns the document's source reference, or "" if none was recorded.
func (d *Document) Source() string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	s, _ := d.Metadata[MetadataKeySource].(string)
	return s
}

// Chunk is a bounded span of document text, the unit of embedding and retrieval.
// Chunks are not modified after creation.
type Chunk struct {
	ID       string
	Text     string
	SourceID string
	Metadata map[string]interface{}
}

// ScoredChunk is a search hit. Distance is squared L2, smaller is closer.
type ScoredChunk struct {
	Chunk    *Chunk
	Distance float32
}

// CopyMetadata returns a shallow copy of m that is safe to extend.
func CopyMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
