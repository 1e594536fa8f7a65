package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"
)

// BadInputMessage is reported when a document yields no usable text.
const BadInputMessage = "Could not process the document. It might be empty, corrupted, or an unsupported format."

// IngestionPipeline loads a document, splits it into chunks and stores them.
type IngestionPipeline struct {
	loader   interfaces.DocumentLoader
	splitter interfaces.Splitter
	store    interfaces.VectorStore
	log      *logger.Logger
}

// NewIngestionPipeline creates a new IngestionPipeline.
func NewIngestionPipeline(
	loader interfaces.DocumentLoader,
	splitter interfaces.Splitter,
	store interfaces.VectorStore,
	log *logger.Logger,
) *IngestionPipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &IngestionPipeline{loader: loader, splitter: splitter, store: store, log: log}
}

// Ingest never returns an error or panics. Every failure comes back as a
// failure result, and the store is only touched once there are chunks to add.
func (p *IngestionPipeline) Ingest(ctx context.Context, ref string) (res IngestionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			err := ragerr.New(ragerr.CodeInternal, fmt.Sprintf("panic during ingestion: %v", rec), ragerr.FieldPath(ref))
			p.log.WithError(err).Error(fmt.Sprintf("Ingestion of %s panicked", ref))
			res = addFailure(err)
		}
	}()

	p.log.Info(fmt.Sprintf("Starting ingestion for: %s", ref))

	docs, loadErr := p.load(ctx, ref)
	if len(docs) == 0 {
		if loadErr == nil {
			loadErr = ragerr.New(ragerr.CodeEmptyOrCorruptDocument, "loader returned no documents", ragerr.FieldPath(ref))
		}
		p.log.WithError(loadErr).Warn(fmt.Sprintf("No content loaded from %s", ref))
		return IngestionResult{Status: StatusFailure, Message: BadInputMessage, Err: loadErr}
	}
	p.log.Info(fmt.Sprintf("Loaded %d documents from %s", len(docs), ref))
	provenance := schema.CopyMetadata(docs[0].Metadata)

	chunks, err := p.splitter.Split(ctx, docs)
	if err != nil {
		p.log.WithError(err).Error("Failed to split documents")
		res := IngestionResult{
			Status:  StatusFailure,
			Message: fmt.Sprintf("An error occurred while splitting the document: %v", err),
			Err:     err,
		}
		res.Provenance = provenance
		return res
	}
	if len(chunks) == 0 {
		p.log.Warn(fmt.Sprintf("Documents from %s produced no chunks", ref))
		return IngestionResult{
			Status:     StatusFailure,
			Message:    BadInputMessage,
			Err:        ragerr.New(ragerr.CodeEmptyOrCorruptDocument, "document produced no chunks", ragerr.FieldPath(ref)),
			Provenance: provenance,
		}
	}
	p.log.Info(fmt.Sprintf("Split into %d chunks", len(chunks)))

	if err := p.store.Add(ctx, chunks); err != nil {
		p.log.WithError(err).Error(fmt.Sprintf("Failed to add chunks to VectorStore: %v", err))
		res := addFailure(err)
		res.Provenance = provenance
		return res
	}

	name := fileName(docs[0], ref)
	p.log.Info(fmt.Sprintf("Successfully finished ingestion for: %s", ref))
	return IngestionResult{
		Status:        StatusSuccess,
		Message:       fmt.Sprintf("Successfully ingested %d chunks from %s.", len(chunks), name),
		ChunksCreated: len(chunks),
		Provenance:    provenance,
	}
}

func (p *IngestionPipeline) load(ctx context.Context, ref string) ([]*schema.Document, error) {
	if r, ok := p.loader.(interfaces.Resolver); ok {
		return r.Resolve(ctx, ref)
	}
	return p.loader.Load(ctx, ref), nil
}

func addFailure(err error) IngestionResult {
	return IngestionResult{
		Status:  StatusFailure,
		Message: fmt.Sprintf("An error occurred while adding documents: %v", err),
		Err:     err,
	}
}

func fileName(doc *schema.Document, ref string) string {
	if name, ok := doc.Metadata[schema.MetadataKeyFileName].(string); ok && name != "" {
		return name
	}
	return path.Base(filepath.ToSlash(ref))
}
