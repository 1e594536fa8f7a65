package loaders

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
)

// textExtensions are formats whose loaders read the file as text. Their content
// is sniffed first so a binary renamed to .txt is rejected up front.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".html": true, ".htm": true,
}

// Registry picks a Loader by file extension and turns any failure into a
// coded error. It is the DocumentLoader the ingestion pipeline uses.
type Registry struct {
	loaders map[string]interfaces.Loader
	html    *HTMLLoader
	policy  *PathPolicy
	objects ObjectFetcher
	log     *logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPathPolicy restricts local paths to the policy's patterns.
func WithPathPolicy(p *PathPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithObjectFetcher enables minio:// references.
func WithObjectFetcher(f ObjectFetcher) Option {
	return func(r *Registry) { r.objects = f }
}

// WithHTTPClient sets the client used for http(s) sources and how long one
// fetch may take.
func WithHTTPClient(c Doer, timeout time.Duration) Option {
	return func(r *Registry) { r.html = NewHTMLLoader(c, timeout) }
}

// WithLoader registers or replaces the loader for an extension such as ".rst".
func WithLoader(ext string, l interfaces.Loader) Option {
	return func(r *Registry) { r.loaders[strings.ToLower(ext)] = l }
}

func NewRegistry(log *logger.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	txt := NewTxtLoader()
	r := &Registry{
		html: NewHTMLLoader(nil, 0),
		log:  log,
	}
	r.loaders = map[string]interfaces.Loader{
		".pdf":  NewPdfLoader(),
		".txt":  txt,
		".md":   txt,
		".docx": NewDocxLoader(),
		".pptx": NewPptxLoader(),
		".csv":  NewCsvLoader(),
		".xlsx": NewXlsxLoader(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, ok := r.loaders[".html"]; !ok {
		r.loaders[".html"] = r.html
	}
	if _, ok := r.loaders[".htm"]; !ok {
		r.loaders[".htm"] = r.html
	}
	return r
}

// Supported lists the registered extensions.
func (r *Registry) Supported() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	return exts
}

// Load never fails. Unsupported, unreadable or empty sources yield an empty slice.
func (r *Registry) Load(ctx context.Context, ref string) []*schema.Document {
	docs, err := r.Resolve(ctx, ref)
	if err != nil {
		r.log.WithError(err).WithField("code", string(ragerr.CodeOf(err))).
			Warn(fmt.Sprintf("Could not load document %s", ref))
		return []*schema.Document{}
	}
	return docs
}

// Resolve loads ref and reports why when nothing usable comes out of it.
// ref may be an absolute path, an http(s) URL or a minio://bucket/key reference.
func (r *Registry) Resolve(ctx context.Context, ref string) (docs []*schema.Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			docs = nil
			err = ragerr.New(ragerr.CodeEmptyOrCorruptDocument,
				fmt.Sprintf("loader panicked: %v", rec), ragerr.FieldPath(ref))
		}
	}()

	if strings.TrimSpace(ref) == "" {
		return nil, ragerr.New(ragerr.CodeEmptyOrCorruptDocument, "empty document reference")
	}

	switch {
	case isURL(ref):
		docs, err = r.html.Load(ctx, ref)
		if err != nil {
			return nil, ragerr.Wrapf(err, ragerr.CodeEmptyOrCorruptDocument, "loading %s", ref)
		}
		return r.finish(docs, "", ref, "text/html")

	case strings.HasPrefix(ref, ObjectScheme):
		if r.objects == nil {
			return nil, ragerr.New(ragerr.CodeUnsupportedFormat, "object storage is not configured", ragerr.FieldPath(ref))
		}
		local, cleanup, err := r.objects.Fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return r.loadFile(ctx, local, ref)

	default:
		abs, err := filepath.Abs(ref)
		if err != nil {
			return nil, ragerr.Wrapf(err, ragerr.CodeEmptyOrCorruptDocument, "resolving %s", ref)
		}
		if err := r.policy.Check(abs); err != nil {
			return nil, err
		}
		return r.loadFile(ctx, abs, abs)
	}
}

func (r *Registry) loadFile(ctx context.Context, local, source string) ([]*schema.Document, error) {
	info, err := os.Stat(local)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeEmptyOrCorruptDocument, "cannot open %s", source)
	}
	if info.IsDir() {
		return nil, ragerr.New(ragerr.CodeUnsupportedFormat, "source is a directory", ragerr.FieldPath(source))
	}

	ext := strings.ToLower(path.Ext(filepath.ToSlash(source)))
	mime, err := mimetype.DetectFile(local)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeEmptyOrCorruptDocument, "reading %s", source)
	}

	loader, err := r.pick(ext, mime, source)
	if err != nil {
		return nil, err
	}
	r.log.Debug(fmt.Sprintf("Loading %s as %s", source, mime.String()))

	docs, err := loader.Load(ctx, local)
	if err != nil {
		if ragerr.CodeOf(err) != "" {
			return nil, err
		}
		return nil, ragerr.Wrapf(err, ragerr.CodeEmptyOrCorruptDocument, "parsing %s", source)
	}
	return r.finish(docs, local, source, mime.String())
}

// pick resolves the loader for ext. Files without an extension are accepted
// when their content sniffs as text.
func (r *Registry) pick(ext string, mime *mimetype.MIME, source string) (interfaces.Loader, error) {
	if ext == "" {
		if !isText(mime) {
			return nil, ragerr.New(ragerr.CodeUnsupportedFormat,
				fmt.Sprintf("unsupported content type %s", mime.String()), ragerr.FieldPath(source))
		}
		return r.loaders[".txt"], nil
	}

	loader, ok := r.loaders[ext]
	if !ok {
		return nil, ragerr.New(ragerr.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported file type %s", ext), ragerr.FieldPath(source))
	}
	if textExtensions[ext] && !isText(mime) {
		return nil, ragerr.New(ragerr.CodeEmptyOrCorruptDocument,
			fmt.Sprintf("%s file holds %s content", ext, mime.String()), ragerr.FieldPath(source))
	}
	return loader, nil
}

func (r *Registry) finish(docs []*schema.Document, local, source, mimeType string) ([]*schema.Document, error) {
	kept := make([]*schema.Document, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.Text) == "" {
			continue
		}
		kept = append(kept, doc)
	}
	if len(kept) == 0 {
		return nil, ragerr.New(ragerr.CodeEmptyOrCorruptDocument, "document has no extractable text", ragerr.FieldPath(source))
	}
	withProvenance(kept, provenance(local, source, mimeType))
	return kept, nil
}

func isText(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

var _ interfaces.DocumentLoader = (*Registry)(nil)
