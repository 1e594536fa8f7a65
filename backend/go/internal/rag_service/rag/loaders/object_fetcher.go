package loaders

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/minio/minio-go/v7"
)

// ObjectScheme prefixes references to objects in MinIO, e.g. minio://docs/reports/q3.pdf.
const ObjectScheme = "minio://"

// ObjectFetcher downloads a remote object to a local temporary file.
// The returned cleanup func removes it.
type ObjectFetcher interface {
	Fetch(ctx context.Context, ref string) (localPath string, cleanup func(), err error)
}

// ParseObjectRef splits minio://bucket/key into its parts.
func ParseObjectRef(ref string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(ref, ObjectScheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(ref, ObjectScheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", false
	}
	return bucket, key, true
}

// MinioFetcher fetches objects with a MinIO client.
type MinioFetcher struct {
	client *minio.Client
}

func NewMinioFetcher(client *minio.Client) *MinioFetcher {
	return &MinioFetcher{client: client}
}

func (f *MinioFetcher) Fetch(ctx context.Context, ref string) (string, func(), error) {
	bucket, key, ok := ParseObjectRef(ref)
	if !ok {
		return "", nil, ragerr.New(ragerr.CodeUnsupportedFormat, "malformed object reference", ragerr.FieldPath(ref))
	}

	dir, err := os.MkdirTemp("", "rag-object-*")
	if err != nil {
		return "", nil, ragerr.Wrap(err, ragerr.CodeInternal, "creating temp dir for object")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	local := filepath.Join(dir, path.Base(key))
	if err := f.client.FGetObject(ctx, bucket, key, local, minio.GetObjectOptions{}); err != nil {
		cleanup()
		return "", nil, ragerr.Wrapf(err, ragerr.CodeEmptyOrCorruptDocument, "fetching %s", ref)
	}
	return local, cleanup, nil
}

var _ ObjectFetcher = (*MinioFetcher)(nil)
