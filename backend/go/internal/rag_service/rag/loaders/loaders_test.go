package loaders

import (
	"archive/zip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o600))
	return p
}

func writePptx(t *testing.T, dir string, slides ...string) string {
	t.Helper()
	p := filepath.Join(dir, "deck.pptx")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	ct, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = ct.Write([]byte(`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	require.NoError(t, err)
	for i, text := range slides {
		w, err := zw.Create(fmt.Sprintf("ppt/slides/slide%d.xml", i+1))
		require.NoError(t, err)
		var paras strings.Builder
		for _, line := range strings.Split(text, "\n") {
			paras.WriteString(`<a:p><a:r><a:t>` + line + `</a:t></a:r></a:p>`)
		}
		_, err = w.Write([]byte(`<?xml version="1.0"?><p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>` +
			paras.String() + `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestTxtLoader(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "notes.txt", []byte("The warranty lasts 2 years."))

	docs, err := NewTxtLoader().Load(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "The warranty lasts 2 years.", docs[0].Text)
	assert.NotEmpty(t, docs[0].ID)
}

func TestTxtLoaderRejectsInvalidUTF8(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.txt", []byte{0xff, 0xfe, 0xfd})
	_, err := NewTxtLoader().Load(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, ragerr.CodeEmptyOrCorruptDocument, ragerr.CodeOf(err))
}

func TestCsvLoader(t *testing.T) {
	p := writeFile(t, t.TempDir(), "people.csv", []byte("\ufeffname,city\nAda,London\nLinus,Helsinki,extra\n"))

	docs, err := NewCsvLoader().Load(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "name: Ada\ncity: London", docs[0].Text)
	assert.Equal(t, 0, docs[0].Metadata[schema.MetadataKeyRow])
	assert.Equal(t, "name: Linus\ncity: Helsinki\ncolumn_2: extra", docs[1].Text)
	assert.Equal(t, 1, docs[1].Metadata[schema.MetadataKeyRow])
}

func TestXlsxLoader(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sales.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "region"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "total"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "north"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 42))
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())

	docs, err := NewXlsxLoader().Load(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "| region | total |\n| --- | --- |\n| north | 42 |\n", docs[0].Text)
	assert.Equal(t, "Sheet1", docs[0].Metadata[schema.MetadataKeySheet])
}

func TestPptxLoader(t *testing.T) {
	p := writePptx(t, t.TempDir(), "Quarterly review\nRevenue grew", "", "Next steps")

	docs, err := NewPptxLoader().Load(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Quarterly review\nRevenue grew\n", docs[0].Text)
	assert.Equal(t, 1, docs[0].Metadata[schema.MetadataKeySlide])
	assert.Equal(t, 3, docs[1].Metadata[schema.MetadataKeySlide])
}

func TestHTMLLoaderLocalAndRemote(t *testing.T) {
	page := `<html><body><h1>Returns</h1><p>Items can be returned within <b>30 days</b>.</p></body></html>`
	p := writeFile(t, t.TempDir(), "returns.html", []byte(page))

	docs, err := NewHTMLLoader(nil, 0).Load(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "# Returns")
	assert.Contains(t, docs[0].Text, "**30 days**")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/returns" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	loader := NewHTMLLoader(srv.Client(), time.Second)
	docs, err = loader.Load(context.Background(), srv.URL+"/returns")
	require.NoError(t, err)
	assert.Contains(t, docs[0].Text, "# Returns")

	_, err = loader.Load(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestHTMLLoaderGivesUpOnStalledServer(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewRegistry(nil, WithHTTPClient(nil, 50*time.Millisecond)).Resolve(context.Background(), srv.URL+"/slow.html")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRegistryAddsProvenance(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Policy.TXT", []byte("Refunds are issued within 5 days."))

	docs, err := NewRegistry(nil).Resolve(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	meta := docs[0].Metadata
	assert.Equal(t, p, meta[schema.MetadataKeySource])
	assert.Equal(t, "Policy.TXT", meta[schema.MetadataKeyFileName])
	assert.Equal(t, "txt", meta[schema.MetadataKeyFileType])
	assert.Contains(t, meta[schema.MetadataKeyMimeType], "text/plain")
	assert.NotEmpty(t, meta[schema.MetadataKeyModifiedAt])
	assert.Equal(t, p, docs[0].Source())
}

func TestRegistryKeepsLoaderMetadata(t *testing.T) {
	p := writePptx(t, t.TempDir(), "Only slide")
	docs, err := NewRegistry(nil).Resolve(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].Metadata[schema.MetadataKeySlide])
	assert.Equal(t, "pptx", docs[0].Metadata[schema.MetadataKeyFileType])
}

func TestRegistryFailures(t *testing.T) {
	dir := t.TempDir()
	exe := writeFile(t, dir, "tool.exe", []byte("MZ this is not really a program"))
	doc := writeFile(t, dir, "legacy.doc", []byte("old word"))
	png := writeFile(t, dir, "image.txt", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01"))
	empty := writeFile(t, dir, "empty.txt", nil)
	blank := writeFile(t, dir, "blank.md", []byte(" \n\t\n  "))
	corruptPdf := writeFile(t, dir, "broken.pdf", []byte("not a pdf at all"))
	corruptPptx := writeFile(t, dir, "broken.pptx", []byte("not a zip"))

	tests := []struct {
		name string
		ref  string
		code ragerr.Code
	}{
		{"unknown extension", exe, ragerr.CodeUnsupportedFormat},
		{"legacy word", doc, ragerr.CodeUnsupportedFormat},
		{"binary with text extension", png, ragerr.CodeEmptyOrCorruptDocument},
		{"empty file", empty, ragerr.CodeEmptyOrCorruptDocument},
		{"whitespace only", blank, ragerr.CodeEmptyOrCorruptDocument},
		{"corrupt pdf", corruptPdf, ragerr.CodeEmptyOrCorruptDocument},
		{"corrupt pptx", corruptPptx, ragerr.CodeEmptyOrCorruptDocument},
		{"missing file", filepath.Join(dir, "missing.txt"), ragerr.CodeEmptyOrCorruptDocument},
		{"directory", dir, ragerr.CodeUnsupportedFormat},
		{"empty reference", "", ragerr.CodeEmptyOrCorruptDocument},
		{"object storage off", "minio://docs/a.txt", ragerr.CodeUnsupportedFormat},
	}

	r := NewRegistry(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := r.Resolve(context.Background(), tt.ref)
			require.Error(t, err)
			assert.Nil(t, docs)
			assert.Equal(t, tt.code, ragerr.CodeOf(err))

			loaded := r.Load(context.Background(), tt.ref)
			assert.NotNil(t, loaded)
			assert.Empty(t, loaded)
		})
	}
}

func TestRegistryNoExtensionSniffsText(t *testing.T) {
	p := writeFile(t, t.TempDir(), "README", []byte("plain words"))
	docs, err := NewRegistry(nil).Resolve(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "plain words", docs[0].Text)
}

type panickingLoader struct{}

func (panickingLoader) Load(context.Context, string) ([]*schema.Document, error) {
	panic("boom")
}

func TestRegistryRecoversLoaderPanic(t *testing.T) {
	p := writeFile(t, t.TempDir(), "notes.rst", []byte("text"))
	r := NewRegistry(nil, WithLoader(".rst", panickingLoader{}))

	_, err := r.Resolve(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, ragerr.CodeEmptyOrCorruptDocument, ragerr.CodeOf(err))
	assert.Empty(t, r.Load(context.Background(), p))
}

type fakeFetcher struct {
	dir     string
	cleaned bool
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) (string, func(), error) {
	_, key, ok := ParseObjectRef(ref)
	if !ok {
		return "", nil, ragerr.New(ragerr.CodeUnsupportedFormat, "bad ref")
	}
	p := filepath.Join(f.dir, filepath.Base(key))
	if err := os.WriteFile(p, []byte("object body"), 0o600); err != nil {
		return "", nil, err
	}
	return p, func() { f.cleaned = true }, nil
}

func TestRegistryObjectReference(t *testing.T) {
	fetcher := &fakeFetcher{dir: t.TempDir()}
	r := NewRegistry(nil, WithObjectFetcher(fetcher))

	docs, err := r.Resolve(context.Background(), "minio://docs/reports/q3.txt")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "object body", docs[0].Text)
	assert.Equal(t, "minio://docs/reports/q3.txt", docs[0].Source())
	assert.Equal(t, "q3.txt", docs[0].Metadata[schema.MetadataKeyFileName])
	assert.True(t, fetcher.cleaned)
}

func TestParseObjectRef(t *testing.T) {
	bucket, key, ok := ParseObjectRef("minio://docs/a/b.pdf")
	assert.True(t, ok)
	assert.Equal(t, "docs", bucket)
	assert.Equal(t, "a/b.pdf", key)

	for _, ref := range []string{"minio://docs", "minio:///a.pdf", "minio://docs/", "s3://docs/a.pdf", "/tmp/a.pdf"} {
		_, _, ok := ParseObjectRef(ref)
		assert.False(t, ok, ref)
	}
}

func TestPathPolicy(t *testing.T) {
	dir := t.TempDir()
	inside := writeFile(t, dir, "ok.txt", []byte("allowed"))

	policy, err := NewPathPolicy([]string{filepath.ToSlash(dir) + "/**"})
	require.NoError(t, err)
	assert.True(t, policy.Allowed(inside))
	assert.False(t, policy.Allowed("/etc/passwd"))
	assert.False(t, policy.Allowed(filepath.Join(dir, "..", "escape.txt")))

	r := NewRegistry(nil, WithPathPolicy(policy))
	_, err = r.Resolve(context.Background(), inside)
	assert.NoError(t, err)

	_, err = r.Resolve(context.Background(), "/etc/hostname")
	require.Error(t, err)
	assert.Equal(t, ragerr.CodePathNotAllowed, ragerr.CodeOf(err))
}

func TestPathPolicyEmptyAllowsAll(t *testing.T) {
	policy, err := NewPathPolicy(nil)
	require.NoError(t, err)
	assert.True(t, policy.Allowed("/anything/at/all"))

	var none *PathPolicy
	assert.NoError(t, none.Check("/anything"))
}

func TestPathPolicyInvalidPattern(t *testing.T) {
	_, err := NewPathPolicy([]string{"/docs/[unclosed"})
	require.Error(t, err)
	assert.Equal(t, ragerr.CodeConfigInvalid, ragerr.CodeOf(err))
}
