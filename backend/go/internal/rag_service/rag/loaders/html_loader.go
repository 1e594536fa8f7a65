package loaders

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"agentic_rag/backend/go/internal/rag_service/rag/interfaces"
	"agentic_rag/backend/go/internal/rag_service/rag/schema"
	rhttp "agentic_rag/backend/go/pkg/http"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"
)

// maxPageBytes bounds how much of a remote page is read.
const maxPageBytes = 10 << 20

// DefaultFetchTimeout bounds one remote page fetch.
const DefaultFetchTimeout = 30 * time.Second

// Doer sends an HTTP request. *http.Client and the breaker-guarded pkg/http client both fit.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTMLLoader converts HTML to Markdown. It reads local files, or fetches
// http(s) URLs when the path is one.
type HTMLLoader struct {
	client  Doer
	timeout time.Duration
}

// NewHTMLLoader creates an HTMLLoader whose fetches give up after timeout.
// A nil client means a pkg/http client without a breaker, a non-positive
// timeout means DefaultFetchTimeout.
func NewHTMLLoader(client Doer, timeout time.Duration) *HTMLLoader {
	if client == nil {
		client = rhttp.NewClient(nil)
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTMLLoader{client: client, timeout: timeout}
}

func (l *HTMLLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	raw, err := l.read(ctx, path)
	if err != nil {
		return nil, err
	}
	markdown, err := htmltomarkdown.ConvertString(raw)
	if err != nil {
		return nil, fmt.Errorf("converting html to markdown: %w", err)
	}
	return []*schema.Document{{
		ID:       uuid.New().String(),
		Text:     markdown,
		Metadata: map[string]interface{}{},
	}}, nil
}

func (l *HTMLLoader) read(ctx context.Context, path string) (string, error) {
	if !isURL(path) {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(content), nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: %s", path, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

var _ interfaces.Loader = (*HTMLLoader)(nil)
