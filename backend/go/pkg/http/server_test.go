package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agentic_rag/backend/go/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_WithAddress(t *testing.T) {
	srv := NewServer(http.NotFoundHandler(), WithAddress(":9999"))
	assert.Equal(t, ":9999", srv.Addr())
	assert.Equal(t, ":8080", NewServer(http.NotFoundHandler()).Addr())
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := NewServer(http.NotFoundHandler(), WithAddress("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, time.Second) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestClientPostJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer ts.Close()

	resp, err := NewClient(nil).PostJSON(context.Background(), ts.URL, []byte(`{"a":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestClientOpensCircuitOnServerErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(circuitbreaker.New(2, 1, time.Minute)).WithTimeout(time.Second)
	for i := 0; i < 2; i++ {
		resp, err := c.PostJSON(context.Background(), ts.URL, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		resp.Body.Close()
	}

	_, err := c.PostJSON(context.Background(), ts.URL, nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, circuitbreaker.Open, c.Breaker().State())
}
