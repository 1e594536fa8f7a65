package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agentic_rag/backend/go/internal/config"
	"agentic_rag/backend/go/pkg/circuitbreaker"
	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	answer string
	err    error
	block  bool
	calls  int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.answer, f.err
}

func TestGuardedPassesAnswer(t *testing.T) {
	g := NewGuarded(&fakeLLM{answer: "2 years"}, "fake", time.Second, nil)
	answer, err := g.Generate(context.Background(), "how long?")
	require.NoError(t, err)
	assert.Equal(t, "2 years", answer)
}

func TestGuardedWrapsErrors(t *testing.T) {
	g := NewGuarded(&fakeLLM{err: errors.New("rate limited")}, "fake", 0, nil)
	_, err := g.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, ragerr.CodeGeneration, ragerr.CodeOf(err))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGuardedTimeout(t *testing.T) {
	g := NewGuarded(&fakeLLM{block: true}, "fake", 20*time.Millisecond, nil)
	_, err := g.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, ragerr.CodeGeneration, ragerr.CodeOf(err))
}

func TestGuardedCircuitOpen(t *testing.T) {
	fake := &fakeLLM{err: errors.New("down")}
	g := NewGuarded(fake, "fake", 0, circuitbreaker.New(1, 1, time.Minute))

	_, err := g.Generate(context.Background(), "q")
	require.Error(t, err)
	_, err = g.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, "open", ragerr.FieldsOf(err)["circuit"])
	assert.Equal(t, 1, fake.calls)
}

func TestNewClientUnsupported(t *testing.T) {
	_, err := NewClient(context.Background(), config.LLMConfig{Provider: "gpt-j"})
	require.Error(t, err)
	assert.Equal(t, ragerr.CodeConfigInvalid, ragerr.CodeOf(err))
}

func TestFromConfigOllama(t *testing.T) {
	client, err := FromConfig(context.Background(),
		config.LLMConfig{Provider: "ollama", Model: "llama3", Timeout: config.Duration(time.Second)},
		config.CircuitBreakerConfig{})
	require.NoError(t, err)
	_, ok := client.(*Guarded)
	assert.True(t, ok)
}

func TestOpenAISendsTemperature(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"It is green tea."}}]}`))
	}))
	defer srv.Close()

	client, err := NewOpenAI("gpt-4o-mini", "test-key", srv.URL, 0.25)
	require.NoError(t, err)
	answer, err := client.Generate(context.Background(), "Which tea?")
	require.NoError(t, err)

	assert.Equal(t, "It is green tea.", answer)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.InDelta(t, 0.25, body["temperature"], 1e-6)
}
