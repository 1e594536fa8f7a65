package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	raw := `{"sender":"StreamlitUI","receiver":"IngestionAgent","type":"INGESTION_REQUEST",` +
		`"trace_id":"t-1","payload":{"file_path":"/tmp/a.txt"}}`

	m, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, TypeIngestionRequest, m.Type)
	assert.Equal(t, IngestionRequestPayload{FilePath: "/tmp/a.txt"}, m.Payload)

	out, err := Encode(m)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestDecodeQAResponseDefaultsSourceChunks(t *testing.T) {
	raw := `{"sender":"RetrievalAgent","receiver":"ui","type":"QA_RESPONSE","trace_id":"t",` +
		`"payload":{"status":"failure","result":"An error occurred: x"}}`
	m, err := Decode([]byte(raw))
	require.NoError(t, err)
	p := m.Payload.(QAResponsePayload)
	assert.NotNil(t, p.SourceChunks)
	assert.Empty(t, p.SourceChunks)

	out, err := Encode(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"source_chunks":[]`)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"unknown type", `{"sender":"a","receiver":"b","type":"PING","trace_id":"t","payload":{}}`},
		{"missing payload", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t"}`},
		{"null payload", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":null}`},
		{"unknown envelope field", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","extra":1,"payload":{"query":"q"}}`},
		{"unknown payload field", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":{"query":"q","top":3}}`},
		{"wrong payload shape", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":{"query":7}}`},
		{"empty query", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":{"query":"  "}}`},
		{"negative k", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":{"query":"q","k":-1}}`},
		{"relative path", `{"sender":"a","receiver":"b","type":"INGESTION_REQUEST","trace_id":"t","payload":{"file_path":"doc.txt"}}`},
		{"missing trace", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"","payload":{"query":"q"}}`},
		{"missing sender", `{"sender":"","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":{"query":"q"}}`},
		{"bad status", `{"sender":"a","receiver":"b","type":"INGESTION_RESPONSE","trace_id":"t","payload":{"status":"ok","message":""}}`},
		{"trailing data", `{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":{"query":"q"}} {}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, ragerr.IsTransport(err), "got %v", err)
		})
	}
}

func TestIngestionPathForms(t *testing.T) {
	for _, ref := range []string{"/abs/file.pdf", "minio://docs/a.pdf", "https://example.com/page"} {
		assert.NoError(t, IngestionRequestPayload{FilePath: ref}.Validate(), ref)
	}
}

func TestNewResponseSwapsParties(t *testing.T) {
	req := NewRequest("ui", AgentIngestion, "", IngestionRequestPayload{FilePath: "/a"})
	require.NotEmpty(t, req.TraceID)

	resp := NewResponse(req, IngestionResponsePayload{Status: StatusSuccess, Message: "ok"})
	assert.Equal(t, req.TraceID, resp.TraceID)
	assert.Equal(t, "ui", resp.Receiver)
	assert.Equal(t, AgentIngestion, resp.Sender)
	assert.Equal(t, TypeIngestionResponse, resp.Type)
	assert.NoError(t, CheckResponse(req, resp))
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition("", StateCreated))
	assert.True(t, CanTransition("", StateReceived))
	assert.True(t, CanTransition(StateSent, StateResponded))
	assert.True(t, CanTransition(StateProcessed, StateResponded))
	assert.False(t, CanTransition("", StateSent))
	assert.False(t, CanTransition(StateResponded, StateSent))
	assert.False(t, CanTransition(StateTimedOut, StateProcessed))
	assert.True(t, StateTransportError.Terminal())
	assert.Equal(t, []State{StateProcessed, StateReceived, StateSent}, predecessors(StateTimedOut))
}

func recorderSuite(t *testing.T, r Recorder) {
	ctx := context.Background()
	for _, s := range []State{StateCreated, StateSent, StateReceived, StateProcessed, StateResponded} {
		require.NoError(t, r.Record(ctx, Event{TraceID: "t1", Type: TypeIngestionRequest, State: s}))
	}
	// Same trace, second phase of the same user action.
	require.NoError(t, r.Record(ctx, Event{TraceID: "t1", Type: TypeQARequest, State: StateCreated}))

	err := r.Record(ctx, Event{TraceID: "t1", Type: TypeIngestionRequest, State: StateSent})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	err = r.Record(ctx, Event{TraceID: "t2", Type: TypeQARequest, State: StateResponded})
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	hist, err := r.History(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, hist, 6)
	assert.Equal(t, StateResponded, hist[4].State)
	assert.Equal(t, TypeQARequest, hist[5].Type)
	assert.False(t, hist[0].At.IsZero())

	hist, err = r.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestMemoryRecorder(t *testing.T) {
	recorderSuite(t, NewMemoryRecorder())
}

func TestMemoryRecorderKeepsRecentTraces(t *testing.T) {
	rec := NewMemoryRecorder(WithMaxTraces(3))
	client := NewClient(NewLocalTransport(newTestDispatcher(rec)), "ui", WithRecorder(rec))
	ctx := context.Background()

	var traces []string
	for i := 0; i < 50; i++ {
		trace := NewTraceID()
		traces = append(traces, trace)
		_, err := client.Ask(ctx, trace, "q", 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, rec.Len())

	hist, err := rec.History(ctx, traces[0])
	require.NoError(t, err)
	assert.Empty(t, hist)

	hist, err = rec.History(ctx, traces[len(traces)-1])
	require.NoError(t, err)
	assert.Len(t, hist, 5)
}

func TestMemoryRecorderExpiresTraces(t *testing.T) {
	rec := NewMemoryRecorder(WithTraceTTL(10 * time.Millisecond))
	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, Event{TraceID: "t1", Type: TypeQARequest, State: StateCreated}))

	time.Sleep(50 * time.Millisecond)
	hist, err := rec.History(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Equal(t, 0, rec.Len())
}

func TestRedisRecorder(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	r := NewRedisRecorder(rdb, "", time.Hour)
	recorderSuite(t, r)

	assert.True(t, mr.Exists("rag:trace:{t1}:events"))
	assert.Greater(t, mr.TTL("rag:trace:{t1}:state"), time.Duration(0))

	mr.FastForward(2 * time.Hour)
	hist, err := r.History(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRedisRecorderUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	err := NewRedisRecorder(rdb, "x", 0).Record(context.Background(),
		Event{TraceID: "t", Type: TypeQARequest, State: StateCreated})
	require.Error(t, err)
	assert.True(t, ragerr.IsPersistence(err))
}

func TestCorrelator(t *testing.T) {
	c := NewCorrelator()
	ch, cancel, err := c.Register("t", TypeIngestionResponse)
	require.NoError(t, err)

	_, _, err = c.Register("t", TypeIngestionResponse)
	assert.True(t, ragerr.IsTransport(err))

	// A different response type on the same trace is a separate slot.
	_, cancelQA, err := c.Register("t", TypeQAResponse)
	require.NoError(t, err)
	cancelQA()

	msg := Message{TraceID: "t", Type: TypeIngestionResponse}
	assert.True(t, c.Deliver(msg))
	assert.Equal(t, msg, <-ch)
	assert.False(t, c.Deliver(msg), "late delivery has no waiter")

	cancel()
	assert.Equal(t, 0, c.Pending())
}

func newTestDispatcher(rec Recorder) *Dispatcher {
	d := NewDispatcher(rec, nil)
	d.Handle(TypeIngestionRequest, func(_ context.Context, req Message) Payload {
		p := req.Payload.(IngestionRequestPayload)
		return IngestionResponsePayload{Status: StatusSuccess, Message: "ingested " + p.FilePath, ChunksCreated: 1}
	})
	d.Handle(TypeQARequest, func(_ context.Context, req Message) Payload {
		p := req.Payload.(QARequestPayload)
		return QAResponsePayload{Status: StatusSuccess, Result: "echo: " + p.Query, SourceChunks: []string{"c"}}
	})
	return d
}

func TestClientOverLocalTransport(t *testing.T) {
	rec := NewMemoryRecorder()
	client := NewClient(NewLocalTransport(newTestDispatcher(rec)), "ui", WithRecorder(rec))
	ctx := context.Background()
	trace := NewTraceID()

	ing, err := client.Ingest(ctx, trace, "/tmp/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, ing.Status)
	assert.Equal(t, "ingested /tmp/doc.txt", ing.Message)

	qa, err := client.Ask(ctx, trace, "what?", 0)
	require.NoError(t, err)
	assert.Equal(t, "echo: what?", qa.Result)
	assert.Equal(t, []string{"c"}, qa.SourceChunks)

	hist, err := rec.History(ctx, trace)
	require.NoError(t, err)
	var states []State
	for _, ev := range hist {
		if ev.Type == TypeIngestionRequest {
			states = append(states, ev.State)
		}
	}
	assert.Equal(t, []State{StateCreated, StateSent, StateReceived, StateProcessed, StateResponded}, states)
	assert.Len(t, hist, 10)
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Handle(TypeQARequest, func(context.Context, Message) Payload { panic("boom") })

	resp, err := d.Dispatch(context.Background(), NewRequest("ui", AgentLLMResponse, "t", QARequestPayload{Query: "q"}))
	require.NoError(t, err)
	p := resp.Payload.(QAResponsePayload)
	assert.Equal(t, StatusFailure, p.Status)
	assert.Contains(t, p.Result, "boom")
	assert.Equal(t, "ui", resp.Receiver)
}

func TestDispatcherWrongPayloadType(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Handle(TypeIngestionRequest, func(context.Context, Message) Payload {
		return QAResponsePayload{Status: StatusSuccess}
	})
	resp, err := d.Dispatch(context.Background(), NewRequest("ui", AgentIngestion, "t", IngestionRequestPayload{FilePath: "/a"}))
	require.NoError(t, err)
	assert.Equal(t, TypeIngestionResponse, resp.Type)
	assert.Equal(t, StatusFailure, resp.Payload.(IngestionResponsePayload).Status)
}

func TestDispatcherNoHandler(t *testing.T) {
	d := NewDispatcher(nil, nil)
	_, err := d.DispatchRaw(context.Background(),
		[]byte(`{"sender":"a","receiver":"b","type":"QA_REQUEST","trace_id":"t","payload":{"query":"q"}}`))
	assert.True(t, ragerr.IsTransport(err))
}

type transportFunc func(ctx context.Context, req Message) (Message, error)

func (f transportFunc) RoundTrip(ctx context.Context, req Message) (Message, error) { return f(ctx, req) }

func TestClientTimeout(t *testing.T) {
	rec := NewMemoryRecorder()
	release := make(chan struct{})
	defer close(release)
	slow := transportFunc(func(ctx context.Context, req Message) (Message, error) {
		<-release
		return Message{}, nil
	})
	client := NewClient(slow, "ui", WithTimeout(20*time.Millisecond), WithRecorder(rec))

	start := time.Now()
	_, err := client.Ask(context.Background(), "t", "q", 0)
	require.Error(t, err)
	assert.True(t, ragerr.IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)

	hist, _ := rec.History(context.Background(), "t")
	require.NotEmpty(t, hist)
	assert.Equal(t, StateTimedOut, hist[len(hist)-1].State)
}

func TestClientRejectsMismatchedResponse(t *testing.T) {
	cases := map[string]func(req Message) Message{
		"other trace": func(req Message) Message {
			resp := NewResponse(req, QAResponsePayload{Status: StatusSuccess, SourceChunks: []string{}})
			resp.TraceID = "other"
			return resp
		},
		"other receiver": func(req Message) Message {
			resp := NewResponse(req, QAResponsePayload{Status: StatusSuccess, SourceChunks: []string{}})
			resp.Receiver = "someone-else"
			return resp
		},
		"wrong type": func(req Message) Message {
			return NewResponse(req, IngestionResponsePayload{Status: StatusSuccess})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tr := transportFunc(func(_ context.Context, req Message) (Message, error) { return mutate(req), nil })
			_, err := NewClient(tr, "ui").Ask(context.Background(), "t", "q", 0)
			assert.True(t, ragerr.IsTransport(err), "got %v", err)
		})
	}
}

func TestClientWrapsTransportErrors(t *testing.T) {
	rec := NewMemoryRecorder()
	tr := transportFunc(func(context.Context, Message) (Message, error) { return Message{}, errors.New("connection reset") })
	_, err := NewClient(tr, "ui", WithRecorder(rec)).Ingest(context.Background(), "t", "/a")
	require.Error(t, err)
	assert.True(t, ragerr.IsTransport(err))

	hist, _ := rec.History(context.Background(), "t")
	assert.Equal(t, StateTransportError, hist[len(hist)-1].State)
}

func TestClientRejectsInvalidRequest(t *testing.T) {
	called := false
	tr := transportFunc(func(context.Context, Message) (Message, error) { called = true; return Message{}, nil })
	_, err := NewClient(tr, "ui").Ingest(context.Background(), "t", "relative.txt")
	assert.True(t, ragerr.IsTransport(err))
	assert.False(t, called)
}

func TestConcurrentCallsKeepCorrelation(t *testing.T) {
	client := NewClient(NewLocalTransport(newTestDispatcher(NewMemoryRecorder())), "ui")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := string(rune('a' + i))
			res, err := client.Ask(context.Background(), NewTraceID(), q, 0)
			assert.NoError(t, err)
			assert.Equal(t, "echo: "+q, res.Result)
		}(i)
	}
	wg.Wait()
}

func TestMarshalWithoutPayload(t *testing.T) {
	_, err := json.Marshal(Message{Sender: "a"})
	assert.Error(t, err)
}
