package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/util"

	"github.com/go-redis/redis/v8"
)

// State is a lifecycle state of one logical request.
type State string

const (
	StateCreated        State = "CREATED"
	StateSent           State = "SENT"
	StateReceived       State = "RECEIVED"
	StateProcessed      State = "PROCESSED"
	StateResponded      State = "RESPONDED"
	StateTimedOut       State = "TIMED_OUT"
	StateTransportError State = "TRANSPORT_ERROR"
)

// Terminal reports whether no further transition may follow s.
func (s State) Terminal() bool {
	return s == StateResponded || s == StateTimedOut || s == StateTransportError
}

// ErrIllegalTransition is returned when an event does not follow the lifecycle.
var ErrIllegalTransition = errors.New("illegal trace transition")

// The client side records CREATED, SENT and a terminal state. The serving side
// records RECEIVED and PROCESSED. When both share a recorder the events interleave.
var transitions = map[State][]State{
	"":             {StateCreated, StateReceived},
	StateCreated:   {StateSent, StateTransportError},
	StateSent:      {StateReceived, StateResponded, StateTimedOut, StateTransportError},
	StateReceived:  {StateProcessed, StateTimedOut, StateTransportError},
	StateProcessed: {StateResponded, StateTimedOut, StateTransportError},
}

// CanTransition reports whether to may follow from. from is "" for a request not seen yet.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// predecessors lists every state to may follow, sorted.
func predecessors(to State) []State {
	var out []State
	for from, next := range transitions {
		for _, s := range next {
			if s == to {
				out = append(out, from)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Event is one recorded lifecycle transition.
// Type is the request type, because an ingestion and a QA request share a trace id.
type Event struct {
	TraceID string      `json:"trace_id"`
	Type    MessageType `json:"type"`
	State   State       `json:"state"`
	At      time.Time   `json:"at"`
	Detail  string      `json:"detail,omitempty"`
}

// Recorder keeps the lifecycle log of traces.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	History(ctx context.Context, traceID string) ([]Event, error)
}

func illegal(ev Event, from State) error {
	shown := string(from)
	if shown == "" {
		shown = "<none>"
	}
	return ragerr.Wrap(ErrIllegalTransition, ragerr.CodeInternal,
		fmt.Sprintf("%s of %s cannot follow %s", ev.State, ev.Type, shown),
		ragerr.FieldTraceID(ev.TraceID))
}

type lifecycleKey struct {
	trace string
	typ   MessageType
}

// DefaultMaxTraces bounds a MemoryRecorder built without WithMaxTraces.
const DefaultMaxTraces = 10000

// traceLog is the state of one trace. It is only touched under MemoryRecorder.mu.
type traceLog struct {
	states map[MessageType]State
	events []Event
}

// MemoryRecorder keeps the most recently used traces in process memory.
// Older traces are evicted once the limit is reached or their TTL passes.
type MemoryRecorder struct {
	mu     sync.Mutex
	traces *util.LRUCache[string, *traceLog]
}

var _ Recorder = (*MemoryRecorder)(nil)

// MemoryRecorderOption configures a MemoryRecorder.
type MemoryRecorderOption func(*util.CacheConfig)

// WithMaxTraces sets how many traces are kept. Values below one keep the default.
func WithMaxTraces(n int) MemoryRecorderOption {
	return func(c *util.CacheConfig) {
		if n > 0 {
			c.Capacity = n
		}
	}
}

// WithTraceTTL drops traces that were not touched for ttl. Zero keeps them until evicted.
func WithTraceTTL(ttl time.Duration) MemoryRecorderOption {
	return func(c *util.CacheConfig) { c.TTL = ttl }
}

func NewMemoryRecorder(opts ...MemoryRecorderOption) *MemoryRecorder {
	cfg := util.CacheConfig{Capacity: DefaultMaxTraces}
	for _, opt := range opts {
		opt(&cfg)
	}
	traces, err := util.NewWithConfig[string, *traceLog](cfg)
	if err != nil {
		// Capacity is always positive here.
		panic(err)
	}
	return &MemoryRecorder{traces: traces}
}

func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tl, ok := r.traces.Get(ev.TraceID)
	if !ok {
		tl = &traceLog{states: make(map[MessageType]State)}
	}
	from := tl.states[ev.Type]
	if !CanTransition(from, ev.State) {
		return illegal(ev, from)
	}
	tl.states[ev.Type] = ev.State
	tl.events = append(tl.events, ev)
	r.traces.Put(ev.TraceID, tl, 1)
	return nil
}

func (r *MemoryRecorder) History(_ context.Context, traceID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tl, ok := r.traces.Get(traceID)
	if !ok {
		return []Event{}, nil
	}
	out := make([]Event, len(tl.events))
	copy(out, tl.events)
	return out, nil
}

// Len returns the number of traces currently held.
func (r *MemoryRecorder) Len() int {
	return r.traces.Len()
}

// recordScript checks the current state and appends the event atomically.
// KEYS: state hash, event list. ARGV: request type, new state, allowed
// predecessors ("-" for none), event json, ttl in ms.
var recordScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then cur = '-' end
for s in string.gmatch(ARGV[3], '[^,]+') do
  if s == cur then
    redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
    redis.call('RPUSH', KEYS[2], ARGV[4])
    local ttl = tonumber(ARGV[5])
    if ttl > 0 then
      redis.call('PEXPIRE', KEYS[1], ttl)
      redis.call('PEXPIRE', KEYS[2], ttl)
    end
    return 'OK'
  end
end
return cur
`)

// RedisRecorder keeps traces in Redis so that every agent process shares them.
type RedisRecorder struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ Recorder = (*RedisRecorder)(nil)

// NewRedisRecorder stores traces under prefix. A ttl of zero keeps them forever.
func NewRedisRecorder(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisRecorder {
	if prefix == "" {
		prefix = "rag:trace"
	}
	return &RedisRecorder{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisRecorder) stateKey(traceID string) string {
	return fmt.Sprintf("%s:{%s}:state", r.prefix, traceID)
}

func (r *RedisRecorder) eventsKey(traceID string) string {
	return fmt.Sprintf("%s:{%s}:events", r.prefix, traceID)
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeInternal, "encoding trace event", ragerr.FieldTraceID(ev.TraceID))
	}

	allowed := make([]string, 0, 2)
	for _, s := range predecessors(ev.State) {
		if s == "" {
			allowed = append(allowed, "-")
			continue
		}
		allowed = append(allowed, string(s))
	}

	res, err := recordScript.Run(ctx, r.rdb,
		[]string{r.stateKey(ev.TraceID), r.eventsKey(ev.TraceID)},
		string(ev.Type), string(ev.State), strings.Join(allowed, ","), string(raw), r.ttl.Milliseconds(),
	).Text()
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "recording trace event", ragerr.FieldTraceID(ev.TraceID))
	}
	if res != "OK" {
		from := State(res)
		if res == "-" {
			from = ""
		}
		return illegal(ev, from)
	}
	return nil
}

func (r *RedisRecorder) History(ctx context.Context, traceID string) ([]Event, error) {
	items, err := r.rdb.LRange(ctx, r.eventsKey(traceID), 0, -1).Result()
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodePersistence, "reading trace history", ragerr.FieldTraceID(traceID))
	}
	out := make([]Event, 0, len(items))
	for _, item := range items {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, ragerr.Wrap(err, ragerr.CodePersistence, "decoding trace event", ragerr.FieldTraceID(traceID))
		}
		out = append(out, ev)
	}
	return out, nil
}

// NopRecorder drops every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) error { return nil }

func (NopRecorder) History(context.Context, string) ([]Event, error) { return nil, nil }
