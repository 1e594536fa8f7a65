package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"
)

// DefaultTimeout bounds a call when the client is given none.
const DefaultTimeout = 120 * time.Second

// Transport carries one request to its receiver and returns the reply.
type Transport interface {
	RoundTrip(ctx context.Context, req Message) (Message, error)
}

// Client issues requests over a Transport, enforces the call timeout and
// checks that every reply answers the request it was sent for.
type Client struct {
	transport Transport
	sender    string
	timeout   time.Duration
	recorder  Recorder
	log       *logger.Logger
}

type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

func WithClientLogger(log *logger.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a client that sends as sender.
func NewClient(t Transport, sender string, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		sender:    sender,
		timeout:   DefaultTimeout,
		recorder:  NopRecorder{},
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Sender() string { return c.sender }

// Call sends req and waits for the matching response or the timeout.
func (c *Client) Call(ctx context.Context, req Message) (Message, error) {
	if !req.Type.IsRequest() {
		return Message{}, badPayload(fmt.Sprintf("%s is not a request type", req.Type))
	}
	if err := req.Validate(); err != nil {
		return Message{}, err
	}
	log := c.log.WithTraceID(req.TraceID).WithRequest(req.Sender, req.Receiver, string(req.Type))

	c.record(ctx, log, req, StateCreated, "")
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	c.record(ctx, log, req, StateSent, "")

	type reply struct {
		msg Message
		err error
	}
	done := make(chan reply, 1)
	go func() {
		msg, err := c.transport.RoundTrip(callCtx, req)
		done <- reply{msg: msg, err: err}
	}()

	var resp Message
	select {
	case <-callCtx.Done():
		return Message{}, c.fail(ctx, log, req, callCtx.Err())
	case r := <-done:
		if r.err != nil {
			return Message{}, c.fail(ctx, log, req, r.err)
		}
		resp = r.msg
	}

	if err := CheckResponse(req, resp); err != nil {
		return Message{}, c.fail(ctx, log, req, err)
	}
	if err := resp.Validate(); err != nil {
		return Message{}, c.fail(ctx, log, req, err)
	}
	c.record(ctx, log, req, StateResponded, "")
	log.Debug(fmt.Sprintf("Received %s from %s", resp.Type, resp.Sender))
	return resp, nil
}

// Ingest asks the ingestion agent to index ref under traceID.
func (c *Client) Ingest(ctx context.Context, traceID, ref string) (IngestionResponsePayload, error) {
	req := NewRequest(c.sender, AgentIngestion, traceID, IngestionRequestPayload{FilePath: ref})
	resp, err := c.Call(ctx, req)
	if err != nil {
		return IngestionResponsePayload{}, err
	}
	p, ok := resp.Payload.(IngestionResponsePayload)
	if !ok {
		return IngestionResponsePayload{}, badPayload(fmt.Sprintf("unexpected payload %T", resp.Payload))
	}
	return p, nil
}

// Ask sends a question under traceID. k of zero leaves the server default.
func (c *Client) Ask(ctx context.Context, traceID, query string, k int) (QAResponsePayload, error) {
	req := NewRequest(c.sender, AgentLLMResponse, traceID, QARequestPayload{Query: query, K: k})
	resp, err := c.Call(ctx, req)
	if err != nil {
		return QAResponsePayload{}, err
	}
	p, ok := resp.Payload.(QAResponsePayload)
	if !ok {
		return QAResponsePayload{}, badPayload(fmt.Sprintf("unexpected payload %T", resp.Payload))
	}
	return p, nil
}

// fail classifies err as a timeout or a transport error and records it.
func (c *Client) fail(ctx context.Context, log *logger.Logger, req Message, err error) error {
	state := StateTransportError
	switch {
	case ragerr.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		state = StateTimedOut
		if !ragerr.IsTimeout(err) {
			err = ragerr.Wrap(err, ragerr.CodeProtocolTimeout,
				fmt.Sprintf("no response from %s within %s", req.Receiver, c.timeout),
				ragerr.FieldTraceID(req.TraceID))
		}
	case ragerr.CodeOf(err) != ragerr.CodeProtocolTransport:
		err = ragerr.Wrap(err, ragerr.CodeProtocolTransport,
			fmt.Sprintf("calling %s", req.Receiver), ragerr.FieldTraceID(req.TraceID))
	}
	c.record(ctx, log, req, state, err.Error())
	log.WithError(err).Warn(fmt.Sprintf("%s to %s failed", req.Type, req.Receiver))
	return err
}

// record never fails the call. Lifecycle bookkeeping is best effort.
func (c *Client) record(ctx context.Context, log *logger.Logger, req Message, state State, detail string) {
	ev := Event{TraceID: req.TraceID, Type: req.Type, State: state, Detail: detail}
	if err := c.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		log.WithError(err).Warn(fmt.Sprintf("Could not record %s", state))
	}
}
