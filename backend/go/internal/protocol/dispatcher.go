package protocol

import (
	"context"
	"fmt"
	"sync"

	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"
)

// Handler serves one request type. It reports failures inside the payload it
// returns; it never returns an error.
type Handler func(ctx context.Context, req Message) Payload

// Dispatcher routes decoded requests to their handlers on the serving side.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[MessageType]Handler
	recorder Recorder
	log      *logger.Logger
}

func NewDispatcher(recorder Recorder, log *logger.Logger) *Dispatcher {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{handlers: make(map[MessageType]Handler), recorder: recorder, log: log}
}

// Handle registers h for requests of type t, replacing any previous handler.
func (d *Dispatcher) Handle(t MessageType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Dispatch runs the handler for req and builds the response envelope.
// An error is returned only when req cannot be answered at all.
func (d *Dispatcher) Dispatch(ctx context.Context, req Message) (Message, error) {
	if err := req.Validate(); err != nil {
		return Message{}, err
	}
	respType := req.Type.ResponseType()
	if respType == "" {
		return Message{}, badPayload(fmt.Sprintf("%s is not a request type", req.Type))
	}

	d.mu.RLock()
	h, ok := d.handlers[req.Type]
	d.mu.RUnlock()
	if !ok {
		return Message{}, ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("no handler for %s", req.Type), ragerr.FieldTraceID(req.TraceID))
	}

	log := d.log.WithTraceID(req.TraceID).WithRequest(req.Sender, req.Receiver, string(req.Type))
	d.record(ctx, log, req, StateReceived, "")
	log.Info(fmt.Sprintf("Received %s from %s", req.Type, req.Sender))

	p := d.invoke(ctx, log, h, req)
	if p == nil || p.Type() != respType {
		log.Error(fmt.Sprintf("Handler for %s returned %T", req.Type, p))
		p = FailurePayload(respType, "An error occurred: invalid handler response")
	}

	d.record(ctx, log, req, StateProcessed, "")
	return NewResponse(req, p), nil
}

// DispatchRaw decodes a JSON request, dispatches it and encodes the response.
func (d *Dispatcher) DispatchRaw(ctx context.Context, data []byte) ([]byte, error) {
	req, err := Decode(data)
	if err != nil {
		d.log.WithError(err).Warn("Rejected malformed message")
		return nil, err
	}
	resp, err := d.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return Encode(resp)
}

func (d *Dispatcher) invoke(ctx context.Context, log *logger.Logger, h Handler, req Message) (p Payload) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(fmt.Sprintf("Handler for %s panicked: %v", req.Type, rec))
			p = FailurePayload(req.Type.ResponseType(), fmt.Sprintf("An error occurred: %v", rec))
		}
	}()
	return h(ctx, req)
}

func (d *Dispatcher) record(ctx context.Context, log *logger.Logger, req Message, state State, detail string) {
	ev := Event{TraceID: req.TraceID, Type: req.Type, State: state, Detail: detail}
	if err := d.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		log.WithError(err).Warn(fmt.Sprintf("Could not record %s", state))
	}
}

// FailurePayload builds the failure body of the given response type.
func FailurePayload(respType MessageType, msg string) Payload {
	switch respType {
	case TypeIngestionResponse:
		return IngestionResponsePayload{Status: StatusFailure, Message: msg}
	case TypeQAResponse:
		return QAResponsePayload{Status: StatusFailure, Result: msg, SourceChunks: []string{}}
	}
	return nil
}

// LocalTransport delivers requests to a Dispatcher in the same process. Every
// message still goes through the JSON codec.
type LocalTransport struct {
	d *Dispatcher
}

var _ Transport = (*LocalTransport)(nil)

func NewLocalTransport(d *Dispatcher) *LocalTransport {
	return &LocalTransport{d: d}
}

func (t *LocalTransport) RoundTrip(ctx context.Context, req Message) (Message, error) {
	data, err := Encode(req)
	if err != nil {
		return Message{}, err
	}
	out, err := t.d.DispatchRaw(ctx, data)
	if err != nil {
		return Message{}, err
	}
	return Decode(out)
}
