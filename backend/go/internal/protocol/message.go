// Package protocol implements the agent message envelope exchanged between the
// UI and the RAG agents, and the request/response lifecycle around it.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/google/uuid"
)

// MessageType tags the payload variant carried by a Message.
type MessageType string

const (
	TypeIngestionRequest  MessageType = "INGESTION_REQUEST"
	TypeIngestionResponse MessageType = "INGESTION_RESPONSE"
	TypeQARequest         MessageType = "QA_REQUEST"
	TypeQAResponse        MessageType = "QA_RESPONSE"
)

// Agent names used as sender and receiver.
const (
	AgentIngestion   = "IngestionAgent"
	AgentRetrieval   = "RetrievalAgent"
	AgentLLMResponse = "LLMResponseAgent"
	AgentCLI         = "RagCLI"
)

// Payload status values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Remote operations exposed by the agent server, one per request type.
const (
	ServerName = "RAG_Agent_Server"
	ToolIngest = "ingest_and_store_document"
	ToolAnswer = "answer_question"
	// ToolArgument is the single string argument carrying the JSON envelope.
	ToolArgument = "message"
)

// HTTP routes of the same operations.
const (
	PathIngest = "/api/v1/agent/ingest"
	PathAnswer = "/api/v1/agent/answer"
)

// ToolFor returns the remote operation serving request type t.
func ToolFor(t MessageType) string {
	switch t {
	case TypeIngestionRequest:
		return ToolIngest
	case TypeQARequest:
		return ToolAnswer
	}
	return ""
}

// PathFor returns the HTTP route serving request type t.
func PathFor(t MessageType) string {
	switch t {
	case TypeIngestionRequest:
		return PathIngest
	case TypeQARequest:
		return PathAnswer
	}
	return ""
}

// IsRequest reports whether t is one of the request types.
func (t MessageType) IsRequest() bool {
	return t == TypeIngestionRequest || t == TypeQARequest
}

// ResponseType returns the type a response to t must carry, or "" when t is not a request.
func (t MessageType) ResponseType() MessageType {
	switch t {
	case TypeIngestionRequest:
		return TypeIngestionResponse
	case TypeQARequest:
		return TypeQAResponse
	}
	return ""
}

// Payload is one of the typed message bodies.
type Payload interface {
	Type() MessageType
	Validate() error
}

// IngestionRequestPayload asks the ingestion agent to index one document.
type IngestionRequestPayload struct {
	FilePath string `json:"file_path"`
}

func (IngestionRequestPayload) Type() MessageType { return TypeIngestionRequest }

// Validate accepts an absolute local path, a minio:// object reference or an http(s) URL.
func (p IngestionRequestPayload) Validate() error {
	ref := strings.TrimSpace(p.FilePath)
	switch {
	case ref == "":
		return badPayload("file_path is required")
	case strings.HasPrefix(ref, "minio://"),
		strings.HasPrefix(ref, "http://"),
		strings.HasPrefix(ref, "https://"):
		return nil
	case !filepath.IsAbs(ref):
		return badPayload(fmt.Sprintf("file_path %q must be absolute", ref))
	}
	return nil
}

// IngestionResponsePayload reports the ingestion outcome.
type IngestionResponsePayload struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	ChunksCreated int    `json:"chunks_created,omitempty"`
}

func (IngestionResponsePayload) Type() MessageType { return TypeIngestionResponse }

func (p IngestionResponsePayload) Validate() error { return validStatus(p.Status) }

// QARequestPayload asks the retrieval agent to answer a question.
type QARequestPayload struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

func (QARequestPayload) Type() MessageType { return TypeQARequest }

func (p QARequestPayload) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return badPayload("query is required")
	}
	if p.K < 0 {
		return badPayload("k must not be negative")
	}
	return nil
}

// QAResponsePayload carries the answer and the chunk texts it was built from.
type QAResponsePayload struct {
	Status       string   `json:"status"`
	Result       string   `json:"result"`
	SourceChunks []string `json:"source_chunks"`
}

func (QAResponsePayload) Type() MessageType { return TypeQAResponse }

func (p QAResponsePayload) Validate() error { return validStatus(p.Status) }

// Message is the wire envelope. Payload always matches Type.
type Message struct {
	Sender   string
	Receiver string
	Type     MessageType
	TraceID  string
	Payload  Payload
}

type wireMessage struct {
	Sender   string          `json:"sender"`
	Receiver string          `json:"receiver"`
	Type     MessageType     `json:"type"`
	TraceID  string          `json:"trace_id"`
	Payload  json.RawMessage `json:"payload"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, badPayload("message has no payload")
	}
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{
		Sender:   m.Sender,
		Receiver: m.Receiver,
		Type:     m.Type,
		TraceID:  m.TraceID,
		Payload:  raw,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := strictDecode(data, &w); err != nil {
		return err
	}
	if len(w.Payload) == 0 || bytes.Equal(w.Payload, []byte("null")) {
		return badPayload("payload is required")
	}

	var p Payload
	switch w.Type {
	case TypeIngestionRequest:
		var v IngestionRequestPayload
		if err := strictDecode(w.Payload, &v); err != nil {
			return err
		}
		p = v
	case TypeIngestionResponse:
		var v IngestionResponsePayload
		if err := strictDecode(w.Payload, &v); err != nil {
			return err
		}
		p = v
	case TypeQARequest:
		var v QARequestPayload
		if err := strictDecode(w.Payload, &v); err != nil {
			return err
		}
		p = v
	case TypeQAResponse:
		var v QAResponsePayload
		if err := strictDecode(w.Payload, &v); err != nil {
			return err
		}
		if v.SourceChunks == nil {
			v.SourceChunks = []string{}
		}
		p = v
	default:
		return badPayload(fmt.Sprintf("unknown message type %q", w.Type))
	}

	*m = Message{Sender: w.Sender, Receiver: w.Receiver, Type: w.Type, TraceID: w.TraceID, Payload: p}
	return nil
}

// Validate checks the envelope fields and the payload shape.
func (m Message) Validate() error {
	switch {
	case m.Sender == "":
		return badPayload("sender is required")
	case m.Receiver == "":
		return badPayload("receiver is required")
	case m.TraceID == "":
		return badPayload("trace_id is required")
	case m.Payload == nil:
		return badPayload("payload is required")
	case m.Payload.Type() != m.Type:
		return badPayload(fmt.Sprintf("payload of %s does not match type %s", m.Payload.Type(), m.Type))
	}
	if err := m.Payload.Validate(); err != nil {
		return ragerr.Wrap(err, ragerr.CodeProtocolTransport, "invalid payload", ragerr.FieldTraceID(m.TraceID))
	}
	return nil
}

// Encode validates m and renders it as JSON.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		if ragerr.CodeOf(err) != "" {
			return nil, err
		}
		return nil, ragerr.Wrap(err, ragerr.CodeProtocolTransport, "encoding message", ragerr.FieldTraceID(m.TraceID))
	}
	return data, nil
}

// Decode parses and validates a JSON envelope. Every failure is a transport error.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		if ragerr.CodeOf(err) != "" {
			return Message{}, err
		}
		return Message{}, ragerr.Wrap(err, ragerr.CodeProtocolTransport, "malformed message")
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// NewTraceID returns a fresh id for one user action.
func NewTraceID() string {
	return uuid.NewString()
}

// NewRequest builds a request envelope addressed to receiver.
func NewRequest(sender, receiver, traceID string, p Payload) Message {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return Message{Sender: sender, Receiver: receiver, Type: p.Type(), TraceID: traceID, Payload: p}
}

// NewResponse answers req. The response goes back to the request's sender under
// the same trace id, sent by the agent the request was addressed to.
func NewResponse(req Message, p Payload) Message {
	return Message{
		Sender:   req.Receiver,
		Receiver: req.Sender,
		Type:     p.Type(),
		TraceID:  req.TraceID,
		Payload:  p,
	}
}

// CheckResponse verifies that resp answers req.
func CheckResponse(req, resp Message) error {
	switch {
	case resp.TraceID != req.TraceID:
		return ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("response trace id %q does not match request", resp.TraceID),
			ragerr.FieldTraceID(req.TraceID))
	case resp.Receiver != req.Sender:
		return ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("response addressed to %q, expected %q", resp.Receiver, req.Sender),
			ragerr.FieldTraceID(req.TraceID))
	case resp.Type != req.Type.ResponseType():
		return ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("response type %s does not answer %s", resp.Type, req.Type),
			ragerr.FieldTraceID(req.TraceID))
	}
	return nil
}

func strictDecode(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ragerr.Wrap(err, ragerr.CodeProtocolTransport, "malformed message")
	}
	if dec.More() {
		return badPayload("trailing data after message")
	}
	return nil
}

func validStatus(s string) error {
	if s != StatusSuccess && s != StatusFailure {
		return badPayload(fmt.Sprintf("status %q is not success or failure", s))
	}
	return nil
}

func badPayload(msg string) error {
	return ragerr.New(ragerr.CodeProtocolTransport, msg)
}
