package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"agentic_rag/backend/go/internal/protocol"
	ragerr "agentic_rag/backend/go/pkg/errors"
	rhttp "agentic_rag/backend/go/pkg/http"
)

// maxResponseBytes caps the size of one response envelope.
const maxResponseBytes = 32 << 20

// HTTP posts envelopes to the agent server's HTTP routes.
type HTTP struct {
	baseURL string
	client  *rhttp.Client
}

var _ protocol.Transport = (*HTTP)(nil)

// NewHTTP targets the server at baseURL, e.g. http://localhost:8090.
func NewHTTP(baseURL string, client *rhttp.Client) *HTTP {
	if client == nil {
		client = rhttp.NewClient(nil)
	}
	return &HTTP{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (t *HTTP) RoundTrip(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	path := protocol.PathFor(req.Type)
	if path == "" {
		return protocol.Message{}, ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("no route serves %s", req.Type), ragerr.FieldTraceID(req.TraceID))
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return protocol.Message{}, err
	}

	resp, err := t.client.PostJSON(ctx, t.baseURL+path, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Message{}, ctxErr
		}
		return protocol.Message{}, ragerr.Wrap(err, ragerr.CodeProtocolTransport,
			fmt.Sprintf("posting to %s", path), ragerr.FieldTraceID(req.TraceID))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return protocol.Message{}, ragerr.Wrap(err, ragerr.CodeProtocolTransport, "reading response",
			ragerr.FieldTraceID(req.TraceID))
	}
	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		code := ragerr.CodeProtocolTransport
		if resp.StatusCode == http.StatusGatewayTimeout {
			code = ragerr.CodeProtocolTimeout
		}
		return protocol.Message{}, ragerr.New(code, fmt.Sprintf("%s: %s", resp.Status, msg),
			ragerr.FieldTraceID(req.TraceID), ragerr.Field("remote_code", eb.Code))
	}
	return protocol.Decode(body)
}
