// Package transport carries protocol messages over MCP, HTTP and Kafka.
package transport

import (
	"context"
	"errors"
	"fmt"

	"agentic_rag/backend/go/internal/protocol"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/mcp_host"
)

// MCP calls the agent server's tools through an MCP host.
type MCP struct {
	host *mcp_host.Host
}

var _ protocol.Transport = (*MCP)(nil)

func NewMCP(host *mcp_host.Host) *MCP {
	return &MCP{host: host}
}

func (t *MCP) RoundTrip(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	tool := protocol.ToolFor(req.Type)
	if tool == "" {
		return protocol.Message{}, ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("no tool serves %s", req.Type), ragerr.FieldTraceID(req.TraceID))
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return protocol.Message{}, err
	}

	text, err := t.host.CallText(ctx, tool, map[string]interface{}{protocol.ToolArgument: string(data)})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Message{}, ctxErr
		}
		var toolErr *mcp_host.ToolError
		if errors.As(err, &toolErr) {
			return protocol.Message{}, ragerr.New(ragerr.CodeProtocolTransport, toolErr.Message,
				ragerr.FieldTraceID(req.TraceID), ragerr.Field("tool", tool))
		}
		return protocol.Message{}, ragerr.Wrap(err, ragerr.CodeProtocolTransport,
			fmt.Sprintf("calling %s", tool), ragerr.FieldTraceID(req.TraceID))
	}
	return protocol.Decode([]byte(text))
}
