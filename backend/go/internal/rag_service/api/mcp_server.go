package api

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/config"
	"agentic_rag/backend/go/internal/protocol"
	ragerr "agentic_rag/backend/go/pkg/errors"
	"agentic_rag/backend/go/pkg/logger"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes the two agent operations as MCP tools. Each tool takes
// the JSON request envelope as its only argument and returns the response envelope as text.
func NewMCPServer(d *protocol.Dispatcher, version string, log *logger.Logger) *server.MCPServer {
	if log == nil {
		log = logger.Discard()
	}
	s := server.NewMCPServer(protocol.ServerName, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(protocol.ToolIngest,
		mcp.WithDescription("Loads a document from the given file path, splits it into chunks, "+
			"creates embeddings, and stores them in the vector database. "+
			"This tool prepares documents for the question-answering tool."),
		mcp.WithString(protocol.ToolArgument, mcp.Required(),
			mcp.Description("JSON INGESTION_REQUEST envelope with payload {file_path}.")),
	), toolHandler(d, protocol.TypeIngestionRequest, log))

	s.AddTool(mcp.NewTool(protocol.ToolAnswer,
		mcp.WithDescription("Answers a question using the documents stored in the vector database."),
		mcp.WithString(protocol.ToolArgument, mcp.Required(),
			mcp.Description("JSON QA_REQUEST envelope with payload {query}.")),
	), toolHandler(d, protocol.TypeQARequest, log))

	return s
}

func toolHandler(d *protocol.Dispatcher, want protocol.MessageType, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := request.RequireString(protocol.ToolArgument)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := serveEnvelope(ctx, d, want, []byte(raw))
		if err != nil {
			log.WithError(err).Warn(fmt.Sprintf("Rejected %s call", protocol.ToolFor(want)))
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", ragerr.CodeOf(err), err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// serveEnvelope decodes one request of type want, dispatches it and encodes the response.
func serveEnvelope(ctx context.Context, d *protocol.Dispatcher, want protocol.MessageType, raw []byte) ([]byte, error) {
	req, err := protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	if req.Type != want {
		return nil, ragerr.New(ragerr.CodeProtocolTransport,
			fmt.Sprintf("%s is served by %s, not %s", req.Type, protocol.ToolFor(req.Type), protocol.ToolFor(want)),
			ragerr.FieldTraceID(req.TraceID))
	}
	resp, err := d.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return protocol.Encode(resp)
}

// ServeMCP runs s on the configured transport until it stops.
// stdio blocks on stdin; sse and httpstream listen on cfg.Port.
func ServeMCP(s *server.MCPServer, cfg config.MCPTransportConfig, log *logger.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	switch cfg.Type {
	case "sse":
		log.Info(fmt.Sprintf("Starting %s SSE server on %s", protocol.ServerName, addr))
		return server.NewSSEServer(s).Start(addr)
	case "httpstream":
		log.Info(fmt.Sprintf("Starting %s streamable HTTP server on %s", protocol.ServerName, addr))
		return server.NewStreamableHTTPServer(s).Start(addr)
	case "stdio", "":
		log.Info(fmt.Sprintf("Starting %s on stdio", protocol.ServerName))
		return server.ServeStdio(s)
	default:
		return ragerr.New(ragerr.CodeConfigInvalid, fmt.Sprintf("unsupported mcp transport %q", cfg.Type))
	}
}
