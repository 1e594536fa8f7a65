package mcp_host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Host 是一个 MCP 客户端主机
// 它可以连接并管理多个 MCP 服务端，聚合所有工具，并按工具名路由调用。
type Host struct {
	mu      sync.RWMutex
	servers map[string]client.MCPClient
	tools   map[string]string // 工具名 -> 服务端名
}

// ConnectOptions 定义了连接到 MCP 服务端的配置项
type ConnectOptions struct {
	ServerName    string
	TransportType string // "stdio" / "sse" / "httpstream"
	Command       string
	Args          []string
	URL           string
	Env           []string
}

// NewHost 创建一个新的 Host 实例
func NewHost() *Host {
	return &Host{
		servers: make(map[string]client.MCPClient),
		tools:   make(map[string]string),
	}
}

// ToolError 表示工具执行成功返回，但结果被服务端标记为错误。
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// ErrToolNotFound 表示没有任何已连接的服务端提供该工具。
var ErrToolNotFound = errors.New("tool not found")

// Connect 根据提供的选项，连接到一个新的 MCP 服务端
func (h *Host) Connect(ctx context.Context, opts ConnectOptions) error {
	var (
		mcpClient client.MCPClient
		err       error
	)

	switch opts.TransportType {
	case "stdio":
		// stdio 客户端在创建时就会启动子进程
		mcpClient, err = client.NewStdioMCPClient(opts.Command, opts.Env, opts.Args...)
		if err != nil {
			return fmt.Errorf("failed to create stdio client: %w", err)
		}
	case "sse", "http-sse":
		c, err := client.NewSSEMCPClient(opts.URL)
		if err != nil {
			return fmt.Errorf("failed to create sse client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sse client: %w", err)
		}
		mcpClient = c
	case "httpstream":
		c, err := client.NewStreamableHttpClient(opts.URL)
		if err != nil {
			return fmt.Errorf("failed to create streamable http client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start streamable http client: %w", err)
		}
		mcpClient = c
	default:
		return fmt.Errorf("unsupported transport type: '%s'", opts.TransportType)
	}

	return h.attach(ctx, opts.ServerName, mcpClient)
}

// ConnectInProcess 直接连接同一进程内的 MCP 服务端，不经过任何网络或子进程。
func (h *Host) ConnectInProcess(ctx context.Context, name string, s *server.MCPServer) error {
	c, err := client.NewInProcessClient(s)
	if err != nil {
		return fmt.Errorf("failed to create in-process client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start in-process client: %w", err)
	}
	return h.attach(ctx, name, c)
}

// attach 完成初始化握手，并登记该服务端提供的工具。
func (h *Host) attach(ctx context.Context, name string, mcpClient client.MCPClient) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.servers[name]; exists {
		_ = mcpClient.Close()
		return fmt.Errorf("server with name '%s' already connected", name)
	}

	initRequest := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "mcp-host",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initRequest); err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("failed to initialize client: %w", err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = mcpClient.Close()
		return fmt.Errorf("failed to list tools of '%s': %w", name, err)
	}
	for _, tool := range toolsResult.Tools {
		// 先连接的服务端优先
		if _, taken := h.tools[tool.Name]; !taken {
			h.tools[tool.Name] = name
		}
	}

	h.servers[name] = mcpClient
	return nil
}

// ToolNames 返回所有已登记的工具名，按字母排序。
func (h *Host) ToolNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAllTools 聚合并返回所有已连接服务端提供的工具列表，单个服务端失败不影响其他服务端。
func (h *Host) GetAllTools(ctx context.Context) ([]*mcp.Tool, map[string]error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var allTools []*mcp.Tool
	errs := make(map[string]error)

	for serverName, c := range h.servers {
		toolsResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			errs[serverName] = err
			continue
		}
		for i := range toolsResult.Tools {
			allTools = append(allTools, &toolsResult.Tools[i])
		}
	}

	return allTools, errs
}

// InvokeTool 调用提供该工具的服务端。
func (h *Host) InvokeTool(ctx context.Context, toolName string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	h.mu.RLock()
	serverName, ok := h.tools[toolName]
	c := h.servers[serverName]
	h.mu.RUnlock()
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s on %s: %w", toolName, serverName, err)
	}
	return result, nil
}

// CallText 调用工具并返回其文本结果。结果被标记为错误时返回 *ToolError。
func (h *Host) CallText(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	result, err := h.InvokeTool(ctx, toolName, args)
	if err != nil {
		return "", err
	}
	text := TextOf(result)
	if result.IsError {
		return "", &ToolError{Tool: toolName, Message: text}
	}
	return text, nil
}

// TextOf 拼接结果中的所有文本内容。
func TextOf(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// CloseAll 关闭所有到服务端的连接并清理资源
func (h *Host) CloseAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, c := range h.servers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.servers = make(map[string]client.MCPClient)
	h.tools = make(map[string]string)
	return errors.Join(errs...)
}
