package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brookwillow/kiwi/pkg/config"
	"github.com/brookwillow/kiwi/pkg/logger"
	"github.com/brookwillow/kiwi/pkg/vehicle"
)

const (
	mcpStartupTimeout = 8 * time.Second
	mcpCallTimeout    = 30 * time.Second
)

// LoadMCPTools discovers tools from configured external MCP servers and
// returns them as registry tools under the external category. Discovery is
// best-effort across servers: individual failures are aggregated.
func LoadMCPTools(ctx context.Context, servers []config.MCPServerConfig) ([]*Tool, error) {
	var loaded []*Tool
	var errs []error

	for _, serverCfg := range servers {
		if !serverCfg.Enabled {
			continue
		}
		serverTools, err := loadServerTools(ctx, serverCfg)
		loaded = append(loaded, serverTools...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return loaded, errors.Join(errs...)
}

func loadServerTools(ctx context.Context, serverCfg config.MCPServerConfig) ([]*Tool, error) {
	client := newRemoteClient(serverCfg)

	connectCtx, cancel := context.WithTimeout(ctx, mcpStartupTimeout)
	defer cancel()

	remoteTools, err := client.listTools(connectCtx)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q discovery failed: %w", serverCfg.Name, err)
	}

	loaded := make([]*Tool, 0, len(remoteTools))
	for _, rt := range remoteTools {
		if rt == nil || strings.TrimSpace(rt.Name) == "" {
			continue
		}
		remoteName := rt.Name
		desc := rt.Description
		if desc == "" {
			desc = fmt.Sprintf("MCP tool from %s server", serverCfg.Name)
		}
		loaded = append(loaded, &Tool{
			Name:        fmt.Sprintf("mcp_%s_%s", serverCfg.Name, remoteName),
			Description: fmt.Sprintf("[MCP:%s] %s", serverCfg.Name, desc),
			Category:    CategoryExternal,
			Parameters:  parametersFromSchema(rt.InputSchema),
			Handler:     client.callHandler(remoteName),
		})
	}
	logger.InfoCF("tools", "Loaded MCP server tools",
		map[string]any{"server": serverCfg.Name, "count": len(loaded)})
	return loaded, nil
}

type remoteClient struct {
	cfg    config.MCPServerConfig
	client *mcp.Client
}

func newRemoteClient(cfg config.MCPServerConfig) *remoteClient {
	return &remoteClient{
		cfg: cfg,
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "kiwi-" + cfg.Name,
			Version: "v1.0.0",
		}, nil),
	}
}

func (c *remoteClient) connect(ctx context.Context) (*mcp.ClientSession, error) {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	if len(c.cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range c.cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	cmd.Stderr = os.Stderr

	session, err := c.client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect mcp server %q: %w", c.cfg.Name, err)
	}
	return session, nil
}

func (c *remoteClient) listTools(ctx context.Context) ([]*mcp.Tool, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	all := make([]*mcp.Tool, 0)
	cursor := ""
	for {
		params := &mcp.ListToolsParams{}
		if cursor != "" {
			params.Cursor = cursor
		}
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return all, nil
}

// callHandler returns a Handler that proxies execution to the remote server.
// Remote tools never touch vehicle state.
func (c *remoteClient) callHandler(remoteName string) Handler {
	return func(ctx context.Context, args map[string]any, _ *vehicle.Store) *Result {
		return c.callRemote(ctx, remoteName, args)
	}
}

func (c *remoteClient) callRemote(ctx context.Context, remoteName string, args map[string]any) *Result {
	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	session, err := c.connect(callCtx)
	if err != nil {
		return Fail("MCP tool execution failed: " + err.Error())
	}
	defer session.Close()

	result, err := session.CallTool(callCtx, &mcp.CallToolParams{
		Name:      remoteName,
		Arguments: args,
	})
	if err != nil {
		return Fail(fmt.Sprintf("MCP tool execution failed: %v", err))
	}
	if result == nil {
		return Fail("MCP tool returned no result")
	}

	text := extractContentText(result.Content)
	if result.IsError {
		return Fail("MCP tool returned error: " + text)
	}
	return OK(text)
}

func extractContentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[Content: %T]", v))
		}
	}
	return strings.Join(parts, "\n")
}

// parametersFromSchema converts a remote JSON schema into the local parameter
// list. Anything unrecognized falls back to an untyped optional parameter.
func parametersFromSchema(schema any) []Parameter {
	schemaMap := schemaToMap(schema)
	props, _ := schemaMap["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	required := make(map[string]bool)
	switch req := schemaMap["required"].(type) {
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	case []string:
		for _, s := range req {
			required[s] = true
		}
	}

	params := make([]Parameter, 0, len(props))
	for name, raw := range props {
		p := Parameter{Name: name, Type: "string", Required: required[name]}
		if prop, ok := raw.(map[string]any); ok {
			if t, ok := prop["type"].(string); ok {
				p.Type = t
			}
			if d, ok := prop["description"].(string); ok {
				p.Description = d
			}
			if e, ok := prop["enum"].([]any); ok {
				p.Enum = e
			}
			if d, ok := prop["default"]; ok {
				p.Default = d
			}
		}
		params = append(params, p)
	}
	return params
}

func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}
