// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agentpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// MCPToolConfig configures one MCP tool server an agent may call into —
// e.g. a git-metadata probe, a linter, or a dependency-graph query tool.
// Only the stdio transport is supported: every MCP server this pipeline
// talks to runs as a local subprocess, never a remote HTTP/SSE endpoint.
type MCPToolConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// MCPToolset lazily connects to an MCP server over stdio on first Tools()
// or Call() and exposes its tools to agent invocations.
type MCPToolset struct {
	cfg MCPToolConfig

	mu        sync.Mutex
	client    *client.Client
	connected bool
	tools     []mcp.Tool
}

// NewMCPToolset constructs a toolset for cfg. The connection is not
// established until first use.
func NewMCPToolset(cfg MCPToolConfig) (*MCPToolset, error) {
	if cfg.Command == "" {
		return nil, errs.Validationf(component, "NewMCPToolset", "command is required")
	}
	return &MCPToolset{cfg: cfg}, nil
}

// Tools returns the tools the MCP server exposes, connecting lazily.
func (t *MCPToolset) Tools(ctx context.Context) ([]mcp.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, err
		}
	}
	return t.tools, nil
}

func (t *MCPToolset) connect(ctx context.Context) error {
	env := make([]string, 0, len(t.cfg.Env))
	for k, v := range t.cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, env, t.cfg.Args...)
	if err != nil {
		return errs.Externalf(component, "connect", err, "create MCP client %s", t.cfg.Name)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return errs.Externalf(component, "connect", err, "start MCP client %s", t.cfg.Name)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "bmad-core", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return errs.Externalf(component, "connect", err, "initialize MCP client %s", t.cfg.Name)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return errs.Externalf(component, "connect", err, "list tools from %s", t.cfg.Name)
	}

	t.client = mcpClient
	t.tools = listResp.Tools
	t.connected = true
	return nil
}

// Call invokes tool name with args, connecting lazily if needed.
func (t *MCPToolset) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	t.mu.Lock()
	if !t.connected {
		if err := t.connect(ctx); err != nil {
			t.mu.Unlock()
			return "", err
		}
	}
	mcpClient := t.client
	t.mu.Unlock()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return "", errs.Externalf(component, "Call", err, "call MCP tool %s on %s", name, t.cfg.Name)
	}

	if resp.IsError {
		for _, content := range resp.Content {
			if tc, ok := content.(mcp.TextContent); ok {
				return "", errs.Externalf(component, "Call", fmt.Errorf("%s", tc.Text), "MCP tool %s returned an error", name)
			}
		}
		return "", errs.Externalf(component, "Call", fmt.Errorf("unknown error"), "MCP tool %s returned an error", name)
	}

	var text string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text, nil
}

// Close tears down the MCP connection, if established.
func (t *MCPToolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.connected = false
	t.tools = nil
	return err
}
