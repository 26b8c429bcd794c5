package agentpool

import "testing"

func TestNewMCPToolsetRequiresCommand(t *testing.T) {
	if _, err := NewMCPToolset(MCPToolConfig{Name: "git-probe"}); err == nil {
		t.Error("expected error when command is empty")
	}
}

func TestNewMCPToolsetAccepted(t *testing.T) {
	ts, err := NewMCPToolset(MCPToolConfig{Name: "git-probe", Command: "git-mcp-server"})
	if err != nil {
		t.Fatalf("NewMCPToolset: %v", err)
	}
	if ts == nil {
		t.Fatal("expected non-nil toolset")
	}
}

func TestMCPToolsetCloseBeforeConnectIsNoOp(t *testing.T) {
	ts, err := NewMCPToolset(MCPToolConfig{Name: "git-probe", Command: "git-mcp-server"})
	if err != nil {
		t.Fatalf("NewMCPToolset: %v", err)
	}
	if err := ts.Close(); err != nil {
		t.Errorf("expected no error closing an unconnected toolset, got %v", err)
	}
}
