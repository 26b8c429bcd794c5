package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmad-forge/bmad-core/pkg/config/provider"
)

func TestLoaderFileLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "project-config.yaml")

	configYAML := `
project:
  name: test-project
  description: a test project
onboarding:
  directory: docs/onboarding
agent_assignments:
  mary:
    model: gpt-4o
    provider: openai
cost_management:
  max_monthly_budget: 100
agent_pool:
  max_concurrent_agents: 2
`
	if err := os.WriteFile(configFile, []byte(configYAML), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, loader, err := LoadFile(context.Background(), configFile)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	defer loader.Close()

	if cfg.Project.Name != "test-project" {
		t.Errorf("expected project name 'test-project', got %q", cfg.Project.Name)
	}
	if cfg.AgentPool.MaxConcurrentAgents != 2 {
		t.Errorf("expected max_concurrent_agents=2, got %d", cfg.AgentPool.MaxConcurrentAgents)
	}
	if cfg.AgentAssignments["mary"].Model != "gpt-4o" {
		t.Errorf("expected mary.model=gpt-4o, got %q", cfg.AgentAssignments["mary"].Model)
	}
	if cfg.Decision.EscalationThreshold != 0.75 {
		t.Errorf("expected default escalation threshold 0.75, got %v", cfg.Decision.EscalationThreshold)
	}
}

func TestLoaderFileNotFound(t *testing.T) {
	_, _, err := LoadFile(context.Background(), "/nonexistent/project-config.yaml")
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoaderMissingProjectName(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "project-config.yaml")
	if err := os.WriteFile(configFile, []byte("project:\n  description: no name\n"), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	_, _, err := LoadFile(context.Background(), configFile)
	if err == nil {
		t.Fatal("expected validation to fail without project.name")
	}
}

func TestLoaderExpandsEnvVars(t *testing.T) {
	t.Setenv("BMAD_TEST_BUDGET_MODEL", "gpt-4o-mini")

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "project-config.yaml")
	configYAML := `
project:
  name: env-project
cost_management:
  fallback_model: ${BMAD_TEST_BUDGET_MODEL}
`
	if err := os.WriteFile(configFile, []byte(configYAML), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, loader, err := LoadFile(context.Background(), configFile)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	defer loader.Close()

	if cfg.CostManagement.FallbackModel != "gpt-4o-mini" {
		t.Errorf("expected env var expansion, got %q", cfg.CostManagement.FallbackModel)
	}
}

func TestLoaderWatchReloadsOnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "project-config.yaml")
	if err := os.WriteFile(configFile, []byte("project:\n  name: v1\n"), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	p, err := provider.NewFileProvider(configFile)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	reloaded := make(chan *Config, 1)
	loader := NewLoader(p, WithOnChange(func(cfg *Config) {
		reloaded <- cfg
	}))
	defer loader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go loader.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(configFile, []byte("project:\n  name: v2\n"), 0644); err != nil {
		t.Fatalf("rewrite test config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Project.Name != "v2" {
			t.Errorf("expected reloaded project name v2, got %q", cfg.Project.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
