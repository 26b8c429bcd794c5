package template

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoaderUsesDefaultWhenNoCustomPath(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.md", "---\ntitle: x\n---\ndefault content\n")

	loader := NewLoader(nil)
	result, err := loader.Load(defaultPath, "", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Source != "default" {
		t.Fatalf("got source %q", result.Source)
	}
	if result.Content != "---\ntitle: x\n---\ndefault content\n" {
		t.Fatalf("got %q", result.Content)
	}
}

func TestLoaderUsesValidCustom(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.md", "---\ntitle: x\n---\ndefault content\n")
	customDoc := "---\ntitle: custom\n---\n<!-- SECTION: overview -->\nx\n<!-- END SECTION: overview -->\n"
	customPath := writeFile(t, dir, "custom.md", customDoc)

	loader := NewLoader(nil)
	result, err := loader.Load(defaultPath, customPath, []string{"overview"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Source != "custom" {
		t.Fatalf("got source %q", result.Source)
	}
	if result.Content != customDoc {
		t.Fatalf("got %q", result.Content)
	}
}

func TestLoaderFallsBackWhenCustomInvalid(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.md", "---\ntitle: x\n---\ndefault content\n")
	// missing required section marker pair
	customPath := writeFile(t, dir, "custom.md", "---\ntitle: custom\n---\nno sections here\n")

	loader := NewLoader(nil)
	result, err := loader.Load(defaultPath, customPath, []string{"overview"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Source != "default" {
		t.Fatalf("expected fallback to default, got source %q", result.Source)
	}
}

func TestLoaderFallsBackWhenCustomUnreadable(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "default.md", "---\ntitle: x\n---\ndefault content\n")

	loader := NewLoader(nil)
	result, err := loader.Load(defaultPath, filepath.Join(dir, "no-such-file.md"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.Source != "default" {
		t.Fatalf("expected fallback to default, got source %q", result.Source)
	}
}

func TestLoaderDefaultUnreadableReturnsError(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(nil)
	_, err := loader.Load(filepath.Join(dir, "no-such-default.md"), "", nil)
	if err == nil {
		t.Fatal("expected error when the default template itself is unreadable")
	}
}
