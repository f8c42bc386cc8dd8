package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigPrintsMergedConfig(t *testing.T) {
	homeDir := createTestHome(t)
	writeValidConfig(t, homeDir)

	got, err := execute(t, "", "config")
	if err != nil {
		t.Fatalf("execute config: %v", err)
	}

	if !strings.Contains(got, "[llm.default]") {
		t.Fatalf("expected llm.default section, got %q", got)
	}
	if !strings.Contains(got, "provider = 'anthropic'") {
		t.Fatalf("expected merged provider in output, got %q", got)
	}
	if !strings.Contains(got, "gc_schedule = '@every 1h'") {
		t.Fatalf("expected defaults in output, got %q", got)
	}
}

func TestConfigDoesNotBootstrap(t *testing.T) {
	homeDir := createTestHome(t)

	if _, err := execute(t, "", "config"); err != nil {
		t.Fatalf("execute config: %v", err)
	}
	if _, err := os.Stat(filepath.Join(homeDir, "config.toml")); !os.IsNotExist(err) {
		t.Fatalf("expected no config file to be written, got err=%v", err)
	}
}
