package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatPaths(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	got := FormatPaths([]string{"a.encrypted", "dir/b.encrypted"})
	want := "\n    - a.encrypted\n    - dir/b.encrypted\n"
	if got != want {
		t.Errorf("FormatPaths() = %q, want %q", got, want)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	if got := ExpandHome("~/logs/x.log"); got != filepath.Join(home, "logs", "x.log") {
		t.Errorf("ExpandHome() = %q", got)
	}
	if got := ExpandHome("/var/log/x.log"); got != "/var/log/x.log" {
		t.Errorf("ExpandHome() changed an absolute path: %q", got)
	}
	if got := ExpandHome("~other/x"); got != "~other/x" {
		t.Errorf("ExpandHome() should not touch ~user paths: %q", got)
	}
}

func TestReadAllFrom(t *testing.T) {
	data, err := ReadAllFrom(strings.NewReader("secret"))
	if err != nil {
		t.Fatalf("ReadAllFrom failed: %v", err)
	}
	if string(data) != "secret" {
		t.Errorf("Expected 'secret', got %q", data)
	}
}

func TestGetUsername(t *testing.T) {
	if GetUsername() == "" {
		t.Errorf("Expected a non-empty username")
	}
}
