package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "admirald.log")
	logger, err := New(path, "work", "debug")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["msg"] != "hello" || entry["session"] != "work" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts field")
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admirald.log")
	logger, err := New(path, "main", "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("quiet")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("info entry written at warn level: %q", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "x.log"), "main", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
