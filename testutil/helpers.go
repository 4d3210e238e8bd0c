package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes a file under dir, creating parent directories
func WriteFile(t *testing.T, dir, path string, data []byte) string {
	t.Helper()
	fullPath := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return fullPath
}

// Setenv sets environment variables for the duration of the test
func Setenv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}
