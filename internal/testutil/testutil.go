// Package testutil holds fixture helpers shared by klone tests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/panbanda/klone/pkg/models"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// CreateFileTree creates multiple files from a map of path -> content.
func CreateFileTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		WriteFile(t, filepath.Join(root, name), content)
	}
}

// EntityDir is where a directory code store rooted at root keeps ref.
func EntityDir(root string, ref models.EntityRef) string {
	return filepath.Join(root, string(ref.Mode), strconv.Itoa(ref.ID))
}

// WriteEntity lays out the files of ref below root the way a directory
// code store expects them.
func WriteEntity(t *testing.T, root string, ref models.EntityRef, files map[string]string) {
	t.Helper()
	CreateFileTree(t, EntityDir(root, ref), files)
}

// ReadFile reads content from a file.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
