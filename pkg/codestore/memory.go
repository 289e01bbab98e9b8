package codestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/panbanda/klone/pkg/models"
)

// Memory is an in-memory Store. Entities can be made to report pending or
// failed a number of times before their files become visible.
type Memory struct {
	mu       sync.Mutex
	files    map[models.EntityRef]map[string]string
	pending  map[models.EntityRef]int
	failures map[models.EntityRef]int
	reads    int
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		files:    make(map[models.EntityRef]map[string]string),
		pending:  make(map[models.EntityRef]int),
		failures: make(map[models.EntityRef]int),
	}
}

// Put stores the files of ref, replacing any previous content.
func (m *Memory) Put(ref models.EntityRef, files map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]string, len(files))
	for k, v := range files {
		cp[k] = v
	}
	m.files[ref] = cp
}

// SetPending makes the next n listings of ref report pending.
func (m *Memory) SetPending(ref models.EntityRef, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[ref] = n
}

// SetFailed makes the next n listings of ref report failed.
func (m *Memory) SetFailed(ref models.EntityRef, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[ref] = n
}

// Reads returns how many files have been read.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// List implements Store. Unknown entities are pending.
func (m *Memory) List(_ context.Context, ref models.EntityRef) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := m.failures[ref]; n > 0 {
		m.failures[ref] = n - 1
		return Listing{Status: StatusFailed, Error: "repository clone failed"}, nil
	}
	if n := m.pending[ref]; n > 0 {
		m.pending[ref] = n - 1
		return Listing{Status: StatusPending}, nil
	}
	files, ok := m.files[ref]
	if !ok {
		return Listing{Status: StatusPending}, nil
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return Listing{Status: StatusDone, Root: TreeFromPaths(paths)}, nil
}

// Read implements Store.
func (m *Memory) Read(_ context.Context, ref models.EntityRef, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.files[ref]
	if !ok {
		return "", fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	text, ok := files[path]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", ref, path, ErrNotFound)
	}
	m.reads++
	return text, nil
}
