package codestore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/panbanda/klone/pkg/models"
)

type fileKey struct {
	ref  models.EntityRef
	path string
}

// Cached keeps recently read file contents of another Store in an LRU
// cache. Listings are always forwarded.
type Cached struct {
	next  Store
	files *lru.Cache[fileKey, string]
}

// NewCached wraps next with a cache of size entries.
func NewCached(next Store, size int) (*Cached, error) {
	files, err := lru.New[fileKey, string](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, files: files}, nil
}

// List implements Store.
func (c *Cached) List(ctx context.Context, ref models.EntityRef) (Listing, error) {
	return c.next.List(ctx, ref)
}

// Read implements Store.
func (c *Cached) Read(ctx context.Context, ref models.EntityRef, path string) (string, error) {
	key := fileKey{ref: ref, path: path}
	if text, ok := c.files.Get(key); ok {
		return text, nil
	}
	text, err := c.next.Read(ctx, ref, path)
	if err != nil {
		return "", err
	}
	c.files.Add(key, text)
	return text, nil
}
