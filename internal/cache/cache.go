// Package cache persists tokenization results on disk between runs.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Cache is a directory of TTL-bound JSON entries keyed by BLAKE3 digests.
// A disabled cache misses on every Get and ignores Set.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

type entry struct {
	Key     string    `json:"key"`
	Written time.Time `json:"written"`
	Data    []byte    `json:"data"`
}

// New creates the cache directory when enabled.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{now: time.Now}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
		now:     time.Now,
	}, nil
}

// Enabled reports whether entries are stored.
func (c *Cache) Enabled() bool { return c.enabled }

// HashBytes returns the hex BLAKE3-256 digest of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the data stored under key unless it is missing or expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	path := c.path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Key != key {
		return nil, false
	}
	if c.expired(e.Written) {
		_ = os.Remove(path)
		return nil, false
	}
	return e.Data, true
}

// Set stores data under key.
func (c *Cache) Set(key string, data []byte) error {
	if !c.enabled {
		return nil
	}
	raw, err := json.Marshal(entry{Key: key, Written: c.now(), Data: data})
	if err != nil {
		return err
	}
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(key))
}

// Prune removes expired entries and returns how many were deleted.
func (c *Cache) Prune() (int, error) {
	if !c.enabled {
		return 0, nil
	}
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if c.expired(info.ModTime()) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// Clear removes the whole cache directory.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	return os.RemoveAll(c.dir)
}

func (c *Cache) expired(written time.Time) bool {
	return c.ttl > 0 && c.now().Sub(written) > c.ttl
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, HashBytes([]byte(key))+".json")
}
