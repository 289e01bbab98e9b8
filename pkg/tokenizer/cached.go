package tokenizer

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/panbanda/klone/internal/cache"
	"github.com/panbanda/klone/pkg/models"
)

// CacheStore persists serialized tokenization results.
type CacheStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, data []byte) error
}

// Cached memoizes another tokenizer's output keyed by the file content and
// its owner, so a restarted process does not re-parse unchanged files.
type Cached struct {
	next  Tokenizer
	store CacheStore
}

// WithCache wraps next with store. A nil store returns next unchanged.
func WithCache(next Tokenizer, store CacheStore) Tokenizer {
	if store == nil {
		return next
	}
	return &Cached{next: next, store: store}
}

// Tokenize implements Tokenizer.
func (c *Cached) Tokenize(ctx context.Context, src Source) ([]models.SourceUnit, error) {
	key := cacheKey(src)
	if data, ok := c.store.Get(key); ok {
		var units []models.SourceUnit
		if err := json.Unmarshal(data, &units); err == nil {
			return units, nil
		}
	}

	units, err := c.next.Tokenize(ctx, src)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(units); err == nil {
		_ = c.store.Set(key, data)
	}
	return units, nil
}

func cacheKey(src Source) string {
	owner := strings.Join([]string{
		string(src.Mode),
		strconv.Itoa(src.OwnerID),
		strconv.Itoa(src.DenizenID),
		src.Filename,
	}, "\x00")
	return "tokens:" + cache.HashBytes([]byte(owner+"\x00"+src.Text))
}
