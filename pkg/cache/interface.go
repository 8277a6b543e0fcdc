package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is the key/value cache contract used for input dedupe.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// CacheKey builds namespaced cache keys.
type CacheKey struct {
	Prefix string
	ID     string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s", k.Prefix, k.ID)
}

// ProcessedInputCacheKey marks an input basename whose conversation record
// has already been written.
func ProcessedInputCacheKey(basename string) string {
	return CacheKey{Prefix: "processed", ID: basename}.String()
}

// JobCacheKey caches the transcription job id submitted for an input.
func JobCacheKey(basename string) string {
	return CacheKey{Prefix: "job", ID: basename}.String()
}
