package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Store caches classifier results by key.
type Store interface {
	// Get returns ("", false) on miss, on expiry and when disabled.
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
	GetStats(ctx context.Context) (Stats, error)
	Enabled() bool
}

// Stats describes the contents of a Store.
type Stats struct {
	Backend    string `json:"backend"`
	Dir        string `json:"dir,omitempty"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// Options selects and configures a backend.
type Options struct {
	Enabled    bool
	Backend    string
	Dir        string
	RedisURL   string
	TTLSeconds int
}

// Open returns the Store described by opts. A disabled cache is a file
// store that never hits.
func Open(ctx context.Context, opts Options) (Store, error) {
	if !opts.Enabled {
		return &File{enabled: false}, nil
	}
	switch opts.Backend {
	case "", "file":
		f, err := New(true, opts.Dir, opts.TTLSeconds)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "redis":
		r, err := NewRedis(ctx, opts.RedisURL, opts.TTLSeconds)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", opts.Backend)
	}
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// BuildCacheKey creates a cache key from the classifier identity and the
// classified text. The text only ever appears hashed.
func BuildCacheKey(provider, model, text string) string {
	return HashKey(fmt.Sprintf("%s:%s:%s", provider, model, text))
}
