package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const entryExt = ".json"

// Entry is one cached value as written to disk. Key is already hashed.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// File is a directory-backed Store holding one JSON file per entry, named by
// the hashed key.
type File struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New creates a file cache under dir, or the platform cache directory when
// dir is empty. A ttlSeconds of zero keeps entries forever.
func New(enabled bool, dir string, ttlSeconds int) (*File, error) {
	if !enabled {
		return &File{now: time.Now}, nil
	}
	if dir == "" {
		d, err := defaultCacheDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &File{
		dir:     dir,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: true,
		now:     time.Now,
	}, nil
}

func (c *File) Get(_ context.Context, key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	path := c.entryPath(key)
	entry, err := readEntry(path)
	if err != nil {
		return "", false
	}
	if entry.expired(c.now()) {
		_ = os.Remove(path)
		return "", false
	}
	return entry.Value, true
}

// Put writes through a temp file so a concurrent Get never sees a partial
// entry.
func (c *File) Put(_ context.Context, key, value string) error {
	if !c.enabled {
		return nil
	}
	entry := Entry{Key: HashKey(key), Value: value}
	if c.ttl > 0 {
		entry.ExpiresAt = c.now().Add(c.ttl).UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear removes all cache entries.
func (c *File) Clear(_ context.Context) error {
	return c.each(func(path string, _ fs.DirEntry) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing cache entry: %w", err)
		}
		return nil
	})
}

func (c *File) GetStats(_ context.Context) (Stats, error) {
	stats := Stats{Backend: "file", Dir: c.dir}
	now := c.now()
	err := c.each(func(path string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
		if entry, err := readEntry(path); err == nil && entry.expired(now) {
			stats.Expired++
		}
		return nil
	})
	return stats, err
}

// Dir returns the cache directory path.
func (c *File) Dir() string {
	return c.dir
}

func (c *File) Enabled() bool {
	return c.enabled
}

// each calls fn for every entry file. A missing directory has no entries.
func (c *File) each(fn func(path string, d fs.DirEntry) error) error {
	if !c.enabled || c.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, d := range entries {
		if d.IsDir() || filepath.Ext(d.Name()) != entryExt || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		if err := fn(filepath.Join(c.dir, d.Name()), d); err != nil {
			return err
		}
	}
	return nil
}

func (c *File) entryPath(key string) string {
	return filepath.Join(c.dir, HashKey(key)+entryExt)
}

func readEntry(path string) (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return entry, err
	}
	err = json.Unmarshal(data, &entry)
	return entry, err
}

func defaultCacheDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "phiscrub"), nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine cache directory: %w", err)
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(base, "phiscrub", "cache"), nil
	}
	return filepath.Join(base, "phiscrub"), nil
}
