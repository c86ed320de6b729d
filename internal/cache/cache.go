// Package cache persists byte payloads such as schema snapshots on the local
// filesystem with per-entry expiry and a size ceiling.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kyleking/sqlpilot/internal/logging"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = stderrors.New("cache miss")

const (
	dataSuffix = ".data"
	metaSuffix = ".meta"
)

// Cache defines the interface for local caching operations
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Cleanup(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Entry is the metadata written beside each payload
type Entry struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Size      int64     `json:"size"`
}

// Stats represents cache statistics
type Stats struct {
	Directory    string  `json:"directory"     yaml:"directory"`
	TotalEntries int64   `json:"total_entries" yaml:"total_entries"`
	TotalSize    int64   `json:"total_size"    yaml:"total_size"`
	Hits         int64   `json:"hits"          yaml:"hits"`
	Misses       int64   `json:"misses"        yaml:"misses"`
	HitRate      float64 `json:"hit_rate"      yaml:"hit_rate"`
}

// FileCache implements Cache with one data and one metadata file per key
type FileCache struct {
	directory  string
	maxBytes   int64
	defaultTTL time.Duration
	now        func() time.Time

	mu     sync.RWMutex
	hits   atomic.Int64
	misses atomic.Int64
}

// NewFileCache creates the cache directory if needed
func NewFileCache(directory string, maxSizeMB int, defaultTTL time.Duration) (*FileCache, error) {
	if strings.HasPrefix(directory, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}

		directory = filepath.Join(home, directory[2:])
	}

	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{
		directory:  directory,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Get returns the payload for key or ErrMiss
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	entry, data, err := c.read(key)
	c.mu.RUnlock()

	if err != nil {
		c.misses.Add(1)
		return nil, err
	}

	if c.now().After(entry.ExpiresAt) {
		c.misses.Add(1)
		_ = c.Delete(ctx, key)

		return nil, ErrMiss
	}

	c.hits.Add(1)

	return data, nil
}

func (c *FileCache) read(key string) (*Entry, []byte, error) {
	metaData, err := os.ReadFile(c.metaPath(key))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrMiss
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cache metadata: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(metaData, &entry); err != nil {
		return nil, nil, fmt.Errorf("failed to parse cache metadata: %w", err)
	}

	data, err := os.ReadFile(c.dataPath(key))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrMiss
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cache data: %w", err)
	}

	return &entry, data, nil
}

// Set stores data under key. A zero ttl uses the cache default.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()
	entry := Entry{
		Key:       key,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Size:      int64(len(data)),
	}

	metaData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache metadata: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enforceSize(entry.Size); err != nil {
		return fmt.Errorf("failed to enforce cache size: %w", err)
	}

	if err := os.WriteFile(c.dataPath(key), data, 0600); err != nil {
		return fmt.Errorf("failed to write cache data: %w", err)
	}

	if err := os.WriteFile(c.metaPath(key), metaData, 0600); err != nil {
		_ = os.Remove(c.dataPath(key))
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}

	return nil
}

// Delete removes an entry; missing entries are not an error
func (c *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(c.hashKey(key))

	return nil
}

// Clear removes all entries and resets hit counters
func (c *FileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && (strings.HasSuffix(name, dataSuffix) || strings.HasSuffix(name, metaSuffix)) {
			_ = os.Remove(filepath.Join(c.directory, name))
		}
	}

	c.hits.Store(0)
	c.misses.Store(0)

	return nil
}

// Cleanup removes expired entries and reports how many were removed
func (c *FileCache) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.directory)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	now := c.now()
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}

		metaData, err := os.ReadFile(filepath.Join(c.directory, entry.Name()))
		if err != nil {
			continue
		}

		var meta Entry
		if err := json.Unmarshal(metaData, &meta); err != nil {
			continue
		}

		if now.After(meta.ExpiresAt) {
			c.remove(strings.TrimSuffix(entry.Name(), metaSuffix))
			removed++
		}
	}

	if removed > 0 {
		logging.Debugf("cache cleanup removed %d expired entries", removed)
	}

	return removed, nil
}

// Stats reports entry counts, size and hit rate
func (c *FileCache) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &Stats{
		Directory: c.directory,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
	}

	err := filepath.WalkDir(c.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, dataSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		stats.TotalEntries++
		stats.TotalSize += info.Size()

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan cache directory: %w", err)
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	return stats, nil
}

func (c *FileCache) dataPath(key string) string {
	return filepath.Join(c.directory, c.hashKey(key)+dataSuffix)
}

func (c *FileCache) metaPath(key string) string {
	return filepath.Join(c.directory, c.hashKey(key)+metaSuffix)
}

// hashKey creates a safe filename from a cache key
func (c *FileCache) hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// remove deletes both files for a hashed key; the caller holds the write lock
func (c *FileCache) remove(hashed string) {
	_ = os.Remove(filepath.Join(c.directory, hashed+dataSuffix))
	_ = os.Remove(filepath.Join(c.directory, hashed+metaSuffix))
}

// enforceSize evicts the oldest entries until newEntrySize fits; the caller holds the write lock
func (c *FileCache) enforceSize(newEntrySize int64) error {
	if c.maxBytes <= 0 {
		return nil
	}

	type held struct {
		hashed  string
		modTime time.Time
		size    int64
	}

	var (
		entries []held
		total   int64
	)

	dir, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range dir {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), dataSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		entries = append(entries, held{
			hashed:  strings.TrimSuffix(entry.Name(), dataSuffix),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
		total += info.Size()
	}

	if total+newEntrySize <= c.maxBytes {
		return nil
	}

	slices.SortFunc(entries, func(a, b held) int { return a.modTime.Compare(b.modTime) })

	for _, e := range entries {
		if total+newEntrySize <= c.maxBytes {
			break
		}

		c.remove(e.hashed)
		total -= e.size
	}

	return nil
}
