// Package cache keeps compiled grammars on disk so unchanged grammar files are not recompiled.
package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dchest/siphash"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/gnolang/gmatch/grammar"
)

// FileName is the cache file created inside the cache directory.
const FileName = "grammar_cache.gob.zst"

const k0, k1 = 0x676d61746368, 0x63616368

type fileMetadata struct {
	Hash         uint64
	LastModified time.Time
}

// same compares with time.Equal: decoded times carry a different location.
func (m fileMetadata) same(other fileMetadata) bool {
	return m.Hash == other.Hash && m.LastModified.Equal(other.LastModified)
}

type entry struct {
	Metadata     fileMetadata
	Graph        *grammar.Graph
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Cache maps grammar file paths to compiled graphs. An entry is valid while the file's content
// hash and modification time are unchanged and it is younger than the max age.
type Cache struct {
	Dir     string
	entries map[string]entry
	mutex   sync.RWMutex
	maxAge  time.Duration
	logger  *zap.Logger
}

// New opens the cache in dir, creating the directory if needed.
// An unreadable cache file is discarded rather than reported.
func New(dir string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		Dir:     dir,
		entries: make(map[string]entry),
		logger:  logger,
	}
	if err := c.load(); err != nil {
		logger.Warn("Discarding grammar cache", zap.String("dir", dir), zap.Error(err))
		c.entries = make(map[string]entry)
	}
	return c, nil
}

func (c *Cache) path() string { return filepath.Join(c.Dir, FileName) }

func (c *Cache) load() error {
	f, err := os.Open(c.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(&c.entries); err != nil {
		return fmt.Errorf("failed to decode cache file: %w", err)
	}
	return nil
}

// save writes all entries to a temporary file and renames it over the cache file.
func (c *Cache) save() error {
	tmp, err := os.CreateTemp(c.Dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("failed to compress cache file: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(c.entries); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path())
}

// Get returns the cached graph for a grammar file if it is still valid.
func (c *Cache) Get(filename string) (*grammar.Graph, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[filename]
	if !ok {
		return nil, false
	}

	meta, _, err := readFile(filename)
	if err != nil || c.isEntryInvalid(e, meta) {
		delete(c.entries, filename)
		return nil, false
	}

	e.LastAccessed = time.Now()
	c.entries[filename] = e
	return e.Graph, true
}

// Set stores g as the compiled form of filename, as it is on disk now.
func (c *Cache) Set(filename string, g *grammar.Graph) error {
	meta, _, err := readFile(filename)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.set(filename, meta, g)
}

func (c *Cache) set(filename string, meta fileMetadata, g *grammar.Graph) error {
	now := time.Now()
	c.entries[filename] = entry{Metadata: meta, Graph: g, CreatedAt: now, LastAccessed: now}
	return c.save()
}

// Compile returns the cached graph for filename or compiles the file and caches the result.
// Compile errors are returned as is and not cached.
func (c *Cache) Compile(filename string) (*grammar.Graph, error) {
	if g, ok := c.Get(filename); ok {
		c.logger.Debug("Grammar cache hit", zap.String("file", filename))
		return g, nil
	}

	meta, src, err := readFile(filename)
	if err != nil {
		return nil, err
	}
	g, err := grammar.CompileNamed(filename, string(src))
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.set(filename, meta, g); err != nil {
		c.logger.Warn("Failed to save grammar cache", zap.Error(err))
	}
	return g, nil
}

func (c *Cache) isEntryInvalid(e entry, current fileMetadata) bool {
	if c.maxAge > 0 && time.Since(e.CreatedAt) > c.maxAge {
		return true
	}
	return e.Graph == nil || !current.same(e.Metadata)
}

// SetMaxAge bounds entry lifetime. Zero means entries never expire.
func (c *Cache) SetMaxAge(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.maxAge = d
}

// Len returns the number of stored entries, valid or not.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.entries)
}

// Prune drops entries whose file is gone or changed and returns their names, sorted.
func (c *Cache) Prune() ([]string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var removed []string
	for _, name := range maps.Keys(c.entries) {
		meta, _, err := readFile(name)
		if err != nil || c.isEntryInvalid(c.entries[name], meta) {
			delete(c.entries, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)

	if len(removed) == 0 {
		return nil, nil
	}
	return removed, c.save()
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]entry)
	if err := c.save(); err != nil {
		c.logger.Warn("Failed to save grammar cache", zap.Error(err))
	}
}

func readFile(filename string) (fileMetadata, []byte, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return fileMetadata{}, nil, fmt.Errorf("failed to get file info: %w", err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fileMetadata{}, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return fileMetadata{
		Hash:         siphash.Hash(k0, k1, data),
		LastModified: info.ModTime(),
	}, data, nil
}
