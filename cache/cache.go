package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/podhmo/derivinggc/fs"
)

const (
	// DefaultDirName and DefaultFileName form the default cache location,
	// relative to the module root.
	DefaultDirName  = ".derivinggc"
	DefaultFileName = "cache.mp"

	// schemaVersion is incremented whenever the payload layout changes.
	schemaVersion uint16 = 1
)

// Entry is what is remembered about one generated package.
type Entry struct {
	// Digest covers the input files and the generation settings.
	Digest string
	// Output is the generated file, relative to the root directory; empty
	// when the package has nothing to generate.
	Output string
	// Broken is set when the output holds error markers.
	Broken bool
}

type payload struct {
	Schema  uint16
	Entries map[string]Entry
}

// Digests remembers the input digest of every generated package, so that
// packages whose inputs did not change can be skipped.
// Keys are package directories relative to the root directory.
type Digests struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	filePath string
	rootDir  string
	logger   *slog.Logger
}

// NewDigests creates a new cache. An empty filePath disables it: Get never
// hits and Save does nothing.
func NewDigests(rootDir, filePath string, logger *slog.Logger) *Digests {
	if logger == nil {
		logger = slog.Default()
	}
	if filePath != "" && !filepath.IsAbs(filePath) {
		filePath = filepath.Join(rootDir, filePath)
	}
	return &Digests{
		entries:  make(map[string]Entry),
		filePath: filePath,
		rootDir:  rootDir,
		logger:   logger,
	}
}

// IsEnabled reports whether the cache is backed by a file.
func (c *Digests) IsEnabled() bool {
	return c != nil && c.filePath != ""
}

// FilePath returns the path of the cache file.
func (c *Digests) FilePath() string {
	return c.filePath
}

// Load reads the cache file. A missing file, a corrupted file, or a file
// written with another schema all yield an empty cache.
func (c *Digests) Load() error {
	if !c.IsEnabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
	f, err := os.Open(c.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open cache file %s: %w", c.filePath, err)
	}
	defer f.Close()

	var p payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		c.logger.Warn("ignoring corrupted cache file", slog.String("path", c.filePath), slog.Any("error", err))
		return nil
	}
	if p.Schema != schemaVersion {
		c.logger.Debug("ignoring cache file with another schema", slog.String("path", c.filePath), slog.Int("schema", int(p.Schema)))
		return nil
	}
	if p.Entries != nil {
		c.entries = p.Entries
	}
	return nil
}

// Save writes the cache file atomically.
func (c *Digests) Save() error {
	if !c.IsEnabled() {
		return nil
	}
	c.mu.RLock()
	p := payload{Schema: schemaVersion, Entries: make(map[string]Entry, len(c.entries))}
	for k, v := range c.entries {
		p.Entries[k] = v
	}
	c.mu.RUnlock()

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(f.Name()) // no-op after a successful rename

	if err := msgpack.NewEncoder(f).Encode(&p); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(f.Name(), c.filePath); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", c.filePath, err)
	}
	return nil
}

// Get returns the entry of the package in dir.
func (c *Digests) Get(dir string) (Entry, bool) {
	if !c.IsEnabled() {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[c.key(dir)]
	return e, ok
}

// Set records the entry of the package in dir.
func (c *Digests) Set(dir string, e Entry) {
	if !c.IsEnabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(dir)] = e
}

// Fresh reports whether the package in dir was generated from inputs with
// the given digest, without errors, and its output still exists in fsys.
// An entry without output records a package that had nothing to generate.
func (c *Digests) Fresh(fsys fs.FS, dir, digest string) bool {
	e, ok := c.Get(dir)
	if !ok || e.Broken || e.Digest != digest {
		return false
	}
	if e.Output == "" {
		return true
	}
	_, err := fsys.Stat(filepath.Join(c.rootDir, e.Output))
	return err == nil
}

func (c *Digests) key(dir string) string {
	if rel, err := filepath.Rel(c.rootDir, dir); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(dir)
}

// Sum computes the digest of files, read from fsys, and of the settings
// strings. File names take part in the digest, so renames invalidate it.
func Sum(fsys fs.FS, files []string, settings ...string) (string, error) {
	h := sha256.New()
	for _, s := range settings {
		fmt.Fprintf(h, "setting %d:%s\n", len(s), s)
	}
	for _, name := range files {
		content, err := fsys.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		fmt.Fprintf(h, "file %s %d\n", filepath.Base(name), len(content))
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
