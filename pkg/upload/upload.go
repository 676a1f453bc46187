// Package upload stores incoming video files under generated unique names and
// deduplicates repeat uploads by original file name.
//
// The dedup key is the name the client uploaded under, not the file's
// content: two different files sharing a name collide, and the same file
// uploaded under two names is stored twice. This is a known, documented
// limitation of the intake path. The cache lives for the process lifetime
// only and grows without bound.
package upload

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache maps an original upload name to the stored file name
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewCache creates an empty dedup cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Lookup returns the stored name previously recorded for originalName
func (c *Cache) Lookup(originalName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stored, ok := c.entries[originalName]
	return stored, ok
}

// Record remembers that originalName was stored as storedName
func (c *Cache) Record(originalName, storedName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[originalName] = storedName
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// SavedFile describes where an upload ended up
type SavedFile struct {
	Path     string // absolute or dir-relative path of the stored file
	Filename string // stored base name
	Reused   bool   // true when an existing stored file was reused
}

// Saver writes uploads into Dir with dedup against the cache
type Saver struct {
	Dir   string
	cache *Cache
}

// NewSaver creates a Saver writing into dir
func NewSaver(dir string) *Saver {
	return &Saver{Dir: dir, cache: NewCache()}
}

// Cache exposes the saver's dedup cache
func (s *Saver) Cache() *Cache {
	return s.cache
}

// Save stores the upload. When a file with the same original name was stored
// before and still exists on disk, no new bytes are written and the existing
// stored file is returned; otherwise the content is written under a freshly
// generated unique name and the cache records the mapping.
func (s *Saver) Save(src io.Reader, originalName string) (SavedFile, error) {
	if stored, ok := s.cache.Lookup(originalName); ok {
		path := filepath.Join(s.Dir, stored)
		if _, err := os.Stat(path); err == nil {
			return SavedFile{Path: path, Filename: stored, Reused: true}, nil
		}
	}

	filename := uniqueName(originalName)
	path := filepath.Join(s.Dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return SavedFile{}, fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return SavedFile{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return SavedFile{}, err
	}

	s.cache.Record(originalName, filename)
	return SavedFile{Path: path, Filename: filename}, nil
}

// uniqueName generates a storage name of the form
// <unix-millis>-<9-digit-random><original extension>
func uniqueName(originalName string) string {
	suffix := rand.Int63n(1_000_000_000)
	return fmt.Sprintf("%d-%09d%s", time.Now().UnixMilli(), suffix, filepath.Ext(originalName))
}
