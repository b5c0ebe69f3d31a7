package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one cached GET response, keyed by its exact request URL.
type Entry struct {
	URL       string    `json:"url"`
	ETag      string    `json:"etag,omitempty"`
	Body      []byte    `json:"body,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the response cache behind a Transport. Implementations must be
// safe for concurrent use. Entries never expire on their own; they stay
// until Delete, Clear, or process exit.
type Store interface {
	Get(url string) (Entry, bool)
	Put(entry Entry) error
	Delete(url string) error
	Clear() error
}

// MemoryStore keeps entries in a sync.Map so lookups and writes for
// different URLs do not contend on a shared lock.
type MemoryStore struct {
	entries sync.Map // url -> Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the entry for url.
func (s *MemoryStore) Get(url string) (Entry, bool) {
	v, ok := s.entries.Load(url)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Put stores entry, replacing any previous entry for the same URL.
func (s *MemoryStore) Put(entry Entry) error {
	if entry.URL == "" {
		return errors.New("cache entry URL cannot be empty")
	}
	s.entries.Store(entry.URL, entry)
	return nil
}

// Delete removes the entry for url; missing URLs are ignored.
func (s *MemoryStore) Delete(url string) error {
	s.entries.Delete(url)
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear() error {
	s.entries.Range(func(key, _ any) bool {
		s.entries.Delete(key)
		return true
	})
	return nil
}

// Len reports the number of cached entries.
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *MemoryStore) snapshot() map[string]Entry {
	out := make(map[string]Entry)
	s.entries.Range(func(key, value any) bool {
		out[key.(string)] = value.(Entry)
		return true
	})
	return out
}

// FileStore is a MemoryStore mirrored to a single JSON index file. The
// index is loaded on first use and rewritten after every mutation.
//
// Concurrent writers never wait on each other's disk I/O: a writer that
// finds a flush in progress marks the index dirty and returns, and the
// running flusher writes again before it finishes. Such a writer's nil
// return means the entry is in memory, not yet on disk; a write error in
// the coalesced flush goes only to the caller running it. The index is
// last-writer-wins, and the next mutation rewrites it in full.
type FileStore struct {
	path   string
	logger *slog.Logger
	mem    MemoryStore

	loadOnce sync.Once
	loadErr  error

	flushMu  sync.Mutex
	flushing bool
	dirty    bool
}

// NewFileStore returns a store persisted at path. The file and its parent
// directory are created on the first write.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the index file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() error {
	s.loadOnce.Do(func() {
		data, err := os.ReadFile(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			s.loadErr = fmt.Errorf("failed to read cache index: %w", err)
			return
		}
		var index map[string]Entry
		if err := json.Unmarshal(data, &index); err != nil {
			// A corrupt index is discarded and the store starts empty.
			s.logger.Warn("Ignoring unreadable cache index", "path", s.path, "error", err)
			return
		}
		for url, entry := range index {
			entry.URL = url
			s.mem.entries.Store(url, entry)
		}
		s.logger.Debug("Loaded cache index", "path", s.path, "entries", len(index))
	})
	return s.loadErr
}

// Get returns the entry for url, loading the index on first use.
func (s *FileStore) Get(url string) (Entry, bool) {
	if err := s.load(); err != nil {
		s.logger.Warn("Cache index unavailable", "path", s.path, "error", err)
	}
	return s.mem.Get(url)
}

// Put stores entry and flushes the index.
func (s *FileStore) Put(entry Entry) error {
	if err := s.load(); err != nil {
		return err
	}
	if err := s.mem.Put(entry); err != nil {
		return err
	}
	return s.flush()
}

// Delete removes url and flushes the index.
func (s *FileStore) Delete(url string) error {
	if err := s.load(); err != nil {
		return err
	}
	_ = s.mem.Delete(url)
	return s.flush()
}

// Clear removes every entry and flushes the empty index.
func (s *FileStore) Clear() error {
	if err := s.load(); err != nil {
		return err
	}
	_ = s.mem.Clear()
	return s.flush()
}

func (s *FileStore) flush() error {
	s.flushMu.Lock()
	if s.flushing {
		s.dirty = true
		s.flushMu.Unlock()
		return nil
	}
	s.flushing = true
	s.flushMu.Unlock()

	for {
		err := s.writeIndex()

		s.flushMu.Lock()
		if err != nil || !s.dirty {
			s.flushing = false
			s.dirty = false
			s.flushMu.Unlock()
			return err
		}
		s.dirty = false
		s.flushMu.Unlock()
	}
}

// writeIndex replaces the index file atomically via a temp file + rename.
func (s *FileStore) writeIndex() error {
	data, err := json.Marshal(s.mem.snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-index-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache index: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close cache index: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache index: %w", err)
	}
	return nil
}
