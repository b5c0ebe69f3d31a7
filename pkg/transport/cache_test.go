package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.Get("https://x/a"); ok {
		t.Fatal("Expected empty store")
	}
	if err := s.Put(Entry{}); err == nil {
		t.Error("Expected error for entry without URL")
	}

	if err := s.Put(Entry{URL: "https://x/a", ETag: `"1"`, Body: []byte("one")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(Entry{URL: "https://x/a", ETag: `"2"`, Body: []byte("two")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := s.Get("https://x/a")
	if !ok || got.ETag != `"2"` || string(got.Body) != "two" {
		t.Errorf("Expected last writer to win, got %+v", got)
	}

	_ = s.Put(Entry{URL: "https://x/b"})
	if s.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", s.Len())
	}
	_ = s.Delete("https://x/a")
	if _, ok := s.Get("https://x/a"); ok {
		t.Error("Expected entry to be deleted")
	}
	_ = s.Clear()
	if s.Len() != 0 {
		t.Errorf("Expected empty store after Clear, got %d", s.Len())
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")

	first := NewFileStore(path, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := first.Put(Entry{URL: "https://api.example.com/repos/a/b", ETag: `"abc"`, Body: []byte(`{"id":1}`), UpdatedAt: now}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected index file to exist: %v", err)
	}
	var index map[string]Entry
	if err := json.Unmarshal(data, &index); err != nil {
		t.Fatalf("Index is not valid JSON: %v", err)
	}
	if _, ok := index["https://api.example.com/repos/a/b"]; !ok {
		t.Errorf("Expected index keyed by URL, got %v", index)
	}

	second := NewFileStore(path, nil)
	got, ok := second.Get("https://api.example.com/repos/a/b")
	if !ok {
		t.Fatal("Expected entry to be loaded from disk")
	}
	if got.ETag != `"abc"` || string(got.Body) != `{"id":1}` || !got.UpdatedAt.Equal(now) {
		t.Errorf("Unexpected entry: %+v", got)
	}

	if err := second.Delete("https://api.example.com/repos/a/b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	third := NewFileStore(path, nil)
	if _, ok := third.Get("https://api.example.com/repos/a/b"); ok {
		t.Error("Expected deletion to be persisted")
	}
}

func TestFileStoreIgnoresCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path, nil)
	if _, ok := s.Get("https://x"); ok {
		t.Error("Expected empty store for corrupt index")
	}
	if err := s.Put(Entry{URL: "https://x", Body: []byte("1")}); err != nil {
		t.Fatalf("Expected Put to rewrite corrupt index: %v", err)
	}
	if _, ok := NewFileStore(path, nil).Get("https://x"); !ok {
		t.Error("Expected rewritten index to be readable")
	}
}

func TestFileStoreConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileStore(path, nil)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Put(Entry{URL: fmt.Sprintf("https://x/%d", i), Body: []byte("b")}); err != nil {
				t.Errorf("Put failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	reloaded := NewFileStore(path, nil)
	for i := 0; i < 25; i++ {
		if _, ok := reloaded.Get(fmt.Sprintf("https://x/%d", i)); !ok {
			t.Errorf("Expected entry %d on disk", i)
		}
	}
}
