// Package memblob implements the blob store port in process memory.
// Used by tests and local development; semantics mirror the production
// object store, including tolerance of list-after-delete races.
package memblob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/canopyhq/canopy/internal/port/blobstore"
)

const defaultPageSize = 1000

type object struct {
	data     []byte
	etag     string
	modified time.Time
}

// Store is an in-memory blob store.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Get returns the blob at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, blobstore.ErrKeyNotFound
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// Put writes the blob at key.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{
		data:     cp,
		etag:     hex.EncodeToString(sum[:16]),
		modified: time.Now(),
	}
	return nil
}

// Delete removes the blob at key. Missing keys are not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// List returns metadata for every key under prefix, in key order.
func (s *Store) List(_ context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(prefix), nil
}

// ListPage returns one page of keys under prefix. The cursor is the last
// key of the previous page.
func (s *Store) ListPage(_ context.Context, prefix, cursor string, limit int) (blobstore.Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.listLocked(prefix)
	start := 0
	if cursor != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].Key > cursor })
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := blobstore.Page{Objects: all[start:end]}
	if end < len(all) {
		page.Cursor = all[end-1].Key
	}
	return page, nil
}

// Head returns metadata for key without the body.
func (s *Store) Head(_ context.Context, key string) (blobstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return blobstore.ObjectInfo{}, blobstore.ErrKeyNotFound
	}
	return blobstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ETag: obj.etag, Modified: obj.modified}, nil
}

func (s *Store) listLocked(prefix string) []blobstore.ObjectInfo {
	out := make([]blobstore.ObjectInfo, 0)
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, blobstore.ObjectInfo{Key: key, Size: int64(len(obj.data)), ETag: obj.etag, Modified: obj.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
