// Package natsblob implements the blob store port on a NATS JetStream
// object store bucket.
package natsblob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/canopyhq/canopy/internal/port/blobstore"
)

const defaultPageSize = 1000

// Store wraps a JetStream ObjectStore bucket.
type Store struct {
	os jetstream.ObjectStore
}

// New creates an object-store-backed blob store.
func New(os jetstream.ObjectStore) *Store {
	return &Store{os: os}
}

// Open ensures the named bucket exists and returns a Store over it.
func Open(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	os, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "canopy content store",
	})
	if err != nil {
		return nil, fmt.Errorf("object store %s: %w", bucket, err)
	}
	return New(os), nil
}

// Get returns the blob at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.os.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, blobstore.ErrKeyNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Put writes the blob at key, replacing any existing object.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if _, err := s.os.PutBytes(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob at key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.os.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List returns metadata for every key under prefix. The object store has
// no server-side prefix listing, so the bucket listing is filtered here.
func (s *Store) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	objects, err := s.os.List(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoObjectsFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make([]blobstore.ObjectInfo, 0, len(objects))
	for _, o := range objects {
		if o.Deleted || !strings.HasPrefix(o.Name, prefix) {
			continue
		}
		out = append(out, toInfo(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ListPage pages through List results; the cursor is the last key of the
// previous page.
func (s *Store) ListPage(ctx context.Context, prefix, cursor string, limit int) (blobstore.Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	all, err := s.List(ctx, prefix)
	if err != nil {
		return blobstore.Page{}, err
	}
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

// Head returns metadata for key without fetching the body.
func (s *Store) Head(ctx context.Context, key string) (blobstore.ObjectInfo, error) {
	info, err := s.os.GetInfo(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return blobstore.ObjectInfo{}, blobstore.ErrKeyNotFound
		}
		return blobstore.ObjectInfo{}, fmt.Errorf("head %s: %w", key, err)
	}
	return toInfo(info), nil
}

func toInfo(o *jetstream.ObjectInfo) blobstore.ObjectInfo {
	return blobstore.ObjectInfo{
		Key:      o.Name,
		Size:     int64(o.Size),
		ETag:     o.Digest,
		Modified: o.ModTime,
	}
}
