// Package blobstore defines the port interface for the flat,
// path-addressed blob store backing the content platform.
//
// The store offers no transactions, no secondary indexes, and no queries:
// just byte blobs under string keys with prefix listing. Listing may be
// eventually consistent and can transiently return keys whose blobs are
// already gone; consumers must treat a failed read of a listed key as
// "already deleted", never as an error.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound indicates the key has no blob.
var ErrKeyNotFound = errors.New("blobstore: key not found")

// ObjectInfo is blob metadata returned by Head and List without the body.
type ObjectInfo struct {
	Key      string
	Size     int64
	ETag     string
	Modified time.Time
}

// Page is one page of a paginated listing. Cursor is opaque; empty means
// the listing is complete.
type Page struct {
	Objects []ObjectInfo
	Cursor  string
}

// Store is the port interface to the underlying blob store. Only the
// capability gate may touch implementations of this interface.
type Store interface {
	// Get returns the blob at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the blob at key, overwriting any existing blob.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the blob at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// List returns metadata for every key under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// ListPage returns one page of keys under prefix, resuming from
	// cursor. limit <= 0 means implementation default.
	ListPage(ctx context.Context, prefix string, cursor string, limit int) (Page, error)

	// Head returns metadata for key without the body, or ErrKeyNotFound.
	Head(ctx context.Context, key string) (ObjectInfo, error)
}
