package memblob

import (
	"context"
	"errors"
	"testing"

	"github.com/canopyhq/canopy/internal/port/blobstore"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Put(ctx, "a/b.json", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "a/b.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"x":1}` {
		t.Fatalf("unexpected body: %s", got)
	}

	if err := s.Delete(ctx, "a/b.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a/b.json"); !errors.Is(err, blobstore.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	// deleting a missing key is not an error
	if err := s.Delete(ctx, "a/b.json"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"x/1.json", "x/2.json", "y/1.json"} {
		if err := s.Put(ctx, k, []byte("{}")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	got, err := s.List(ctx, "x/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Key != "x/1.json" || got[1].Key != "x/2.json" {
		t.Fatalf("unexpected listing: %+v", got)
	}
}

func TestListPage(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"p/a", "p/b", "p/c", "p/d", "p/e"} {
		if err := s.Put(ctx, k, []byte("1")); err != nil {
			t.Fatal(err)
		}
	}

	var keys []string
	cursor := ""
	for {
		page, err := s.ListPage(ctx, "p/", cursor, 2)
		if err != nil {
			t.Fatalf("list page: %v", err)
		}
		for _, o := range page.Objects {
			keys = append(keys, o.Key)
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 keys across pages, got %v", keys)
	}
}

func TestHead(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Put(ctx, "k", []byte("abc")); err != nil {
		t.Fatal(err)
	}

	info, err := s.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Size != 3 || info.ETag == "" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := s.Head(ctx, "missing"); !errors.Is(err, blobstore.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Put(ctx, "k", []byte("abc")); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, "k")
	got[0] = 'z'
	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatal("stored blob must not be aliased by readers")
	}
}
