package service

import (
	"context"
	"errors"
	"testing"

	"github.com/canopyhq/canopy/internal/domain/membership"
)

func testKeyLoader(calls *int, err error) KeyLoader {
	return func(context.Context) ([]membership.Key, error) {
		*calls++
		if err != nil {
			return nil, err
		}
		return []membership.Key{
			{ID: "basic", Name: "Basic", Order: 10},
			{ID: "gold", Name: "Gold", Order: 20},
		}, nil
	}
}

func TestMembershipLoadsOnceAndCaches(t *testing.T) {
	ctx := context.Background()
	var calls int
	svc := NewMembershipService(testKeyLoader(&calls, nil), nil)

	for i := 0; i < 3; i++ {
		keys, err := svc.Get(ctx)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !keys.Admits("gold", "basic") {
			t.Fatal("lattice not built from loaded keys")
		}
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}

	// public key is synthesized even though the loader omits it
	keys, _ := svc.Get(ctx)
	if _, ok := keys.Get(membership.PublicKeyID); !ok {
		t.Error("public key not synthesized")
	}
}

func TestMembershipInvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	var calls int
	svc := NewMembershipService(testKeyLoader(&calls, nil), nil)

	if _, err := svc.Get(ctx); err != nil {
		t.Fatal(err)
	}
	svc.Invalidate(ctx)
	if _, err := svc.Get(ctx); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("loader called %d times after invalidate, want 2", calls)
	}
}

func TestMembershipLoaderFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	var calls int
	boom := errors.New("config unreachable")
	svc := NewMembershipService(testKeyLoader(&calls, boom), nil)

	if _, err := svc.Get(ctx); !errors.Is(err, boom) {
		t.Fatalf("want loader error, got %v", err)
	}
}
