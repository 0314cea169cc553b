package images

import (
	"context"
	"errors"
	"testing"

	"github.com/permashare/backend/internal/objstore"
)

func newTestStore(t *testing.T) (*Store, *objstore.MemoryStore) {
	t.Helper()
	backing := objstore.NewMemoryStore()
	store, err := NewStore(StoreConfig{Store: backing, BaseURL: "https://share.example.com"})
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store, backing
}

func TestPutReturnsServingURL(t *testing.T) {
	store, _ := newTestStore(t)
	result, err := store.Put(context.Background(), "a1b2c3d4", "chart.webp", "image/webp", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if result.Key != "images/a1b2c3d4/chart.webp" {
		t.Fatalf("unexpected key %q", result.Key)
	}
	if result.URL != "https://share.example.com/i/a1b2c3d4/chart.webp" {
		t.Fatalf("unexpected url %q", result.URL)
	}
}

func TestGetRoundTripsContentType(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "a1b2c3d4", "chart.webp", "image/webp", []byte{9, 9}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	image, err := store.Get(ctx, "a1b2c3d4", "chart.webp")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if image.ContentType != "image/webp" || len(image.Data) != 2 {
		t.Fatalf("unexpected image %+v", image)
	}
}

func TestGetMissingImageReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "a1b2c3d4", "ghost.webp")
	if !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestDeletePrefixRemovesOnlyOwnedImages(t *testing.T) {
	store, backing := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "a1b2c3d4", "one.webp", "image/webp", []byte{1}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if _, err := store.Put(ctx, "a1b2c3d4", "two.webp", "image/webp", []byte{2}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if _, err := store.Put(ctx, "ffffffff", "other.webp", "image/webp", []byte{3}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	if err := store.DeletePrefix(ctx, "a1b2c3d4"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	if _, err := store.Get(ctx, "a1b2c3d4", "one.webp"); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected owned image removed, got %v", err)
	}
	if _, err := store.Get(ctx, "ffffffff", "other.webp"); err != nil {
		t.Fatalf("expected unrelated image to survive, got %v", err)
	}
	if backing.Len() != 1 {
		t.Fatalf("expected exactly one object left, got %d", backing.Len())
	}
}

func TestDeletePrefixWithNoImagesSucceeds(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.DeletePrefix(context.Background(), "a1b2c3d4"); err != nil {
		t.Fatalf("expected no-op delete to succeed, got %v", err)
	}
}
