package ragcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemSessionStoreCreateAndGet(t *testing.T) {
	store := NewMemSessionStore()
	ctx := context.Background()

	s, err := store.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.ID == "" {
		t.Fatal("session without an id")
	}

	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != s.ID {
		t.Errorf("got %q, want %q", got.ID, s.ID)
	}
}

func TestMemSessionStoreGetReturnsCopy(t *testing.T) {
	store := NewMemSessionStore()
	ctx := context.Background()

	s, _ := store.Create(ctx)
	_ = store.AddMessage(ctx, s.ID, ChatMessage{Role: "user", Content: "hi"})

	got, _ := store.Get(ctx, s.ID)
	got.Messages[0].Content = "mutated"

	fresh, _ := store.Get(ctx, s.ID)
	if fresh.Messages[0].Content != "hi" {
		t.Error("Get must return a copy, store was mutated through it")
	}
}

func TestMemSessionStoreMissingSession(t *testing.T) {
	store := NewMemSessionStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get err = %v", err)
	}
	if err := store.Delete(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete err = %v", err)
	}
	if err := store.AddMessage(ctx, "nope", ChatMessage{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("AddMessage err = %v", err)
	}
}

func TestMemSessionStoreDelete(t *testing.T) {
	store := NewMemSessionStore()
	ctx := context.Background()

	s, _ := store.Create(ctx)
	if err := store.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("deleted session still readable")
	}
}

func TestMemSessionStoreListNewestFirst(t *testing.T) {
	store := NewMemSessionStore()
	ctx := context.Background()

	old, _ := store.Create(ctx)
	mid, _ := store.Create(ctx)
	recent, _ := store.Create(ctx)

	// Create timestamps can collide at clock resolution; space them out
	store.sessions[old.ID].CreatedAt = time.Now().Add(-2 * time.Hour)
	store.sessions[mid.ID].CreatedAt = time.Now().Add(-1 * time.Hour)

	list, err := store.List(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d sessions", len(list))
	}
	if list[0].ID != recent.ID || list[2].ID != old.ID {
		t.Errorf("wrong order: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}

	page, _ := store.List(ctx, 1, 1)
	if len(page) != 1 || page[0].ID != mid.ID {
		t.Errorf("pagination broken: %+v", page)
	}

	empty, _ := store.List(ctx, 10, 5)
	if len(empty) != 0 {
		t.Errorf("offset past the end should be empty, got %d", len(empty))
	}
}

func TestMemSessionStoreClean(t *testing.T) {
	store := NewMemSessionStore()
	ctx := context.Background()

	keep, _ := store.Create(ctx)
	drop, _ := store.Create(ctx)
	store.sessions[drop.ID].CreatedAt = time.Now().Add(-time.Hour)

	if err := store.Clean(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, keep.ID); err != nil {
		t.Error("newest session should survive Clean")
	}
	if _, err := store.Get(ctx, drop.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("oldest session should be removed")
	}
}

func TestMemSessionStoreCleanNoop(t *testing.T) {
	store := NewMemSessionStore()
	ctx := context.Background()
	s, _ := store.Create(ctx)

	if err := store.Clean(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, s.ID); err != nil {
		t.Error("Clean(0) must be a no-op")
	}
}
