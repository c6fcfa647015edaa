package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryStoreSaveGet(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	ctx := context.Background()

	rec := Record{
		ID:        "abc",
		Question:  "what do you sell",
		StartURL:  "https://example.com/",
		Answer:    "widgets",
		Status:    "done",
		Pages:     []PageSummary{{URL: "https://example.com/", Title: "Home"}},
		CreatedAt: time.Now(),
	}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Answer != "widgets" || got.Status != "done" {
		t.Fatalf("got %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"one", "two", "three"} {
		if err := store.Save(ctx, Record{ID: id, Status: "done"}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	recs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 || recs[0].ID != "three" || recs[2].ID != "one" {
		t.Fatalf("unexpected order: %+v", recs)
	}

	recs, err = store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "three" {
		t.Fatalf("unexpected limited list: %+v", recs)
	}
}

func TestInMemoryStoreSaveOverwrites(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.Save(ctx, Record{ID: "x", Status: "crawling"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, Record{ID: "x", Status: "done"}); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	recs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != "done" {
		t.Fatalf("unexpected list: %+v", recs)
	}
}
