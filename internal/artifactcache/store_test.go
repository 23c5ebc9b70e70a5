package artifactcache_test

import (
	"context"
	"path/filepath"
	"testing"

	"storysync/internal/artifactcache"
)

func TestPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")
	store, err := artifactcache.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	row := artifactcache.Row{ArtifactID: "art-1", Content: "<svg>payload</svg>", Name: "Scene 1"}
	if err := store.Put(ctx, row); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	fetched, err := store.Get(ctx, "art-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.Content != row.Content || fetched.Name != "Scene 1" {
		t.Fatalf("unexpected row: %#v", fetched)
	}
	if fetched.StoredAt.IsZero() {
		t.Fatal("expected stored_at to be populated")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store, err := artifactcache.OpenPath(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer store.Close()

	row, err := store.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil for missing artifact, got %#v", row)
	}
}

func TestPutRequiresID(t *testing.T) {
	store, err := artifactcache.OpenPath(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer store.Close()

	if err := store.Put(context.Background(), artifactcache.Row{Content: "x"}); err == nil {
		t.Fatal("expected error for empty artifact id")
	}
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifacts.db")
	ctx := context.Background()

	store, err := artifactcache.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := store.Put(ctx, artifactcache.Row{ArtifactID: "art-1", Content: "persisted content body"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	store.Close()

	reopened, err := artifactcache.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	row, err := reopened.Get(ctx, "art-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if row == nil || row.Content != "persisted content body" {
		t.Fatalf("content lost across reopen: %#v", row)
	}
}

func TestClearAndCount(t *testing.T) {
	store, err := artifactcache.OpenPath(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, artifactcache.Row{ArtifactID: id, Content: "body"}); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows after delete, got %d", count)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, _ = store.Count(ctx)
	if count != 0 {
		t.Fatalf("expected empty cache after clear, got %d", count)
	}
}
