package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/scrape-gateway/internal/runs"
)

func TestRunStoreStoresAndRejectsDuplicates(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	if err := store.StoreRun(ctx, runs.Run{}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if err := store.StoreRun(ctx, runs.Run{ID: "run-1", Status: runs.StatusSucceeded}); err != nil {
		t.Fatalf("StoreRun() error = %v", err)
	}
	if err := store.StoreRun(ctx, runs.Run{ID: "run-1"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	got, ok := store.Get("run-1")
	if !ok || got.Status != runs.StatusSucceeded {
		t.Fatalf("unexpected run %+v (found=%v)", got, ok)
	}
	if len(store.Runs()) != 1 {
		t.Fatalf("expected one run, got %d", len(store.Runs()))
	}
}
