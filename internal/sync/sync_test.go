package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/conorfennell/kanadeck/internal/logger"
	"github.com/conorfennell/kanadeck/internal/scheduler"
	"github.com/conorfennell/kanadeck/internal/storage"
)

func newTestSyncer(t *testing.T) (*Syncer, *scheduler.Registry) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "kanadeck.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	decks := scheduler.NewRegistry(db, scheduler.WithSeed(false))
	return New(db, decks, logger.Nop(), filepath.Join(t.TempDir(), "repos"), 2), decks
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAddSource(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	ctx := context.Background()
	dir := t.TempDir()

	src, err := syncer.AddSource(ctx, "main", dir)
	if err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if src.Type != "local" || src.ID == 0 {
		t.Errorf("Expected a stored local source, got %+v", src)
	}

	again, err := syncer.AddSource(ctx, "main", dir)
	if err != nil || again.ID != src.ID {
		t.Errorf("Expected re-adding to return the same source, got %+v, %v", again, err)
	}

	git, err := syncer.AddSource(ctx, "main", "https://example.com/u/deck.git")
	if err != nil || git.Type != "git" {
		t.Errorf("Expected a git source, got %+v, %v", git, err)
	}

	file := filepath.Join(dir, "plain.txt")
	writeFile(t, file, "x")
	if _, err := syncer.AddSource(ctx, "main", file); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource for a file path, got %v", err)
	}
	if _, err := syncer.AddSource(ctx, "main", filepath.Join(dir, "missing")); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource for a missing directory, got %v", err)
	}
	if _, err := syncer.AddSource(ctx, "main", "  "); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected ErrInvalidSource for a blank path, got %v", err)
	}
}

func TestAddSourceStoreFailure(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "kanadeck.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	syncer := New(db, scheduler.NewRegistry(db), logger.Nop(), t.TempDir(), 1)
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = syncer.AddSource(context.Background(), "main", t.TempDir())
	if err == nil {
		t.Fatal("Expected an error from a closed database")
	}
	if errors.Is(err, ErrInvalidSource) {
		t.Errorf("Expected a storage failure not to be reported as an invalid source, got %v", err)
	}
}

func TestRunSyncReconcilesLocalSource(t *testing.T) {
	syncer, decks := newTestSyncer(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "greetings.md"), "Q: こんにちは\nA: Hello\n\nQ: さようなら\nA: Goodbye\n")
	writeFile(t, filepath.Join(dir, "nested", "numbers.md"), "Q: 一\nA: one\nC: numbers\n")
	writeFile(t, filepath.Join(dir, "ignored.txt"), "Q: not a card\nA: nope\n")

	if _, err := syncer.AddSource(ctx, "main", dir); err != nil {
		t.Fatal(err)
	}

	results, err := syncer.RunSync(ctx)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if len(results) != 1 || results[0].Added != 3 || results[0].Err != "" {
		t.Fatalf("Expected 3 cards added, got %+v", results)
	}

	deck, err := decks.Deck(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := deck.Rate(5); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(dir, "greetings.md"), "Q: こんにちは\nA: Hello\n")
	results, err = syncer.RunSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Added != 0 || results[0].Removed != 1 {
		t.Errorf("Expected 0 added 1 removed, got %+v", results[0])
	}

	cards := deck.Cards()
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards left, got %d", len(cards))
	}
	if cards[0].Front != "こんにちは" || cards[0].Repetitions != 1 {
		t.Errorf("Expected the reviewed card to keep its state, got %+v", cards[0])
	}
}

func TestRunSyncReportsBrokenSource(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	ctx := context.Background()
	dir := t.TempDir()

	if _, err := syncer.AddSource(ctx, "main", dir); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	results, err := syncer.RunSync(ctx)
	if err != nil {
		t.Fatalf("Expected per-source failures not to fail the run, got %v", err)
	}
	if len(results) != 1 || results[0].Err == "" {
		t.Errorf("Expected the broken source to report an error, got %+v", results)
	}
}

func TestRunSyncNoSources(t *testing.T) {
	syncer, _ := newTestSyncer(t)
	results, err := syncer.RunSync(context.Background())
	if err != nil || len(results) != 0 {
		t.Errorf("Expected nothing to do, got %v, %v", results, err)
	}
}
