package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/kanadeck/internal/domain"
	"github.com/conorfennell/kanadeck/internal/gitsource"
	"github.com/conorfennell/kanadeck/internal/knol"
	"github.com/conorfennell/kanadeck/internal/logger"
	"github.com/conorfennell/kanadeck/internal/parser"
	"github.com/conorfennell/kanadeck/internal/scheduler"
)

// ErrInvalidSource is returned by AddSource for a path that cannot be a source.
var ErrInvalidSource = errors.New("sync: invalid source")

// SourceStore lists sources and records when they were scanned.
type SourceStore interface {
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	InsertSource(ctx context.Context, deck, path, sourceType string) (int64, error)
	FindSourceByPath(ctx context.Context, deck, path string) (*domain.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
}

// Result summarises the reconciliation of one source.
type Result struct {
	SourceID int64  `json:"sourceId"`
	Deck     string `json:"deck"`
	Path     string `json:"path"`
	Parsed   int    `json:"parsed"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Err      string `json:"error,omitempty"`
}

// Syncer pulls markdown cards from every source into its deck.
type Syncer struct {
	sources  SourceStore
	decks    *scheduler.Registry
	log      *logger.Logger
	reposDir string
	workers  int
}

// New returns a Syncer that checks git sources out under reposDir and syncs
// at most workers sources at a time.
func New(sources SourceStore, decks *scheduler.Registry, log *logger.Logger, reposDir string, workers int) *Syncer {
	if workers < 1 {
		workers = 1
	}
	return &Syncer{
		sources:  sources,
		decks:    decks,
		log:      log,
		reposDir: reposDir,
		workers:  workers,
	}
}

// AddSource registers path as a source for deck. Paths that look like git URLs
// become git sources; anything else must be an existing local directory.
func (s *Syncer) AddSource(ctx context.Context, deck, path string) (domain.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Source{}, fmt.Errorf("%w: path cannot be empty", ErrInvalidSource)
	}

	sourceType := domain.SourceLocal
	if gitsource.IsGitURL(path) {
		sourceType = domain.SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: resolve %s: %v", ErrInvalidSource, path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
		}
		if !info.IsDir() {
			return domain.Source{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, abs)
		}
		path = abs
	}

	existing, err := s.sources.FindSourceByPath(ctx, deck, path)
	if err != nil {
		return domain.Source{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	id, err := s.sources.InsertSource(ctx, deck, path, sourceType)
	if err != nil {
		return domain.Source{}, err
	}
	s.log.Info("Source added", "id", id, "deck", deck, "type", sourceType, "path", path)
	return domain.Source{ID: id, Deck: deck, Path: path, Type: sourceType}, nil
}

// RunSync reconciles every source. A failing source is logged and reported in
// its Result; it does not stop the others.
func (s *Syncer) RunSync(ctx context.Context) ([]Result, error) {
	s.log.Info("Starting sync process for all sources")
	sources, err := s.sources.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		s.log.Info("No sources configured. Add one with: kanadeck add-source <path/or/url.git>")
		return nil, nil
	}

	results := make([]Result, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, src := range sources {
		g.Go(func() error {
			res, err := s.SyncSource(ctx, src)
			if err != nil {
				s.log.Error("Failed to sync source", "id", src.ID, "path", src.Path, "error", err)
				res.Err = err.Error()
			}
			results[i] = res
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	s.log.Info("Sync process complete", "sources", len(sources))
	return results, nil
}

// SyncSource fetches src if it is a git repository, then reconciles its cards
// into the source's deck.
func (s *Syncer) SyncSource(ctx context.Context, src domain.Source) (Result, error) {
	res := Result{SourceID: src.ID, Deck: src.Deck, Path: src.Path}

	dir := src.Path
	if src.Type == domain.SourceGit {
		local, err := gitsource.LocalPath(s.reposDir, src.Path)
		if err != nil {
			return res, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return res, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, s.log, src.Path, local); err != nil {
			return res, err
		}
		dir = local
	}

	cards, err := collectCards(dir)
	if err != nil {
		return res, err
	}
	res.Parsed = len(cards)

	deck, err := s.decks.Deck(ctx, src.Deck)
	if err != nil {
		return res, err
	}
	res.Added, res.Removed = deck.Reconcile(src.Path, cards)

	if err := s.sources.UpdateSourceLastScanned(ctx, src.ID, time.Now()); err != nil {
		s.log.Warn("Failed to update last scanned for source", "source_id", src.ID, "error", err)
	}
	s.log.Info("Reconciliation complete",
		"deck", src.Deck,
		"path", src.Path,
		"parsed_cards", res.Parsed,
		"added", res.Added,
		"removed", res.Removed,
	)
	return res, nil
}

// collectCards parses every markdown file under dir. Any unreadable file fails
// the whole walk so that its cards are not mistaken for deleted ones.
func collectCards(dir string) ([]domain.Card, error) {
	var cards []domain.Card
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		fileCards, err := parser.ParseFile(path)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for _, card := range fileCards {
			card.ID = knol.Hash(card)
			cards = append(cards, card)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", dir, err)
	}
	return cards, nil
}
