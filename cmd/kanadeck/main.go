package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/kanadeck/internal/config"
	"github.com/conorfennell/kanadeck/internal/logger"
	"github.com/conorfennell/kanadeck/internal/scheduler"
	"github.com/conorfennell/kanadeck/internal/storage"
	"github.com/conorfennell/kanadeck/internal/sync"
	"github.com/conorfennell/kanadeck/internal/web"
)

const usage = `Usage: kanadeck [flags] <command> [args]

Commands:
  serve               Run the HTTP API
  sync                Reconcile every source once
  add-source <path>   Register a directory or git URL for --deck
  stats               Print statistics for --deck without modifying it

Flags:
`

func main() {
	flags := pflag.NewFlagSet("kanadeck", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	config.RegisterFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatal("Failed to open database", "path", cfg.DB, "error", err)
	}
	defer db.Close()
	log.Debug("Database opened successfully", "path", cfg.DB)

	cmd := flags.Arg(0)
	decks := scheduler.NewRegistry(db,
		scheduler.WithLogger(log),
		scheduler.WithSeed(seedsDecks(cmd, cfg.Seed)),
	)
	syncer := sync.New(db, decks, log, cfg.Repos, cfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, log, cfg.Addr, web.NewServer(db, decks, syncer, log))
	case "sync":
		err = runSync(ctx, syncer)
	case "add-source":
		if flags.NArg() != 2 {
			flags.Usage()
			os.Exit(2)
		}
		err = addSource(ctx, syncer, cfg.Deck, flags.Arg(1))
	case "stats":
		err = printStats(ctx, decks, cfg.Deck)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("Command failed", "command", cmd, "error", err)
		log.Sync()
		os.Exit(1)
	}
}

// seedsDecks reports whether cmd may seed, and so save, a deck that was never
// saved. stats only reads.
func seedsDecks(cmd string, seed bool) bool {
	return seed && cmd != "stats"
}

// serve runs the HTTP API until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, log *logger.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func runSync(ctx context.Context, syncer *sync.Syncer) error {
	results, err := syncer.RunSync(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != "" {
			failed++
			fmt.Printf("%-10s %s: %s\n", r.Deck, r.Path, r.Err)
			continue
		}
		fmt.Printf("%-10s %s: %d parsed, %d added, %d removed\n", r.Deck, r.Path, r.Parsed, r.Added, r.Removed)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(results))
	}
	return nil
}

func addSource(ctx context.Context, syncer *sync.Syncer, deck, path string) error {
	src, err := syncer.AddSource(ctx, deck, path)
	if err != nil {
		return err
	}
	fmt.Printf("Source %d (%s) added to deck %s: %s\n", src.ID, src.Type, src.Deck, src.Path)
	return nil
}

func printStats(ctx context.Context, decks *scheduler.Registry, name string) error {
	deck, err := decks.Deck(ctx, name)
	if err != nil {
		return err
	}
	stats := deck.Stats()
	fmt.Printf("Deck:             %s\n", deck.Deck())
	fmt.Printf("Total cards:      %d\n", stats.Total)
	fmt.Printf("Due now:          %d\n", stats.Due)
	fmt.Printf("Studied today:    %d\n", stats.StudiedToday)
	fmt.Printf("Average easiness: %.2f\n", stats.AverageEasiness)
	fmt.Printf("Sessions:         %d\n", len(deck.Sessions()))
	return nil
}
