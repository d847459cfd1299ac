package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/cache"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/maintenance"
)

type healthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

func usage() {
	log.Println("usage: parse-cache <stats|prune|health> [flags]")
	log.Println("  prune -older-than 720h   remove entries created before now-older-than")
	log.Println("cache selection comes from CACHE_DRIVER, CACHE_DIR, CACHE_DSN, CACHE_BUCKET")
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(2)
	}
	logger := app.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("opening cache: %v", err)
	}
	defer func(s cache.Store) {
		if err := s.Close(); err != nil {
			log.Printf("ERROR: closing cache: %v", err)
		}
	}(store)

	switch os.Args[1] {
	case "stats":
		st, err := store.Stats(ctx)
		if err != nil {
			log.Fatalf("stats: %v", err)
		}
		fmt.Printf("driver:  %s\nentries: %d\nbytes:   %d\n", st.Driver, st.Entries, st.Bytes)

	case "prune":
		fs := flag.NewFlagSet("prune", flag.ExitOnError)
		olderThan := fs.Duration("older-than", cfg.Watch.PruneMaxAge, "remove entries older than this")
		_ = fs.Parse(os.Args[2:])
		n, err := maintenance.PruneOnce(ctx, store, *olderThan, logger)
		if err != nil {
			log.Fatalf("prune: %v", err)
		}
		fmt.Printf("removed %d entries\n", n)

	case "health":
		if hc, ok := store.(healthChecker); ok {
			if err := hc.HealthCheck(ctx, 3*time.Second); err != nil {
				log.Fatalf("cache health: FAIL (%v)", err)
			}
		} else if _, err := store.Stats(ctx); err != nil {
			log.Fatalf("cache health: FAIL (%v)", err)
		}
		log.Printf("cache health (%s): OK", cfg.Cache.Driver)

	default:
		usage()
		os.Exit(2)
	}
}
