// contentvc-verify checks the version graph of one content item:
// content hashes, parent links, ordinals and branch heads
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nainya/contentvc/internal/bootstrap"
	"github.com/nainya/contentvc/internal/config"
	"github.com/nainya/contentvc/internal/logger"
	"github.com/nainya/contentvc/pkg/store"
)

// Exit codes
const (
	exitOK       = 0
	exitProblems = 1
	exitError    = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("contentvc-verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	item := fs.String("item", "", "Content item id to verify (required)")
	dbPath := fs.String("db", "", "SQLite store path (overrides CONTENTVC_STORE_PATH)")
	verbose := fs.Bool("v", false, "Log at debug level")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	logger.InitGlobalLogger(logger.Config{Level: "warn", Output: stderr})
	log := logger.GetGlobalLogger()

	if *item == "" {
		fmt.Fprintln(stderr, "contentvc-verify: -item is required")
		fs.Usage()
		return exitError
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config").Err(err).Send()
		return exitError
	}
	// Verification reads an existing store; it never writes audit events.
	cfg.StoreDriver = config.DriverSQLite
	if *dbPath != "" {
		cfg.StorePath = *dbPath
	}
	cfg.AuditJournalPath = ""
	cfg.MetricsEnabled = false
	cfg.MetricsAddr = ""
	cfg.LogLevel = "warn"
	if *verbose {
		cfg.LogLevel = "debug"
	}

	app, err := bootstrap.New(cfg, bootstrap.WithLogOutput(stderr))
	if err != nil {
		log.Error("open store").Err(err).Send()
		return exitError
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("close store").Err(err).Send()
		}
	}()

	// Open would create a repository for an unknown item; look it up instead.
	if _, err := app.Store.GetRepositoryByContentItem(ctx, *item); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(stderr, "contentvc-verify: no repository for content item %s\n", *item)
		} else {
			log.Error("look up repository").Err(err).Send()
		}
		return exitError
	}
	repo, err := app.Engine.Open(ctx, *item)
	if err != nil {
		log.Error("open repository").Err(err).Send()
		return exitError
	}
	rep, err := repo.Verify(ctx)
	if err != nil {
		log.Error("verify").Err(err).Send()
		return exitError
	}

	fmt.Fprintf(stdout, "repository %s (content item %s): %d versions, %d branches\n",
		rep.RepositoryID, *item, rep.Versions, rep.Branches)
	if rep.OK() {
		fmt.Fprintln(stdout, "ok")
		return exitOK
	}
	for _, p := range rep.Problems {
		fmt.Fprintln(stdout, p.String())
	}
	fmt.Fprintf(stdout, "%d problems\n", len(rep.Problems))
	return exitProblems
}
