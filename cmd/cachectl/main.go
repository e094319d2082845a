// Command cachectl runs offline maintenance of the graph cache: a full
// rebuild from the ledger, or a verification pass that reports drift.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cardlink/backend/internal/config"
	"cardlink/backend/internal/database"
	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/logger"

	"go.uber.org/zap"
)

// Exit codes.
const (
	exitOK    = 0
	exitDrift = 1
	exitError = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(openFromConfig, os.Stdout)
	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		os.Exit(exitOK)
	case errors.Is(err, errDrift):
		os.Exit(exitDrift)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitError)
	}
}

// openFromConfig connects to the ledger and the configured cache backend.
func openFromConfig(ctx context.Context) (*stores, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateCache(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	cache, closeCache, err := graphcache.New(ctx, db, graphcache.Options{
		Backend:       cfg.CacheBackend,
		RedisURL:      cfg.RedisURL,
		Neo4jURI:      cfg.Neo4jURI,
		Neo4jUser:     cfg.Neo4jUser,
		Neo4jPassword: cfg.Neo4jPassword,
	})
	if err != nil {
		return nil, err
	}

	return &stores{
		ledger: ledger.New(db),
		cache:  cache,
		log:    log,
		close: func(ctx context.Context) error {
			_ = log.Sync()
			return closeCache(ctx)
		},
	}, nil
}

type stores struct {
	ledger *ledger.Ledger
	cache  graphcache.Cache
	log    *zap.Logger
	close  func(context.Context) error
}
