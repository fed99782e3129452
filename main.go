package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tinyduel/internal/config"
	"tinyduel/internal/duel"
	"tinyduel/internal/game"
	"tinyduel/internal/handlers"
	"tinyduel/internal/logging"
	"tinyduel/internal/storage"
	"tinyduel/internal/storage/sqlite"
	"tinyduel/internal/templates"
	"tinyduel/pkg/utils"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(*debug || cfg.Debug, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	log := logging.L()

	templates.SetCommit(commit)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalw("failed to open store", "store", cfg.Store, "error", err)
	}
	defer closeStore()

	seed, err := utils.NewSeed()
	if err != nil {
		log.Fatalw("failed to seed shuffler", "error", err)
	}
	machine := duel.NewMachine(duel.NewShuffler(seed))
	machine.HandSize = cfg.HandSize
	machine.LogLimit = cfg.LogLimit
	machine.EnforceTurnOrder = cfg.EnforceTurns

	hub := game.NewHub()
	defer hub.Close()
	svc := game.NewService(store, hub, machine)

	h := handlers.NewHandler(svc)
	h.Heartbeat = cfg.Heartbeat
	h.AllowedOrigins = cfg.AllowedOrigins
	h.Commit = commit
	h.BuildDate = buildDate

	srv := &http.Server{Addr: cfg.Addr, Handler: handlers.NewRouter(h)}
	errCh := make(chan error, 1)
	go func() {
		log.Infow("Tiny Duel listening", "addr", cfg.Addr, "store", cfg.Store, "commit", commit)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infow("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server stopped unexpectedly", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
}

// openStore builds the configured match store and a function releasing it.
func openStore(cfg config.Config) (storage.MatchStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := storage.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := storage.NewStore(db)
		closeDB := func() {
			if sqlDB, err := s.DB().DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return s, closeDB, nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s.SetCommitRetries(cfg.CommitRetries)
		return s, func() { _ = s.Close() }, nil
	default:
		return storage.NewMemory(), func() {}, nil
	}
}
