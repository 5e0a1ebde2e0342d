package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rmax-ai/osmon/pkg/api"
	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/blob"
	"github.com/rmax-ai/osmon/pkg/client"
	"github.com/rmax-ai/osmon/pkg/engine"
	"github.com/rmax-ai/osmon/pkg/logging"
	"github.com/rmax-ai/osmon/pkg/store"
	"github.com/rmax-ai/osmon/pkg/store/redis"
)

var Version = "dev"

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logging.New(os.Stderr, "info", "osmon-d").Error("invalid_config", "error", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, "osmon-d")
	logger.Info("system_started", "version", Version, "backend", cfg.BackendURL)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed_to_close_store", "error", err)
		}
	}()
	logger.Info("store_initialized", "path", cfg.DBPath)

	var (
		leases store.LeaseStore = st
		cache  *redis.ViewCache
	)
	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		leases = redis.NewLeaseStore(rdb)
		cache = redis.NewViewCache(rdb, cfg.Redis.CacheTTL)
		logger.Info("redis_connected", "addr", cfg.Redis.Addr)
	}

	views := engine.NewViewProjection()
	restore(ctx, logger, views, st, cache)

	var viewCache engine.ViewCache
	if cache != nil {
		viewCache = cache
	}
	poller := engine.NewPoller(
		backend.NewClient(cfg.BackendURL, cfg.BackendTimeout),
		views, st, viewCache,
		engine.PollerConfig{
			Interval: cfg.PollInterval,
			Backoff:  client.PollBackoff(),
			WriterID: cfg.HolderID,
		},
		logger,
	)

	election := engine.NewElectionManager(leases, cfg.HolderID, engine.MaintenanceLease, cfg.LeaseTTL, logger,
		func() { logger.Info("maintenance_promoted") },
		func() { logger.Info("maintenance_demoted") },
	)
	election.Start(ctx)

	archives := blob.NewLocalBlobStore(cfg.ArchiveDir)
	srv := api.NewServer(st, views, poller, api.Config{Addr: cfg.Addr, Version: Version}, logger)
	srv.SetArchiveStore(archives)
	srv.SetElectionManager(election)

	var wg sync.WaitGroup
	spawn := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	spawn(poller.Start)
	spawn(engine.NewPruneWorker(st, election, cfg.Retention, logger).Run)
	spawn(engine.NewNotifier(st, election, cfg.Notifier, logger).Start)
	if cfg.Archive.Enabled {
		spawn(engine.NewArchiveWorker(st, archives, election, cfg.Archive, logger).Run)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_initiated")
	case err = <-errCh:
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if serr := srv.Stop(shutdownCtx); serr != nil {
		logger.Error("server_shutdown_failed", "error", serr)
	}
	election.Stop(shutdownCtx)
	wg.Wait()
	return err
}

// restore seeds the projection before the first poll so the API can answer
// immediately after a restart. The shared cache wins over the local store.
func restore(ctx context.Context, logger *slog.Logger, views *engine.ViewProjection, st *store.Store, cache *redis.ViewCache) {
	if cache != nil {
		v, ok, err := cache.Load(ctx)
		if err != nil {
			logger.Warn("view_cache_load_failed", "error", err)
		}
		if ok && views.Restore(v) {
			logger.Info("view_restored", "source", "redis", "snapshot_id", v.SnapshotID)
			return
		}
	}

	v, ok, err := engine.RestoreFromStore(ctx, st)
	if err != nil {
		logger.Warn("view_restore_failed", "error", err)
		return
	}
	if ok && views.Restore(v) {
		logger.Info("view_restored", "source", "store", "snapshot_id", v.SnapshotID)
	}
}
