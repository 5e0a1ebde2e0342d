package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rmax-ai/osmon/pkg/backend"
	"github.com/rmax-ai/osmon/pkg/logging"
)

func main() {
	var (
		addr      string
		scenarios string
		start     string
		cycle     time.Duration
		logLevel  string
	)

	flag.StringVar(&addr, "addr", "127.0.0.1:8080", "listen address; the API is served under /api")
	flag.StringVar(&scenarios, "scenarios", "", "YAML file with extra scenarios")
	flag.StringVar(&start, "start", "safe", "scenario to start in")
	flag.DurationVar(&cycle, "cycle", 0, "alternate between the start scenario and deadlock at this interval")
	flag.StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	flag.Parse()

	logger := logging.New(os.Stdout, logLevel, "osmon-sim")

	var extra []backend.Scenario
	if scenarios != "" {
		loaded, err := backend.LoadScenarios(scenarios)
		if err != nil {
			logger.Error("scenarios_load_failed", "error", err)
			os.Exit(1)
		}
		extra = loaded
		logger.Info("scenarios_loaded", "path", scenarios, "count", len(loaded))
	}

	fake := backend.NewFakeBackend(extra...)
	if !fake.Use(start) {
		logger.Error("unknown_scenario", "name", start)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cycle > 0 {
		go alternate(ctx, fake, start, cycle, logger)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           fake,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("sim_started", "addr", addr, "scenario", fake.Current())
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sim_stopped")
}

// alternate flips the fake between the start scenario and the deadlock
// scenario so a watching daemon sees the verdict change.
func alternate(ctx context.Context, fake *backend.FakeBackend, start string, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next := "deadlock"
			if fake.Current() == "deadlock" {
				next = start
			}
			fake.Use(next)
			logger.Info("scenario_switched", "scenario", next)
		}
	}
}
