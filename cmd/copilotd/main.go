// copilotd is the betting copilot daemon. It serves match analyses over
// HTTP, streams them over WebSocket and can re-analyse a watch list of
// fixtures on an interval.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/phenomenon0/bet-copilot/pkg/config"
	"github.com/phenomenon0/bet-copilot/pkg/engine"
	"github.com/phenomenon0/bet-copilot/pkg/logging"
	"github.com/phenomenon0/bet-copilot/pkg/metrics"
	"github.com/phenomenon0/bet-copilot/pkg/streaming"
)

var (
	// Flags
	envFile  = flag.String("env", ".env", "Env file to load before the environment")
	httpAddr = flag.String("http", "", "HTTP listen address (overrides HTTP_ADDR)")
	noWatch  = flag.Bool("no-watch", false, "Do not run the fixture watch loop")
	verbose  = flag.Bool("verbose", false, "Debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if *httpAddr != "" {
		cfg.Server.Addr = *httpAddr
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	logger.Info("starting bet copilot", "league", cfg.League.Name, "season", cfg.League.Season,
		"ai", cfg.AI.Primary+"+"+cfg.AI.Secondary, "collaborative", cfg.AI.Collaborative)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.NewCopilotMetrics()
	hub := streaming.NewHub(logger)
	go hub.Run(ctx)

	rt, err := engine.Assemble(ctx, cfg, engine.Deps{Metrics: m, Hub: hub, Logger: logger})
	if err != nil {
		logger.Fatal("failed to assemble runtime", "err", err)
	}
	defer rt.Close()

	srv := &server{rt: rt, hub: hub, metrics: m, logger: logging.Component(logger, "http"), started: time.Now()}

	if fixtures := watchList(cfg, logger); len(fixtures) > 0 && !*noWatch {
		srv.watcher = engine.NewWatcher(rt.Aggregator, engine.WatcherConfig{
			Fixtures:      fixtures,
			Interval:      cfg.Server.WatchInterval,
			MaxConcurrent: cfg.Server.MaxConcurrent,
			Logger:        logger,
		})
		srv.watcher.OnError(func(err error) {
			hub.BroadcastError(err, "watch")
		})
		m.UpdateWatchedFixtures(len(fixtures))
		if err := srv.watcher.Start(ctx); err != nil {
			logger.Fatal("failed to start watcher", "err", err)
		}
		logger.Info("watching fixtures", "count", len(fixtures), "interval", cfg.Server.WatchInterval)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			cancel()
		}
	}()

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	if srv.watcher != nil {
		srv.watcher.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	cancel()
	logger.Info("goodbye")
}

func watchList(cfg *config.Config, logger *log.Logger) []config.Fixture {
	var out []config.Fixture
	for _, s := range cfg.Server.Watch {
		f, ok := config.ParseFixture(s)
		if !ok {
			logger.Warn("ignoring malformed fixture", "fixture", s)
			continue
		}
		out = append(out, f)
	}
	return out
}
