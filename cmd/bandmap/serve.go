package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hazyhaar/swiss-bandmap/pkg/api"
	"github.com/hazyhaar/swiss-bandmap/pkg/dataset"
	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
)

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	addr := fs.String("addr", "", "listen address (overrides serve.addr)")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)
	if *addr != "" {
		cfg.Serve.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load the published dataset. The server still starts without one and
	// answers 503 until a build publishes it and SIGHUP reloads.
	store := dataset.NewStore(cfg.OutputDir)
	if err := store.Load(); err != nil {
		logger.Warn("no dataset loaded", "dir", cfg.OutputDir, "error", err)
	} else {
		md, _ := store.Metadata()
		logger.Info("dataset loaded", "run_id", md.RunID, "events", md.TotalEvents,
			"municipalities", md.MunicipalitiesWithEvents, "generated_at", md.GeneratedAt)
	}

	// The index backs /v1/match only.
	idx, err := gazetteer.Load(ctx, cfg.Geography.Sources, cfg.geoOptions(logger))
	if err != nil {
		logger.Warn("municipality index unavailable, match disabled", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := api.Options{
		Store:          store,
		Index:          idx,
		StaleAfter:     cfg.Serve.StaleAfter,
		AdminTokenHash: cfg.Serve.AdminTokenHash,
		Registry:       reg,
		Logger:         logger,
		Version:        version,
	}
	opts.MCP = api.NewMCPServer(version, opts)

	srv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           api.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// SIGHUP: hot reload the dataset.
	// SIGINT/SIGTERM: graceful shutdown.
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, reloading dataset")
			if err := store.Reload(); err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			md, _ := store.Metadata()
			logger.Info("dataset reloaded", "run_id", md.RunID, "events", md.TotalEvents)
		}
	}()

	go func() {
		logger.Info("bandmap listening", "addr", cfg.Serve.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
