package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/swiss-bandmap/pkg/mx3"
	"github.com/hazyhaar/swiss-bandmap/pkg/pipeline"
	"github.com/hazyhaar/swiss-bandmap/pkg/runlog"
)

func cmdBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	metricsFile := fs.String("metrics-file", "", "write run metrics to this Prometheus textfile")
	timeout := fs.Duration("timeout", 30*time.Minute, "abort the run after this long")
	fs.Parse(args)

	cfg, logger := setup(*cfgPath)

	client, err := mx3.New(cfg.MX3, logger)
	if err != nil {
		logger.Error("mx3 client", "error", err)
		os.Exit(1)
	}

	jr, err := openJournal(cfg, logger)
	if err != nil {
		logger.Error("open run journal", "error", err)
		os.Exit(1)
	}
	defer jr.Close()

	reg := prometheus.NewRegistry()
	runner := &pipeline.Runner{
		Config: pipeline.Config{
			OutputDir:  cfg.OutputDir,
			Regions:    cfg.regions(),
			GeoSources: cfg.Geography.Sources,
			Geo:        cfg.geoOptions(logger),
			Tolerance:  cfg.SimplifyTolerance,
			CacheTTL:   cfg.CacheTTL,
		},
		Fetcher: client,
		Journal: jr,
		Metrics: pipeline.NewMetrics(reg),
		Logger:  logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	report, runErr := runner.Run(ctx)

	if *metricsFile != "" {
		if err := prometheus.WriteToTextfile(*metricsFile, reg); err != nil {
			logger.Error("write metrics textfile", "path", *metricsFile, "error", err)
		}
	}
	if runErr != nil {
		os.Exit(1)
	}

	md := report.Dataset.Metadata
	fmt.Printf("run %s: %s\n", report.RunID, report.Status())
	fmt.Printf("  events:          %d\n", md.TotalEvents)
	fmt.Printf("  municipalities:  %d / %d\n", md.MunicipalitiesWithEvents, md.TotalMunicipalities)
	fmt.Printf("  unmatched:       %d locations\n", md.UnmatchedLocations)
	if len(report.FailedRegions) > 0 {
		fmt.Printf("  failed regions:  %v\n", report.FailedRegions)
	}
	fmt.Printf("  written to:      %s (%s)\n", cfg.OutputDir, report.Duration.Round(time.Millisecond))
}

// openJournal opens the run journal and seeds it with the configured regions.
func openJournal(cfg config, logger *slog.Logger) (*runlog.Journal, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.RunlogDB), 0o755); err != nil {
		return nil, err
	}
	jr, err := runlog.Open(cfg.RunlogDB)
	if err != nil {
		return nil, err
	}
	if err := jr.Seed(cfg.regions()); err != nil {
		jr.Close()
		return nil, err
	}
	logger.Debug("run journal ready", "path", cfg.RunlogDB)
	return jr, nil
}
