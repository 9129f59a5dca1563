// Package pipeline runs one batch build: load geography, fetch events per
// region, match and aggregate them, build the dataset and publish it.
// Outputs are written only once every in-memory stage has succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/hazyhaar/swiss-bandmap/pkg/dataset"
	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
	"github.com/hazyhaar/swiss-bandmap/pkg/runlog"
)

// ErrAllRegionsFailed aborts a run in which no region could be fetched, so
// that an outage never replaces a good dataset with an empty one.
var ErrAllRegionsFailed = errors.New("every region fetch failed")

// unmatchedLogLimit caps how many unmatched locations are logged per run.
const unmatchedLogLimit = 10

// Fetcher returns the raw performance records of one region.
type Fetcher interface {
	FetchGigs(ctx context.Context, region string) ([]gig.Raw, error)
}

// Journal records runs and region outcomes. *runlog.Journal implements it.
type Journal interface {
	EnabledRegions() ([]string, error)
	RecordFetch(code string, count int, err error) error
	StartRun(runID string, startedAt time.Time) error
	FinishRun(runID string, o runlog.Outcome) error
}

// Config holds the per-run settings.
type Config struct {
	OutputDir string
	// Regions are fetched in order when no Journal is set.
	Regions    []string
	GeoSources []string
	Geo        gazetteer.Options
	Tolerance  float64
	CacheTTL   time.Duration
}

// Runner executes pipeline runs. Only Fetcher is required.
type Runner struct {
	Config     Config
	Fetcher    Fetcher
	Journal    Journal
	Metrics    *Metrics
	Simplifier dataset.Simplifier
	Logger     *slog.Logger
	Now        func() time.Time
	// Publish, when set, receives the dataset after it has been saved.
	Publish func(*dataset.Dataset)
}

// Report summarizes a finished run.
type Report struct {
	RunID             string
	Dataset           *dataset.Dataset
	Regions           []string
	FailedRegions     []string
	DateParseFailures int
	Duration          time.Duration
}

// Status is the journal status of a successful run.
func (r *Report) Status() string {
	if len(r.FailedRegions) > 0 {
		return runlog.StatusPartial
	}
	return runlog.StatusOK
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one build. A fatal error (geography unavailable, every region
// failed, cancellation, write failure) returns before or during Save and
// leaves previously published artifacts in place.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	logger := r.logger()
	started := r.now()

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.Must(uuid.NewV4())
	}
	report := &Report{RunID: id.String()}
	logger = logger.With("run_id", report.RunID)

	if r.Journal != nil {
		if err := r.Journal.StartRun(report.RunID, started); err != nil {
			logger.Warn("journal: start run", "error", err)
		}
	}

	cache := newRunCache(r.Config.CacheTTL, r.Now)
	defer cache.purge()

	err = r.run(ctx, logger, cache, report)
	report.Duration = r.now().Sub(started)

	status := report.Status()
	if err != nil {
		status = runlog.StatusFailed
	}
	r.Metrics.finish(status, report.Duration.Seconds())
	if r.Journal != nil {
		o := runlog.Outcome{Status: status, FailedRegions: report.FailedRegions, Err: err}
		if ds := report.Dataset; ds != nil && err == nil {
			o.TotalEvents = ds.Metadata.TotalEvents
			o.Municipalities = ds.Metadata.MunicipalitiesWithEvents
			o.Unmatched = ds.Metadata.UnmatchedLocations
		}
		if jerr := r.Journal.FinishRun(report.RunID, o); jerr != nil {
			logger.Warn("journal: finish run", "error", jerr)
		}
	}

	if err != nil {
		logger.Error("run failed", "error", err, "duration", report.Duration)
		return report, err
	}
	logger.Info("run finished", "status", status, "duration", report.Duration,
		"events", report.Dataset.Metadata.TotalEvents,
		"municipalities", report.Dataset.Metadata.MunicipalitiesWithEvents)
	return report, nil
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, cache *runCache, report *Report) error {
	if r.Fetcher == nil {
		return errors.New("pipeline: no fetcher")
	}

	regions, err := r.regions()
	if err != nil {
		return err
	}
	report.Regions = regions

	geoOpts := r.Config.Geo
	if geoOpts.Logger == nil {
		geoOpts.Logger = logger
	}
	idx, _, err := cached(cache, "geography", func() (*gazetteer.Index, error) {
		return gazetteer.Load(ctx, r.Config.GeoSources, geoOpts)
	})
	if err != nil {
		return fmt.Errorf("load geography: %w", err)
	}

	var events []gig.Event
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return err
		}
		raws, hit, err := cached(cache, "gigs:"+region, func() ([]gig.Raw, error) {
			return r.Fetcher.FetchGigs(ctx, region)
		})
		if hit {
			logger.Debug("region already fetched in this run", "region", region)
			continue
		}
		r.Metrics.fetch(region, len(raws), err)
		if r.Journal != nil {
			if jerr := r.Journal.RecordFetch(region, len(raws), err); jerr != nil {
				logger.Warn("journal: record fetch", "region", region, "error", jerr)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("region fetch failed, continuing", "region", region, "error", err)
			report.FailedRegions = append(report.FailedRegions, region)
			continue
		}

		for _, raw := range raws {
			e, ok := gig.FromRaw(raw, region)
			if !ok {
				report.DateParseFailures++
				logger.Debug("unparseable date", "region", region, "date", e.Date, "band", e.BandName)
			}
			events = append(events, e)
		}
	}
	if len(regions) > 0 && len(report.FailedRegions) == len(regions) {
		return ErrAllRegionsFailed
	}

	agg, unmatched := dataset.Aggregate(events, idx)
	logger.Info("events matched",
		"events", len(events), "municipalities", agg.Len(), "unmatched_locations", len(unmatched))
	for i, loc := range unmatched.Sorted() {
		if i == unmatchedLogLimit {
			break
		}
		logger.Debug("unmatched location", "location", loc)
	}

	b := &dataset.Builder{
		Simplifier: r.Simplifier,
		Tolerance:  r.Config.Tolerance,
		Now:        r.Now,
		Logger:     logger,
	}
	ds, err := b.Build(events, agg, unmatched, idx)
	if err != nil {
		return fmt.Errorf("build dataset: %w", err)
	}
	ds.Metadata.RunID = report.RunID
	ds.Metadata.FailedRegions = report.FailedRegions

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dataset.Save(r.Config.OutputDir, ds); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	report.Dataset = ds
	r.Metrics.published(report)

	if r.Publish != nil {
		r.Publish(ds)
	}
	return nil
}

func (r *Runner) regions() ([]string, error) {
	if r.Journal == nil {
		return r.Config.Regions, nil
	}
	regions, err := r.Journal.EnabledRegions()
	if err != nil {
		return nil, fmt.Errorf("enabled regions: %w", err)
	}
	return regions, nil
}
