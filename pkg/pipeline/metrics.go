package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs              *prometheus.CounterVec
	regionFetches     *prometheus.CounterVec
	fetchedGigs       *prometheus.CounterVec
	events            prometheus.Gauge
	municipalities    prometheus.Gauge
	unmatched         prometheus.Gauge
	simplifyFallbacks prometheus.Counter
	dateParseFailures prometheus.Counter
	lastSuccess       prometheus.Gauge
	duration          prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bandmap",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"status"}),
		regionFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bandmap",
			Name:      "region_fetches_total",
			Help:      "Region fetches by region and status",
		}, []string{"region", "status"}),
		fetchedGigs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bandmap",
			Name:      "fetched_gigs_total",
			Help:      "Raw performance records fetched per region",
		}, []string{"region"}),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bandmap",
			Name:      "dataset_events",
			Help:      "Events in the last published dataset",
		}),
		municipalities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bandmap",
			Name:      "dataset_municipalities",
			Help:      "Municipalities with events in the last published dataset",
		}),
		unmatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bandmap",
			Name:      "dataset_unmatched_locations",
			Help:      "Distinct locations that matched no municipality",
		}),
		simplifyFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandmap",
			Name:      "simplify_fallbacks_total",
			Help:      "Features published with their original geometry",
		}),
		dateParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandmap",
			Name:      "date_parse_failures_total",
			Help:      "Events kept without a parsed date",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bandmap",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last published dataset",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bandmap",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	reg.MustRegister(
		m.runs, m.regionFetches, m.fetchedGigs,
		m.events, m.municipalities, m.unmatched,
		m.simplifyFallbacks, m.dateParseFailures,
		m.lastSuccess, m.duration,
	)
	return m
}

func (m *Metrics) fetch(region string, count int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.regionFetches.WithLabelValues(region, "error").Inc()
		return
	}
	m.regionFetches.WithLabelValues(region, "ok").Inc()
	m.fetchedGigs.WithLabelValues(region).Add(float64(count))
}

func (m *Metrics) finish(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.duration.Observe(seconds)
}

func (m *Metrics) published(r *Report) {
	if m == nil {
		return
	}
	md := r.Dataset.Metadata
	m.events.Set(float64(md.TotalEvents))
	m.municipalities.Set(float64(md.MunicipalitiesWithEvents))
	m.unmatched.Set(float64(md.UnmatchedLocations))
	m.simplifyFallbacks.Add(float64(md.SimplificationFallbacks))
	m.dateParseFailures.Add(float64(r.DateParseFailures))
	m.lastSuccess.Set(float64(md.GeneratedAt.Unix()))
}
