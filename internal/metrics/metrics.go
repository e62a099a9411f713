package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "picknroll"

// Metrics holds the collectors for scoring and result ingestion
type Metrics struct {
	registry *prometheus.Registry

	Recalculations     *prometheus.CounterVec
	RecalcDuration     prometheus.Histogram
	BracketsScored     prometheus.Counter
	UnscoreablePicks   prometheus.Counter
	LegacyParseFailure prometheus.Counter
	UnreadablePicks    prometheus.Counter
	ResultsRecorded    *prometheus.CounterVec
	FeedPolls          *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		Recalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculations_total",
			Help:      "Pool recalculation passes by outcome.",
		}, []string{"outcome"}),
		RecalcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recalculation_duration_seconds",
			Help:      "Wall time of a pool recalculation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		BracketsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brackets_scored_total",
			Help:      "Brackets scored across all passes.",
		}),
		UnscoreablePicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unscoreable_picks_total",
			Help:      "Picks skipped because their round has no rule.",
		}),
		LegacyParseFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legacy_picks_parse_failures_total",
			Help:      "Brackets whose stored picks blob could not be decoded.",
		}),
		UnreadablePicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unreadable_picks_total",
			Help:      "Brackets whose stored picks column could not be decoded.",
		}),
		ResultsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_recorded_total",
			Help:      "Game results written, by source.",
		}, []string{"source"}),
		FeedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_feed_polls_total",
			Help:      "Results feed polls by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.Recalculations,
		m.RecalcDuration,
		m.BracketsScored,
		m.UnscoreablePicks,
		m.LegacyParseFailure,
		m.UnreadablePicks,
		m.ResultsRecorded,
		m.FeedPolls,
	)
	return m
}

// Pass is what one pool recalculation reports
type Pass struct {
	Brackets        int
	Unscoreable     int
	LegacyFailures  int
	UnreadablePicks int
	Duration        time.Duration
}

// ObserveRecalc records one pass. A nil receiver is a no-op.
func (m *Metrics) ObserveRecalc(p Pass, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Recalculations.WithLabelValues("error").Inc()
		return
	}
	m.Recalculations.WithLabelValues("ok").Inc()
	m.RecalcDuration.Observe(p.Duration.Seconds())
	m.BracketsScored.Add(float64(p.Brackets))
	m.UnscoreablePicks.Add(float64(p.Unscoreable))
	m.LegacyParseFailure.Add(float64(p.LegacyFailures))
	m.UnreadablePicks.Add(float64(p.UnreadablePicks))
}

// ObserveResult counts a recorded result. A nil receiver is a no-op.
func (m *Metrics) ObserveResult(source string) {
	if m == nil {
		return
	}
	m.ResultsRecorded.WithLabelValues(source).Inc()
}

// ObservePoll counts a feed poll. A nil receiver is a no-op.
func (m *Metrics) ObservePoll(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FeedPolls.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
