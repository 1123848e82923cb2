package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the counters for one process. A batch run pushes them to a
// Pushgateway when it finishes.
type Metrics struct {
	registry *prometheus.Registry

	DaysTotal          *prometheus.CounterVec
	WeeksTotal         *prometheus.CounterVec
	LLMCallsTotal      *prometheus.CounterVec
	FetchErrorsTotal   *prometheus.CounterVec
	ReleasesSummarized prometheus.Counter
	ReleasesDeduped    prometheus.Counter
	RunDuration        prometheus.Gauge
	LastSuccess        prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DaysTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govdigest_days_total",
				Help: "Planned days by outcome",
			},
			[]string{"outcome"},
		),
		WeeksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govdigest_weeks_total",
				Help: "Weekly rollups attempted by outcome",
			},
			[]string{"outcome"},
		),
		LLMCallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govdigest_llm_calls_total",
				Help: "Summarization calls by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		FetchErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "govdigest_fetch_errors_total",
				Help: "Country/date fetches that failed after retries",
			},
			[]string{"country"},
		),
		ReleasesSummarized: f.NewCounter(prometheus.CounterOpts{
			Name: "govdigest_releases_summarized_total",
			Help: "Releases summarized and committed",
		}),
		ReleasesDeduped: f.NewCounter(prometheus.CounterOpts{
			Name: "govdigest_releases_deduped_total",
			Help: "Fetched releases skipped because they were already summarized",
		}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "govdigest_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "govdigest_last_success_timestamp_seconds",
			Help: "Unix time of the last run that committed at least one digest",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveLLM records one summarization call.
func (m *Metrics) ObserveLLM(scope string, err error) {
	m.LLMCallsTotal.WithLabelValues(scope, outcome(err)).Inc()
}

// ObserveRun records run duration and, when progress was made, the success time.
func (m *Metrics) ObserveRun(start time.Time, progressed bool) {
	m.RunDuration.Set(time.Since(start).Seconds())
	if progressed {
		m.LastSuccess.SetToCurrentTime()
	}
}

// Push sends all collectors to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
