// Package metrics records Prometheus collectors for a monitoring run and
// pushes them to a Pushgateway when the run finishes.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder owns a private registry so that a batch run pushes only its own
// series. All methods are safe on a nil Recorder.
type Recorder struct {
	registry *prometheus.Registry

	providerRequestsTotal   *prometheus.CounterVec
	providerDurationSeconds *prometheus.HistogramVec
	hitsScannedTotal        *prometheus.CounterVec
	newHitsTotal            *prometheus.CounterVec
	notificationsTotal      *prometheus.CounterVec
	stateSavesTotal         *prometheus.CounterVec
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	identifiers             prometheus.Gauge
	lastRunTimestamp        prometheus.Gauge
	lastRunDurationSeconds  prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		providerRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vinmonitor_provider_requests_total",
				Help: "Search provider queries, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		providerDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vinmonitor_provider_request_duration_seconds",
				Help:    "Histogram of search provider query latencies, including retries.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		hitsScannedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vinmonitor_hits_scanned_total",
				Help: "Raw search hits returned, labeled by provider.",
			},
			[]string{"provider"},
		),
		newHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vinmonitor_new_hits_total",
				Help: "Previously unseen URLs found, labeled by identifier.",
			},
			[]string{"identifier"},
		),
		notificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vinmonitor_notifications_total",
				Help: "Notification deliveries, labeled by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		),
		stateSavesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vinmonitor_state_saves_total",
				Help: "State save attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		rateLimitDelaysSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vinmonitor_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		identifiers: f.NewGauge(prometheus.GaugeOpts{
			Name: "vinmonitor_identifiers",
			Help: "Number of identifiers checked in the last run.",
		}),
		lastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "vinmonitor_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastRunDurationSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "vinmonitor_last_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// ObserveProvider records one provider query.
func (r *Recorder) ObserveProvider(provider string, hits int, duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.providerRequestsTotal.WithLabelValues(provider, outcome(err)).Inc()
	r.providerDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
	if hits > 0 {
		r.hitsScannedTotal.WithLabelValues(provider).Add(float64(hits))
	}
}

// ObserveNewHits adds n previously unseen URLs for identifier.
func (r *Recorder) ObserveNewHits(identifier string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.newHitsTotal.WithLabelValues(identifier).Add(float64(n))
}

// ObserveNotification records one delivery attempt.
func (r *Recorder) ObserveNotification(channel string, err error) {
	if r == nil {
		return
	}
	r.notificationsTotal.WithLabelValues(channel, outcome(err)).Inc()
}

// ObserveSave records one state save attempt.
func (r *Recorder) ObserveSave(err error) {
	if r == nil {
		return
	}
	r.stateSavesTotal.WithLabelValues(outcome(err)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (r *Recorder) ObserveRateLimitDelay(provider string, duration time.Duration) {
	if r == nil {
		return
	}
	r.rateLimitDelaysSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRun records the run-level gauges.
func (r *Recorder) ObserveRun(identifiers int, finished time.Time, duration time.Duration) {
	if r == nil {
		return
	}
	r.identifiers.Set(float64(identifiers))
	r.lastRunTimestamp.Set(float64(finished.Unix()))
	r.lastRunDurationSeconds.Set(duration.Seconds())
}

// Push sends the registry to a Pushgateway, replacing the job's previous group.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
