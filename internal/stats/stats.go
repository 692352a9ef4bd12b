// Package stats holds the Prometheus metric handles the rest of the
// service calls on known events, served at /metrics on --prometheus-port.
// Field shape follows the teacher's MetricsRegistry construction pattern.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Registry holds every metric named in spec §6.
type Registry struct {
	ExchangeRateRead    *prometheus.GaugeVec
	ExchangeRateUpdated prometheus.Gauge
	WarningViolations   prometheus.Counter
	FailedReads         *prometheus.GaugeVec
	FailedSubmissions   prometheus.Gauge
	InProtectedMode     prometheus.Gauge
	FailedDatabaseUpdates prometheus.Counter

	log zerolog.Logger
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg *prometheus.Registry, log zerolog.Logger) *Registry {
	r := &Registry{
		ExchangeRateRead: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exchange_rate_read",
				Help: "Most recent raw price read from a source, by source label.",
			},
			[]string{"source"},
		),
		ExchangeRateUpdated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exchange_rate_updated",
				Help: "Last successfully published microCCD-per-EUR rate.",
			},
		),
		WarningViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warning_threshold_violations",
				Help: "Total number of candidate rates that crossed a warn threshold.",
			},
		),
		FailedReads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "failed_reads",
				Help: "Consecutive poll cycles in which every read attempt for a source failed; resets to 0 on success.",
			},
			[]string{"source"},
		),
		FailedSubmissions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "failed_submissions",
				Help: "Consecutive failed update submissions; resets to 0 on success.",
			},
		),
		InProtectedMode: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "in_protected_mode",
				Help: "1 if the service has latched protected mode, 0 otherwise.",
			},
		),
		FailedDatabaseUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "failed_database_updates",
				Help: "Counter for failed audit-sink writes; the service does not increment it, audit write errors are only logged.",
			},
		),
		log: log,
	}

	reg.MustRegister(
		r.ExchangeRateRead,
		r.ExchangeRateUpdated,
		r.WarningViolations,
		r.FailedReads,
		r.FailedSubmissions,
		r.InProtectedMode,
		r.FailedDatabaseUpdates,
	)

	log.Info().Msg("prometheus metrics registered")
	return r
}

// ObserveRead implements source.StatsRecorder.
func (r *Registry) ObserveRead(label string, price float64) {
	r.ExchangeRateRead.WithLabelValues(label).Set(price)
}

// IncFailedReads implements source.StatsRecorder.
func (r *Registry) IncFailedReads(label string) {
	r.FailedReads.WithLabelValues(label).Inc()
}

// ResetFailedReads implements source.StatsRecorder.
func (r *Registry) ResetFailedReads(label string) {
	r.FailedReads.WithLabelValues(label).Set(0)
}

// IncWarningViolations implements safetygate.StatsRecorder.
func (r *Registry) IncWarningViolations() {
	r.WarningViolations.Inc()
}

// SetProtectedMode implements safetygate.StatsRecorder.
func (r *Registry) SetProtectedMode(on bool) {
	if on {
		r.InProtectedMode.Set(1)
	} else {
		r.InProtectedMode.Set(0)
	}
}

// SetExchangeRateUpdated records a newly finalized published rate.
func (r *Registry) SetExchangeRateUpdated(microCCDPerEUR float64) {
	r.ExchangeRateUpdated.Set(microCCDPerEUR)
}

// IncFailedSubmissions bumps the consecutive-submission-failure gauge.
func (r *Registry) IncFailedSubmissions() {
	r.FailedSubmissions.Inc()
}

// ResetFailedSubmissions clears the consecutive-submission-failure gauge.
func (r *Registry) ResetFailedSubmissions() {
	r.FailedSubmissions.Set(0)
}

// IncFailedDatabaseUpdates counts one failed audit-sink write. Nothing in
// the service calls it: the source driver and the publisher log audit write
// errors without counting them, so the counter stays at 0.
func (r *Registry) IncFailedDatabaseUpdates() {
	r.FailedDatabaseUpdates.Inc()
}
