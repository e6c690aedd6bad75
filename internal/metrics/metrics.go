package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Channel holds the per-channel collectors. Each process builds one and
// shares it across all of its bindings.
type Channel struct {
	SamplesSent     *prometheus.CounterVec
	SamplesReceived *prometheus.CounterVec
	SamplesRejected *prometheus.CounterVec
	DeadlineMissed  *prometheus.CounterVec
	SendRetries     *prometheus.CounterVec
	SendErrors      *prometheus.CounterVec
	SendDuration    *prometheus.HistogramVec
	ReadingValue    *prometheus.GaugeVec
}

// New registers the collectors on reg. A nil reg gets a private registry so
// tests can build as many as they like.
func New(reg prometheus.Registerer) *Channel {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Channel{
		SamplesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envdata_samples_sent_total",
				Help: "Samples written to the transport",
			},
			[]string{"channel"},
		),
		SamplesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envdata_samples_received_total",
				Help: "Samples accepted into a reader history",
			},
			[]string{"channel"},
		),
		// reason is one of decode, type_mismatch, resource_limit
		SamplesRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envdata_samples_rejected_total",
				Help: "Samples dropped before reaching a reader history",
			},
			[]string{"channel", "reason"},
		),
		DeadlineMissed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envdata_deadline_missed_total",
				Help: "Requested deadline periods that passed without a sample",
			},
			[]string{"channel"},
		),
		SendRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envdata_send_retries_total",
				Help: "Transient send failures that were retried",
			},
			[]string{"channel"},
		),
		SendErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "envdata_send_errors_total",
				Help: "Sends that failed after all retries",
			},
			[]string{"channel"},
		),
		SendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "envdata_send_duration_seconds",
				Help:    "Time spent in a send, retries included",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"channel"},
		),
		ReadingValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "envdata_reading_value",
				Help: "Last value published or received per channel",
			},
			[]string{"channel"},
		),
	}
}
