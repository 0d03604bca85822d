package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors exported by the daemon.
type Metrics struct {
	// Gateway metrics
	GatewayRequests *prometheus.CounterVec
	GatewayLatency  *prometheus.HistogramVec

	// Sync metrics
	SendsTotal   *prometheus.CounterVec
	PollsTotal   *prometheus.CounterVec
	PollFailures prometheus.Gauge
	MarkReads    *prometheus.CounterVec
	PendingOps   prometheus.Gauge
	UnreadTotal  prometheus.Gauge

	// Daemon metrics
	Watchers prometheus.Gauge
}

// New registers all collectors with reg. A nil reg uses a private registry,
// which keeps repeated construction in tests from panicking.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		GatewayRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admiral_gateway_requests_total",
				Help: "Total requests made to the chat gateway",
			},
			[]string{"op", "result"}, // "ok", "network", "rejected", "not_found"
		),
		GatewayLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admiral_gateway_request_duration_seconds",
				Help:    "Chat gateway request duration",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		SendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admiral_sends_total",
				Help: "Total message sends by outcome",
			},
			[]string{"result"}, // "sent" or "failed"
		),
		PollsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admiral_polls_total",
				Help: "Total poll cycles by outcome",
			},
			[]string{"result"},
		),
		PollFailures: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "admiral_poll_consecutive_failures",
				Help: "Consecutive failed poll cycles",
			},
		),
		MarkReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admiral_mark_reads_total",
				Help: "Total mark-read calls by outcome",
			},
			[]string{"result"}, // "ok", "queued", "dropped"
		),
		PendingOps: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "admiral_pending_ops",
				Help: "Operations waiting for a retry",
			},
		),
		UnreadTotal: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "admiral_unread_messages",
				Help: "Unread messages across all channels",
			},
		),
		Watchers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "admiral_watch_streams",
				Help: "Attached UI watch streams",
			},
		),
	}
}
