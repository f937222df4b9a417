package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the live-session subsystem.
type Metrics struct {
	registry            *prometheus.Registry
	webhookEventsTotal  prometheus.Counter
	webhookAppliedTotal prometheus.Counter
	webhookIgnoredTotal prometheus.Counter
	egressStartsTotal   prometheus.Counter
	replayRequestsTotal prometheus.Counter
	replayBytesTotal    prometheus.Counter
}

// New creates and registers metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	webhookEventsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesession_webhook_events_total",
		Help: "Total provider webhook events with a valid signature",
	})
	webhookAppliedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesession_webhook_applied_total",
		Help: "Webhook events that mutated a session row",
	})
	webhookIgnoredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesession_webhook_ignored_total",
		Help: "Webhook events acknowledged without a state change",
	})
	egressStartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesession_egress_starts_total",
		Help: "Recording jobs started against the RTC provider",
	})
	replayRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesession_replay_requests_total",
		Help: "Replay proxy requests served",
	})
	replayBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesession_replay_bytes_total",
		Help: "Bytes relayed from object storage to replay viewers",
	})

	registry.MustRegister(
		webhookEventsTotal,
		webhookAppliedTotal,
		webhookIgnoredTotal,
		egressStartsTotal,
		replayRequestsTotal,
		replayBytesTotal,
	)

	return &Metrics{
		registry:            registry,
		webhookEventsTotal:  webhookEventsTotal,
		webhookAppliedTotal: webhookAppliedTotal,
		webhookIgnoredTotal: webhookIgnoredTotal,
		egressStartsTotal:   egressStartsTotal,
		replayRequestsTotal: replayRequestsTotal,
		replayBytesTotal:    replayBytesTotal,
	}
}

// IncWebhookEvents increments the verified webhook event counter.
func (m *Metrics) IncWebhookEvents() { m.webhookEventsTotal.Inc() }

// IncWebhookApplied increments the applied webhook counter.
func (m *Metrics) IncWebhookApplied() { m.webhookAppliedTotal.Inc() }

// IncWebhookIgnored increments the ignored webhook counter.
func (m *Metrics) IncWebhookIgnored() { m.webhookIgnoredTotal.Inc() }

// IncEgressStarts increments the egress start counter.
func (m *Metrics) IncEgressStarts() { m.egressStartsTotal.Inc() }

// IncReplayRequests increments the replay request counter.
func (m *Metrics) IncReplayRequests() { m.replayRequestsTotal.Inc() }

// AddReplayBytes records bytes relayed to a replay viewer.
func (m *Metrics) AddReplayBytes(n int64) {
	if n > 0 {
		m.replayBytesTotal.Add(float64(n))
	}
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
