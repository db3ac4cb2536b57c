package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts push events handed to a reconciler, by outcome
	// (applied, ignored, malformed, unknown).
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_events_total",
		Help: "Realtime events processed by the local reconcilers.",
	}, []string{"feed", "type", "outcome"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_fetch_duration_seconds",
		Help:    "Duration of backend page fetches and mutations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed", "operation", "result"})

	SubscriptionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_subscription_transitions_total",
		Help: "Realtime subscription state transitions.",
	}, []string{"state"})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_transport_messages_total",
		Help: "Messages received from the realtime transport, by outcome.",
	}, []string{"transport", "outcome"})

	UnreadNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_unread_notifications",
		Help: "Current unread notification counter.",
	})
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
