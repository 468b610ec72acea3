package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesSent counts successfully persisted outgoing messages.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pixchat",
		Name:      "messages_sent_total",
		Help:      "Number of direct messages persisted.",
	})

	// AttachmentsUploaded counts attachment uploads by kind.
	AttachmentsUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixchat",
		Name:      "attachments_uploaded_total",
		Help:      "Number of message attachments uploaded, by kind.",
	}, []string{"kind"})

	// TypingSignals counts typing broadcasts published.
	TypingSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pixchat",
		Name:      "typing_signals_total",
		Help:      "Number of typing signals published.",
	})

	// RealtimeDrops counts events dropped because a subscriber was slow.
	RealtimeDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pixchat",
		Name:      "realtime_drops_total",
		Help:      "Number of realtime events dropped on slow subscribers.",
	})
)

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
