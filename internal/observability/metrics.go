package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gforcelink",
			Subsystem: "command",
			Name:      "dispatched_total",
			Help:      "Commands handed to the transport.",
		},
		[]string{"opcode", "result"},
	)
	commandOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gforcelink",
			Subsystem: "command",
			Name:      "completions_total",
			Help:      "Command completions by status.",
		},
		[]string{"opcode", "status"},
	)
	commandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gforcelink",
			Subsystem: "command",
			Name:      "round_trip_seconds",
			Help:      "Time from dispatch to completion.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"opcode", "status"},
	)
	fragmentsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gforcelink",
			Subsystem: "frame",
			Name:      "fragments_sent_total",
			Help:      "Wire fragments written to the transport.",
		},
	)
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gforcelink",
			Subsystem: "frame",
			Name:      "messages_received_total",
			Help:      "Complete inbound messages by channel.",
		},
		[]string{"channel"},
	)
	anomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gforcelink",
			Subsystem: "frame",
			Name:      "anomalies_total",
			Help:      "Dropped inbound fragments and messages by channel and reason.",
		},
		[]string{"channel", "reason"},
	)
	pendingCommands = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gforcelink",
			Subsystem: "command",
			Name:      "pending",
			Help:      "Outstanding commands awaiting a response.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			commandsDispatched,
			commandOutcomes,
			commandLatency,
			fragmentsSent,
			inboundMessages,
			anomalies,
			pendingCommands,
		)
	})
}

func RecordDispatch(opcode, result string, fragments int) {
	RegisterMetrics()
	commandsDispatched.WithLabelValues(opcode, result).Inc()
	if fragments > 0 {
		fragmentsSent.Add(float64(fragments))
	}
}

func RecordCompletion(opcode, status string, elapsed time.Duration) {
	RegisterMetrics()
	commandOutcomes.WithLabelValues(opcode, status).Inc()
	commandLatency.WithLabelValues(opcode, status).Observe(elapsed.Seconds())
}

func RecordInbound(channel string) {
	RegisterMetrics()
	inboundMessages.WithLabelValues(channel).Inc()
}

func RecordAnomaly(channel, reason string) {
	RegisterMetrics()
	anomalies.WithLabelValues(channel, reason).Inc()
}

func AddPending(delta int) {
	RegisterMetrics()
	pendingCommands.Add(float64(delta))
}
