// Package metrics exposes Prometheus instrumentation for the routing
// core. Collectors register on the default registry; serve them with
// promhttp alongside the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshlink_messages_sent_total",
		Help: "Outbound messages by delivery path.",
	}, []string{"path"})

	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshlink_messages_received_total",
		Help: "Inbound messages accepted into history by path.",
	}, []string{"path"})

	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshlink_retries_total",
		Help: "Mesh resends triggered by ack timeout.",
	})

	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshlink_delivery_failures_total",
		Help: "Messages that exhausted their retry budget.",
	})

	Drops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshlink_drops_total",
		Help: "Inbound frames dropped before delivery, by reason.",
	}, []string{"reason"})

	PendingAcks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshlink_pending_acks",
		Help: "Outbound messages awaiting acknowledgement.",
	})

	PendingAssemblies = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshlink_pending_assemblies",
		Help: "Multi-chunk messages awaiting missing chunks.",
	})

	QueuedMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meshlink_queued_messages",
		Help: "Messages held for later delivery, by queue.",
	}, []string{"queue"})
)

// Drop reasons used across the router.
const (
	DropDuplicate      = "duplicate"
	DropMalformed      = "malformed"
	DropUnknownChannel = "unknown_channel"
	DropLoop           = "loop"
)
