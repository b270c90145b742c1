// Package hub exports Prometheus instruments for the /metrics endpoint.
package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus instruments. Each hub registers its own set
// on a private registry so multiple hubs (as in tests) never collide.
type metrics struct {
	connections     prometheus.Gauge
	rooms           prometheus.Gauge
	messagesIn      prometheus.Counter
	messagesOut     prometheus.Counter
	errorsTotal     *prometheus.CounterVec
	batchSize       prometheus.Histogram
	deliveryLatency prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsehub",
			Name:      "connections",
			Help:      "Open WebSocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsehub",
			Name:      "rooms",
			Help:      "Registered rooms, including empty configured ones.",
		}),
		messagesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsehub",
			Name:      "messages_in_total",
			Help:      "Messages accepted into the batching queue.",
		}),
		messagesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsehub",
			Name:      "messages_delivered_total",
			Help:      "Messages delivered to local room members.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsehub",
			Name:      "errors_total",
			Help:      "Errors surfaced to clients or logged, by code.",
		}, []string{"code"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulsehub",
			Name:      "batch_size",
			Help:      "Messages per flushed batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulsehub",
			Name:      "delivery_latency_seconds",
			Help:      "Time from enqueue to local delivery.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.connections,
		m.rooms,
		m.messagesIn,
		m.messagesOut,
		m.errorsTotal,
		m.batchSize,
		m.deliveryLatency,
	)
	return m
}
