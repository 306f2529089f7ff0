package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	EnqueuedTotal    prometheus.Counter
	ClaimsTotal      prometheus.Counter
	SentTotal        prometheus.Counter
	DuplicatesTotal  prometheus.Counter
	ErrorsTotal      prometheus.Counter
	DeliveryDuration prometheus.Histogram
	QueueDepth       prometheus.Gauge
	SessionState     *prometheus.GaugeVec
}

// NewMetrics creates new Prometheus metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates new Prometheus metrics on reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EnqueuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_dispatch_enqueued_total",
			Help: "Total number of messages accepted into the queue",
		}),
		ClaimsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_dispatch_claims_total",
			Help: "Total number of messages claimed by the dispatch loop",
		}),
		SentTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_dispatch_sent_total",
			Help: "Total number of successfully delivered messages",
		}),
		DuplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_dispatch_duplicates_total",
			Help: "Total number of messages suppressed as duplicates",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "whatsapp_dispatch_errors_total",
			Help: "Total number of failed deliveries",
		}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whatsapp_dispatch_delivery_duration_seconds",
			Help:    "Time spent in delivery driver send calls",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whatsapp_dispatch_queue_depth",
			Help: "Number of messages currently waiting in the queue",
		}),
		SessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "whatsapp_dispatch_session_state",
			Help: "Delivery channel session state (1 for the active state)",
		}, []string{"state"}),
	}
}
