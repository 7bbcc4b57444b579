package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the dispatcher's Prometheus instruments. Each dispatcher
// owns its own set against its own registry; nothing is process-global.
type metrics struct {
	eventsTotal      *prometheus.CounterVec
	eventDuration    *prometheus.HistogramVec
	abuseChecksTotal prometheus.Counter
	negotiateTotal   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, namespace string, buckets []float64, constLabels prometheus.Labels) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "events_total",
			Help:        "Total webhook deliveries processed, by event type and outcome",
			ConstLabels: constLabels,
		}, []string{"type", "status"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "event_duration_seconds",
			Help:        "Event handler duration in seconds",
			ConstLabels: constLabels,
			Buckets:     buckets,
		}, []string{"type"}),

		abuseChecksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "abuse_checks_total",
			Help:        "Total abuse protection preflight requests",
			ConstLabels: constLabels,
		}),

		negotiateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "negotiate_total",
			Help:        "Total negotiate requests, by outcome",
			ConstLabels: constLabels,
		}, []string{"status"}),
	}
}
