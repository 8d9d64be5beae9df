package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type feedMetrics struct {
	eventsTotal *prometheus.CounterVec
	subscribers prometheus.Gauge
}

func (f *Feed) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	f.metrics = &feedMetrics{
		eventsTotal: promautoFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "vrfmint_events_total",
			Help: "Events appended to the feed, by type",
		}, []string{"type"}),
		subscribers: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "vrfmint_event_subscribers",
			Help: "Active feed subscribers",
		}),
	}
}
