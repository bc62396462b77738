package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xpertly_hub_sessions",
		Help: "Currently connected live-update sessions.",
	})
	bufferedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xpertly_hub_buffered_events",
		Help: "Events held for executions with no subscriber yet.",
	})
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xpertly_hub_events_published_total",
		Help: "Events accepted by the hub.",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xpertly_hub_events_dropped_total",
		Help: "Events dropped because the hub mailbox was full.",
	})
)
