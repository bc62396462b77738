package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xpertly_worker_active_runs",
		Help: "Invocations currently executing.",
	})
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xpertly_worker_runs_total",
		Help: "Finished invocations by result.",
	}, []string{"result"})
	taskEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xpertly_worker_events_total",
		Help: "Run log events by type.",
	}, []string{"event"})
)
