package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mathgrid_queue_tasks_total",
		Help: "Finished build tasks by final state",
	}, []string{"state"})

	runningTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mathgrid_queue_running_tasks",
		Help: "Build tasks currently running",
	})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mathgrid_queue_step_duration_seconds",
		Help:    "Duration of build steps by target",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"target", "result"})
)
