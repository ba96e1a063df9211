package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "workdesk"

type metrics struct {
	transitions  *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	spawned      prometheus.Counter
	itemsCreated *prometheus.CounterVec
	hoursLogged  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "items",
				Name:      "transitions_total",
				Help:      "Accepted status transitions by source and target status",
			},
			[]string{"from", "to"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "items",
				Name:      "rejections_total",
				Help:      "Rejected mutations by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		spawned: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "recurrence",
				Name:      "spawned_total",
				Help:      "Recurrence successors created on completion",
			},
		),
		itemsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "items",
				Name:      "created_total",
				Help:      "Items created by kind",
			},
			[]string{"kind"},
		),
		hoursLogged: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "time",
				Name:      "hours_logged_total",
				Help:      "Hours logged across all items",
			},
		),
	}
}
