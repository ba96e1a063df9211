package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	items     *prometheus.GaugeVec
	deadlines *prometheus.GaugeVec
	reminders prometheus.Counter
	runs      prometheus.Counter
	lastRun   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		items: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "workdesk",
				Subsystem: "sweep",
				Name:      "items",
				Help:      "Items by status at the last sweep",
			},
			[]string{"status"},
		),
		deadlines: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "workdesk",
				Subsystem: "sweep",
				Name:      "deadline_items",
				Help:      "Unfinished items in warning or breached deadline state",
			},
			[]string{"state"},
		),
		reminders: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "workdesk",
				Subsystem: "sweep",
				Name:      "reminders_sent_total",
				Help:      "Reminders delivered",
			},
		),
		runs: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "workdesk",
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Completed sweeps",
			},
		),
		lastRun: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "workdesk",
				Subsystem: "sweep",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed sweep",
			},
		),
	}
}
