package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_scan_events_total",
		Help: "Scan events appended to the ledger, by event type.",
	}, []string{"event_type"})

	SignalsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_replenishment_signals_opened_total",
		Help: "Replenishment signals opened by the consume evaluator.",
	})

	DebounceRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_scans_debounced_total",
		Help: "Scans rejected by the duplicate-scan debounce window.",
	})
)
