// Package metrics defines the Prometheus instrumentation for the sync
// engine, exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Saves counts save-pipeline outcomes: ok, conflict, not_found,
	// io_failure, unavailable.
	Saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "specbook_saves_total",
		Help: "Save pipeline results by outcome.",
	}, []string{"outcome"})

	// WatchEvents counts raw filesystem notifications by operation.
	WatchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "specbook_watch_events_total",
		Help: "Filesystem watcher events by operation.",
	}, []string{"op"})

	// Broadcasts counts events fanned out to sessions by kind.
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "specbook_broadcast_events_total",
		Help: "Broadcast notifications delivered to sessions by kind.",
	}, []string{"kind"})

	// SessionsActive tracks currently connected live-sync sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specbook_sessions_active",
		Help: "Connected live-sync sessions.",
	})

	// DocumentsTracked tracks documents held in the store.
	DocumentsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specbook_documents_tracked",
		Help: "Documents currently tracked by the store.",
	})
)
