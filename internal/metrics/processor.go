// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PatchesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_patches_emitted_total",
		Help: "Total number of state patches broadcast, by kind (session|car)",
	}, []string{"kind"})

	SnapshotsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_snapshots_published_total",
		Help: "Total number of full-state snapshots published",
	})

	LapsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_laps_persisted_total",
		Help: "Total number of completed laps written to the lap log",
	})

	LapsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_laps_dropped_total",
		Help: "Total number of lap rows dropped after exhausting insert retries",
	})

	SessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_session_transitions_total",
		Help: "Total number of session lifecycle transitions, by target state",
	}, []string{"to"})

	ResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_resets_total",
		Help: "Total number of timing resets ($I) processed",
	})

	DriversEnrichedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_drivers_enriched_total",
		Help: "Total number of driver resolutions, by method (car|transponder|cleared)",
	}, []string{"method"})
)

// IncPatch records an emitted patch.
func IncPatch(kind string) {
	PatchesEmittedTotal.WithLabelValues(kind).Inc()
}

// IncSessionTransition records a lifecycle transition.
func IncSessionTransition(to string) {
	SessionTransitionsTotal.WithLabelValues(to).Inc()
}
