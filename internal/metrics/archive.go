// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArchiveRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_archive_runs_total",
		Help: "Total number of archive runs, by outcome",
	}, []string{"outcome"})

	EventsArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_events_archived_total",
		Help: "Total number of events fully archived",
	})

	ArchiveStepFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_archive_step_failures_total",
		Help: "Total number of archive step failures, by step",
	}, []string{"step"})

	SimulatedEventsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_simulated_events_purged_total",
		Help: "Total number of simulated events purged without archive",
	})
)
