// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrchestratorPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_orchestrator_passes_total",
		Help: "Total number of reconciliation passes, by outcome",
	}, []string{"outcome"})

	WorkerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_worker_jobs_total",
		Help: "Total number of worker job operations, by kind and operation",
	}, []string{"kind", "op"})

	HeartbeatsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_heartbeats_expired_total",
		Help: "Total number of relay heartbeats expired by the orchestrator",
	})

	LiveEventsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pitwall_live_events",
		Help: "Number of events currently marked live",
	})
)

// IncWorkerJob records a job lifecycle operation (create|delete|skip).
func IncWorkerJob(kind, op string) {
	WorkerJobsTotal.WithLabelValues(kind, op).Inc()
}
