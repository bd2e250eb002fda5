// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelayLogRowsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_relay_log_rows_persisted_total",
		Help: "Total number of raw relay frame rows written to the database",
	})

	RelayLogFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_relay_log_flushes_total",
		Help: "Total number of relay log batch flushes, by trigger (rows|interval|shutdown)",
	}, []string{"trigger"})
)
