// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ControlLogRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_controllog_requests_total",
		Help: "Total number of control log source fetches",
	})

	ControlLogFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_controllog_failures_total",
		Help: "Total number of failed control log source fetches",
	})

	ControlLogEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_controllog_entries_total",
		Help: "Total number of new control log entries pushed to subscribers",
	})
)
