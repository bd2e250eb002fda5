// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_bus_publish_total",
		Help: "Total number of bus publishes by channel kind and outcome",
	}, []string{"kind", "outcome"})

	BusConsumeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_bus_consume_total",
		Help: "Total number of stream entries consumed, by consumer group",
	}, []string{"group"})

	BusReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_bus_reconnects_total",
		Help: "Total number of bus reconnect attempts after a connection loss",
	})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_bus_dropped_total",
		Help: "Total number of bus messages dropped by topic and reason",
	}, []string{"topic", "reason"})
)

// IncBusPublish records a publish attempt outcome.
func IncBusPublish(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	BusPublishTotal.WithLabelValues(kind, outcome).Inc()
}

// IncBusConsume records consumed stream entries.
func IncBusConsume(group string, n int) {
	if n <= 0 {
		return
	}
	BusConsumeTotal.WithLabelValues(group).Add(float64(n))
}

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(topic, reason).Inc()
}
