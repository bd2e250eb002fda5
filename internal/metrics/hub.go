// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HubConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pitwall_hub_connections",
		Help: "Currently open WebSocket connections, by client kind (relay|ui)",
	}, []string{"kind"})

	HubMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_hub_messages_total",
		Help: "Total number of hub messages, by direction and method",
	}, []string{"direction", "method"})

	HubSlowClientDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_hub_slow_client_disconnects_total",
		Help: "Total number of clients disconnected for not keeping up",
	})

	HubAuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_hub_auth_failures_total",
		Help: "Total number of rejected connections, by reason",
	}, []string{"reason"})

	HubRateLimitedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitwall_hub_rate_limited_frames_total",
		Help: "Total number of relay frames delayed or rejected by the rate limiter",
	})
)

// IncHubMessage records a processed hub message.
func IncHubMessage(direction, method string) {
	HubMessagesTotal.WithLabelValues(direction, method).Inc()
}

// IncAuthFailure records a rejected connection attempt.
func IncAuthFailure(reason string) {
	HubAuthFailuresTotal.WithLabelValues(reason).Inc()
}
