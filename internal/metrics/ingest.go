// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecodeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_decode_failures_total",
		Help: "Total number of timing frames that failed to decode, by protocol",
	}, []string{"protocol"})

	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_records_total",
		Help: "Total number of decoded timing records, by protocol and record type",
	}, []string{"protocol", "type"})

	UnknownRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pitwall_unknown_records_total",
		Help: "Total number of skipped records of unknown type, by protocol",
	}, []string{"protocol"})
)

// IncDecodeFailure records a frame that could not be decoded.
func IncDecodeFailure(protocol string) {
	DecodeFailuresTotal.WithLabelValues(protocol).Inc()
}

// IncRecord records a successfully decoded record.
func IncRecord(protocol, recordType string) {
	RecordsTotal.WithLabelValues(protocol, recordType).Inc()
}

// IncUnknownRecord records a skipped record of unknown type.
func IncUnknownRecord(protocol string) {
	UnknownRecordsTotal.WithLabelValues(protocol).Inc()
}
