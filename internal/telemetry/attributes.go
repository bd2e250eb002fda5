// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the timing services.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the services.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Timing attributes
	TimingEventIDKey   = "timing.event_id"
	TimingSessionIDKey = "timing.session_id"
	TimingCarNumberKey = "timing.car_number"
	TimingProtocolKey  = "timing.protocol"
	TimingFlagKey      = "timing.flag"

	// Batch attributes
	BatchRecordsKey = "batch.records"
	BatchPatchesKey = "batch.patches"

	// Job attributes
	JobNameKey     = "job.name"
	JobKindKey     = "job.kind"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// TimingAttributes creates event-scoped span attributes.
func TimingAttributes(eventID, sessionID, protocol string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if eventID != "" {
		attrs = append(attrs, attribute.String(TimingEventIDKey, eventID))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(TimingSessionIDKey, sessionID))
	}
	if protocol != "" {
		attrs = append(attrs, attribute.String(TimingProtocolKey, protocol))
	}
	return attrs
}

// BatchAttributes creates ingest batch span attributes.
func BatchAttributes(records, patches int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(BatchRecordsKey, records),
		attribute.Int(BatchPatchesKey, patches),
	}
}

// JobAttributes creates worker job span attributes.
func JobAttributes(name, kind, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobNameKey, name),
		attribute.String(JobKindKey, kind),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
