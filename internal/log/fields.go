// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldEventID       = "event_id"
	FieldSessionID     = "session_id"
	FieldOrgID         = "org_id"
	FieldCarNumber     = "car_number"
	FieldTransponderID = "transponder_id"
	FieldConnectionID  = "connection_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldProtocol  = "protocol"
	FieldStream    = "stream"
	FieldGroup     = "group"

	// Timing fields
	FieldFlag      = "flag"
	FieldLapNumber = "lap_number"
	FieldElapsed   = "elapsed"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Control plane fields
	FieldJobName   = "job_name"
	FieldNamespace = "namespace"
)
