package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Hub / transport fields
	FieldHubAddr = "hub_addr"
	FieldService = "service_name"
	FieldHandle  = "handle"
	FieldTxnID   = "txn_id"
	FieldCode    = "code"

	// Telemetry domain fields
	FieldBackend  = "backend"
	FieldMeter    = "meter"
	FieldConsumer = "consumer"
	FieldEntity   = "entity"
	FieldMonitor  = "monitor"

	// Path fields
	FieldPath = "path"

	// Measurement fields
	FieldDurationMS = "duration_ms"
	FieldCount      = "count"
)
