package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the event a log line records, for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldItemKey is the relative image path currently being processed.
	FieldItemKey = "item_key"
	// FieldEpoch is the 1-based scheduler epoch counter.
	FieldEpoch = "epoch"
	// FieldSessionID identifies one daemon process run.
	FieldSessionID = "session_id"
)
