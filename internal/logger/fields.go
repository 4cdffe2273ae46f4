package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through context.
const (
	FieldRequestID  = "request_id"
	FieldJobID      = "job_id"
	FieldModelID    = "model_id"
	FieldDocumentID = "document_id"
	FieldComponent  = "component"
)

// Metric fields, attached per entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldTopics     = "topics"
	FieldSize       = "size"
)
