package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, propagated through the context.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldChannelID = "channel_id"
	FieldVideoID   = "video_id"
	FieldComponent = "component"
	FieldSource    = "source"
)

// Metric fields, attached per Entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldProgress   = "progress"
)
