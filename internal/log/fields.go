package log

import "time"

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldSourceID      = "source_id"
	FieldSourceName    = "source_name"
	FieldSpreadsheetID = "spreadsheet_id"
	FieldRange         = "range"
	FieldRows          = "rows"
	FieldRecords       = "records"
	FieldAttempt       = "attempt"
	FieldView          = "view"
	FieldCondition     = "condition"
	FieldFailures      = "failures"
	FieldCacheHit      = "cache_hit"
	FieldAction        = "action"
	FieldModel         = "model"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentDashboard   = "dashboard"
	ComponentConnections = "connections"
	ComponentInsight     = "insight"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentSheets      = "sheets"
	ComponentCache       = "cache"
	ComponentLLM         = "llm"
	ComponentBackend     = "backend"
)

// Operations defines standard operation names
const (
	OpFetch    = "fetch"
	OpBuild    = "build"
	OpAdd      = "add"
	OpRemove   = "remove"
	OpList     = "list"
	OpAnalyze  = "analyze"
	OpSnapshot = "snapshot"
	OpPublish  = "publish"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithSource adds the identifying fields of a connected sheet.
func (f LogFields) WithSource(id, name, spreadsheetID string) LogFields {
	f[FieldSourceID] = id
	if name != "" {
		f[FieldSourceName] = name
	}
	if spreadsheetID != "" {
		f[FieldSpreadsheetID] = spreadsheetID
	}
	return f
}

func (f LogFields) WithDuration(d time.Duration) LogFields {
	f[FieldDuration] = d.Milliseconds()
	return f
}

func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to key/value pairs for slog.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
