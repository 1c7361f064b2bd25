package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldUserID    = "user_id"
	FieldPeriodKey = "period_key"
	FieldGenerated = "generated"
	FieldSkipped   = "skipped"
	FieldFailed    = "failed"
	FieldBackend   = "backend"
	FieldDuration  = "duration_ms"
	FieldSheetsRef = "sheets_ref"
	FieldTxID      = "transaction_id"
	FieldAmount    = "amount"
	FieldEventType = "event"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentCLI        = "cli"
	ComponentGeneration = "generation"
	ComponentExporter   = "exporter"
)

// Operations defines standard operation names
const (
	OpGenerate = "generate"
	OpBackfill = "backfill"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds the error text; a nil error adds nothing.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithPeriod adds the user and period a generation pass ran for.
func (f LogFields) WithPeriod(userID, periodKey string) LogFields {
	f[FieldUserID] = userID
	f[FieldPeriodKey] = periodKey
	return f
}

// WithCounts adds generation totals.
func (f LogFields) WithCounts(generated, skipped, failed int) LogFields {
	f[FieldGenerated] = generated
	f[FieldSkipped] = skipped
	f[FieldFailed] = failed
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
