package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldSearchID is the search job ID
	FieldSearchID = "search_id"

	// FieldUserID is the identity of the acting user
	FieldUserID = "user_id"

	// FieldProvider is the upstream search provider name
	FieldProvider = "provider"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields attached at the call site for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldCost is the monetary cost of an operation
	FieldCost = "cost"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
