package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID identifies one similarity run
	FieldRunID = "run_id"

	// FieldProductID is the catalog product identifier being processed
	FieldProductID = "product_id"

	// FieldReferenceID is the reference product of a similarity run
	FieldReferenceID = "reference_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldWorker is the worker index inside a pool
	FieldWorker = "worker"
)

// Metric fields, attached per entry for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldStage is the pipeline stage an error occurred in
	FieldStage = "stage"
)
