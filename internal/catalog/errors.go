package catalog

import "fmt"

// SchemaError reports a missing table, a missing column, or a staging/base
// shape mismatch discovered during inspection. Raised before any DML runs.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return "schema: " + e.Detail }

func schemaErrorf(format string, args ...any) *SchemaError {
	return &SchemaError{Detail: fmt.Sprintf(format, args...)}
}
