package normalize

import "fmt"

// ValidationError reports a raw field that cannot be canonicalized.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
