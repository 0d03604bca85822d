package chat

import "fmt"

// ValidationError reports a request that was refused before reaching the
// gateway or the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
