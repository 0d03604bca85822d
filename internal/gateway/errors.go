package gateway

import "fmt"

// NetworkError is a transient failure: timeouts, refused connections and 5xx
// responses.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s: server error %d", e.Op, e.Status)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectedError is a request the server refused (4xx other than 404) or a
// response that cannot be accepted.
type RejectedError struct {
	Op      string
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("gateway %s: rejected: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("gateway %s: rejected (%d): %s", e.Op, e.Status, e.Message)
}

// NotFoundError reports that the addressed resource does not exist.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gateway %s: %s not found", e.Op, e.Resource)
}
