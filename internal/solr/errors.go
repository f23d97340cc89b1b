package solr

import "fmt"

// ParseError is a malformed or unsupported SELECT statement. Detected before
// any backend call.
type ParseError struct {
	Query string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %q: %v", e.Query, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError is a statement that parsed but references an unknown
// collection or field, violates the doc-values requirement, or carries a
// negative LIMIT/OFFSET. Detected before any backend call.
type ValidationError struct {
	Collection string
	Field      string
	Msg        string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("collection %s, field %s: %s", e.Collection, e.Field, e.Msg)
	case e.Collection != "":
		return fmt.Sprintf("collection %s: %s", e.Collection, e.Msg)
	}
	return e.Msg
}

// VectorFieldError is a vector-search request whose target field does not
// exist, is not vector-typed, or cannot be auto-detected.
type VectorFieldError struct {
	Collection string
	Field      string
	Msg        string
}

func (e *VectorFieldError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vector field %s in collection %s: %s", e.Field, e.Collection, e.Msg)
	}
	return fmt.Sprintf("collection %s: %s", e.Collection, e.Msg)
}

// ConnectionError is a transport-level failure reaching the backend or the
// coordination service.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError is a query the backend accepted but failed to execute, or a
// non-success backend response. StatusCode is 200 when the failure was
// reported in-band (Solr's SQL endpoint embeds an EXCEPTION doc in a 200).
type ExecutionError struct {
	Collection string
	StatusCode int
	Message    string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing against %s (status %d): %s", e.Collection, e.StatusCode, e.Message)
}
