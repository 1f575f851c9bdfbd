package pgmcp

import "fmt"

// ValidationError reports a malformed request: an unknown tool, a missing
// argument, or a query over the length limit. It is raised before any
// connection is acquired.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// SafetyRejection reports a query refused by the gate. Rule names the
// catalog rule that matched.
type SafetyRejection struct {
	Reason string
	Rule   string
}

func (e *SafetyRejection) Error() string {
	return "Query blocked for safety: " + e.Reason
}

// ExecutionFailure reports an error raised while beginning the
// transaction, applying the statement timeout, or running the query.
// Message carries the database error text plus any matching error
// prompt guidance.
type ExecutionFailure struct {
	Message string
	Err     error
}

func (e *ExecutionFailure) Error() string {
	return "Error executing query: " + e.Message
}

func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}
