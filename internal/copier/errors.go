package copier

import (
	"errors"
	"fmt"
)

// Step names the part of a table copy that failed.
type Step string

const (
	StepPlan     Step = "plan"
	StepClear    Step = "clear"
	StepMetadata Step = "metadata"
	StepCount    Step = "count"
	StepFetch    Step = "fetch"
	StepInsert   Step = "insert"
)

var (
	// ErrNoColumns is returned for a table mapping without column mappings.
	ErrNoColumns = errors.New("table mapping has no column mappings")
	// ErrColumnNotFound is returned when a mapped column is missing from its table.
	ErrColumnNotFound = errors.New("column not found")
	// ErrNoInsertableColumns is returned when every mapped destination
	// column is generated by the database.
	ErrNoInsertableColumns = errors.New("every destination column is an identity or computed column")
)

// StepError wraps a table copy failure with the step and table it hit.
type StepError struct {
	Step  Step
	Table string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Step, e.Table, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepOf returns the failed step of err, or "" if err is not a *StepError.
func StepOf(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
