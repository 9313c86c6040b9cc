package models

import (
	"errors"
	"fmt"
	"strings"
)

// ExecutionType distinguishes which engine produced an execution result.
type ExecutionType string

const (
	ExecutionTypeCoding   ExecutionType = "coding"
	ExecutionTypeDatabase ExecutionType = "database"
)

// ExecutionStatus is the closed outcome taxonomy for a grading run.
type ExecutionStatus string

const (
	ExecutionStatusSuccess       ExecutionStatus = "success"
	ExecutionStatusFailedTests   ExecutionStatus = "failed_tests"
	ExecutionStatusSyntaxError   ExecutionStatus = "syntax_error"
	ExecutionStatusRuntimeError  ExecutionStatus = "runtime_error"
	ExecutionStatusTimeout       ExecutionStatus = "timeout"
	ExecutionStatusInternalError ExecutionStatus = "internal_error"
)

// Valid reports whether the status is one of the closed set.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusSuccess, ExecutionStatusFailedTests, ExecutionStatusSyntaxError,
		ExecutionStatusRuntimeError, ExecutionStatusTimeout, ExecutionStatusInternalError:
		return true
	}
	return false
}

// ExecutionResult is the graded outcome of one coding or SQL answer.
// Invariants: Success is true exactly when Status is success, Error is
// populated exactly when Success is false, and PassedTests never exceeds
// TotalTests. Construct through NewExecutionResult.
type ExecutionResult struct {
	QuestionID      string          `json:"question_id"`
	ExecutionType   ExecutionType   `json:"execution_type"`
	Status          ExecutionStatus `json:"status"`
	Success         bool            `json:"success"`
	Output          string          `json:"output"`
	Error           string          `json:"error,omitempty"`
	PassedTests     int             `json:"passed_tests"`
	TotalTests      int             `json:"total_tests"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// ErrInvalidExecutionResult indicates the result violates its invariants.
var ErrInvalidExecutionResult = errors.New("invalid execution result")

// NewExecutionResult builds a validated execution result. Success is derived
// from the status so the two can never disagree.
func NewExecutionResult(questionID string, execType ExecutionType, status ExecutionStatus, output, errMessage string, passed, total int, elapsedMs int64) (ExecutionResult, error) {
	result := ExecutionResult{
		QuestionID:      questionID,
		ExecutionType:   execType,
		Status:          status,
		Success:         status == ExecutionStatusSuccess,
		Output:          output,
		Error:           strings.TrimSpace(errMessage),
		PassedTests:     passed,
		TotalTests:      total,
		ExecutionTimeMs: elapsedMs,
	}

	if strings.TrimSpace(questionID) == "" {
		return ExecutionResult{}, fmt.Errorf("%w: question id is required", ErrInvalidExecutionResult)
	}
	if execType != ExecutionTypeCoding && execType != ExecutionTypeDatabase {
		return ExecutionResult{}, fmt.Errorf("%w: unknown execution type %q", ErrInvalidExecutionResult, execType)
	}
	if !status.Valid() {
		return ExecutionResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidExecutionResult, status)
	}
	if result.Success && result.Error != "" {
		return ExecutionResult{}, fmt.Errorf("%w: error must be empty on success", ErrInvalidExecutionResult)
	}
	if !result.Success && result.Error == "" {
		return ExecutionResult{}, fmt.Errorf("%w: error is required on failure", ErrInvalidExecutionResult)
	}
	if passed < 0 || total < 0 || passed > total {
		return ExecutionResult{}, fmt.Errorf("%w: passed tests cannot exceed total tests", ErrInvalidExecutionResult)
	}
	if elapsedMs < 0 {
		return ExecutionResult{}, fmt.Errorf("%w: execution time cannot be negative", ErrInvalidExecutionResult)
	}

	return result, nil
}

// Score converts the result into a 0-100 question score.
func (r ExecutionResult) Score() float64 {
	switch r.Status {
	case ExecutionStatusSuccess:
		return 100
	case ExecutionStatusFailedTests:
		if r.TotalTests == 0 {
			return 0
		}
		return float64(r.PassedTests) / float64(r.TotalTests) * 100
	default:
		return 0
	}
}
