package runloop

import (
	"fmt"
	"time"
)

// LoopError is the base error type for loop controller failures.
type LoopError struct {
	Message string
	Cause   error
}

func (e *LoopError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *LoopError) Unwrap() error {
	return e.Cause
}

// ValidationError reports bad loop parameters: missing agent or task
// identity, or a non-positive iteration budget. It fails the loop
// before any iteration and is never retried.
type ValidationError struct{ LoopError }

// FailureKind discriminates ExecutionError causes.
type FailureKind string

const (
	KindThinkingFailure FailureKind = "thinking_failure"
	KindToolFailure     FailureKind = "tool_failure"
)

// ExecutionError reports a failure inside a running loop: the reasoning
// stage produced no usable output, or a tool dispatch exhausted its
// retries.
type ExecutionError struct {
	LoopError
	Kind      FailureKind
	Retryable bool
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s (kind=%s, retryable=%v)", e.LoopError.Error(), e.Kind, e.Retryable)
}

// NotFoundError reports a lookup miss: a tool name absent from the
// agent's tool set, or an unknown transaction id.
type NotFoundError struct {
	LoopError
	Name string
}

// TimeoutError reports a single tool attempt exceeding its budget. It
// counts as one failed attempt toward the retry cap.
type TimeoutError struct {
	LoopError
	ToolName string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %s", e.ToolName, e.Elapsed)
}

// ContractError reports a tool violating its invocation contract (a
// panic inside the tool). This is a programmer error in the tool, not a
// transient fault, and is never retried.
type ContractError struct {
	LoopError
	ToolName string
}

// NotInitializedError reports use of a transaction log that was not
// constructed via NewTransactionLog.
type NotInitializedError struct{ LoopError }

func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{LoopError: LoopError{Message: fmt.Sprintf(format, args...)}}
}

func newNotFoundError(name, format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{
		LoopError: LoopError{Message: fmt.Sprintf(format, args...)},
		Name:      name,
	}
}
