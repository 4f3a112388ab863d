package qerr

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies errors by their nature and appropriate handling strategy.
// The classification determines whether a failure should be fixed by the
// caller, reported as a missing registration, or treated as an estimation
// fault bubbling up from a model.
type Kind int

const (
	// KindValidation represents errors caused by invalid arguments at
	// registration time, such as an empty model name or a nil model.
	// These errors are fixable by correcting the calling code.
	KindValidation Kind = iota

	// KindNotFound represents lookups of model names that were never
	// registered. Callers typically recover by registering the model or
	// falling back to the default.
	KindNotFound

	// KindEstimation represents model-internal failures during cost
	// computation. These propagate to the caller of the estimation entry
	// points and usually indicate a bug in a model or corrupt statistics.
	KindEstimation

	// KindInternal represents failures in supporting subsystems such as
	// configuration loading or the feedback store. They wrap an underlying
	// cause and are not part of the estimation contract.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindEstimation:
		return "estimation"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a structured error carrying the context needed to diagnose a
// failure without re-running the estimation that produced it.
type Error struct {
	// Code is a unique identifier for this error type (e.g., "MODEL_NOT_FOUND").
	Code string

	// Kind classifies the error for appropriate handling strategy.
	Kind Kind

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	// Example: "model 'bayesian' is not registered" where Message might be
	// "unknown model".
	Detail string

	// Hint suggests how the caller might fix or work around this error.
	Hint string

	// Operation identifies the operation that was being performed when the
	// error occurred. Examples: "RegisterModel", "EstimateQueryCost".
	Operation string

	// Component identifies the component where the error originated.
	// Examples: "engine", "statistical", "feedback".
	Component string

	// Cause is the underlying error that triggered this one, preserved for
	// error chain traversal.
	Cause error

	// Stack contains the call stack where this error was created.
	// Automatically captured in New and Wrap.
	Stack []uintptr
}

// New creates an Error with the given kind, code, and message.
func New(kind Kind, code, message string) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Stack:   captureStack(),
	}
}

// Validation builds a KindValidation error. Detail may be empty.
func Validation(code, message, detail string) *Error {
	err := New(KindValidation, code, message)
	err.Detail = detail
	return err
}

// NotFound builds a KindNotFound error. Detail may be empty.
func NotFound(code, message, detail string) *Error {
	err := New(KindNotFound, code, message)
	err.Detail = detail
	return err
}

// Estimation builds a KindEstimation error. Detail may be empty.
func Estimation(code, message, detail string) *Error {
	err := New(KindEstimation, code, message)
	err.Detail = detail
	return err
}

// Wrap wraps an existing error with cost-core context. If the error is
// already an *Error, it enriches the existing error with operation and
// component context (only where not already set) instead of nesting.
func Wrap(err error, code, operation, component string) *Error {
	if err == nil {
		return nil
	}

	var coreErr *Error
	if errors.As(err, &coreErr) {
		if coreErr.Operation == "" {
			coreErr.Operation = operation
		}
		if coreErr.Component == "" {
			coreErr.Component = component
		}
		return coreErr
	}

	return &Error{
		Code:      code,
		Kind:      KindInternal,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind == kind
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsEstimation reports whether err is an estimation error.
func IsEstimation(err error) bool { return IsKind(err, KindEstimation) }

// captureStack captures the current call stack, skipping the frames of this
// package so the trace starts at the error origin.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard error interface.
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As
// traversal through wrapped chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// FormatStack returns a human-readable stack trace for debugging.
func (e *Error) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n",
			f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}
