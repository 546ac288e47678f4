package engine

import (
	"errors"
	"fmt"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/state"
)

// ErrorClass tells callers whether a failed space operation is worth
// repeating.
type ErrorClass string

const (
	// ErrorClassTransient covers timeouts, 5xx responses and state I/O.
	ErrorClassTransient ErrorClass = "transient"
	// ErrorClassThrottled is a 429 from the workspace.
	ErrorClassThrottled ErrorClass = "throttled"
	// ErrorClassConflict is a 409: the space changed underneath us.
	ErrorClassConflict ErrorClass = "conflict"
	// ErrorClassPermanent needs a config, state or permission fix first.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError is a classified failure, usually about one space.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
	Code    string     `json:"code,omitempty"`

	// Resource is the logical id of the space, when there is one.
	Resource  string `json:"resource,omitempty"`
	Operation string `json:"operation,omitempty"`

	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var msg string
	switch {
	case e.Resource != "" && e.Operation != "":
		msg = fmt.Sprintf("[%s] %s (resource=%s, operation=%s)",
			e.Class, e.Message, e.Resource, e.Operation)
	case e.Resource != "":
		msg = fmt.Sprintf("[%s] %s (resource=%s)", e.Class, e.Message, e.Resource)
	default:
		msg = fmt.Sprintf("[%s] %s", e.Class, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{Class: class, Message: message, Err: err}
}

// NewTransientError wraps err as worth retrying as is.
func NewTransientError(message string, err error) *EngineError {
	return newError(ErrorClassTransient, message, err)
}

// NewThrottledError wraps err as worth retrying after a backoff.
func NewThrottledError(message string, err error) *EngineError {
	return newError(ErrorClassThrottled, message, err)
}

// NewConflictError wraps err as a concurrent change to the same space.
func NewConflictError(message string, err error) *EngineError {
	return newError(ErrorClassConflict, message, err)
}

// NewPermanentError wraps err as not worth retrying.
func NewPermanentError(message string, err error) *EngineError {
	return newError(ErrorClassPermanent, message, err)
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail attaches a key/value, such as the policy violations.
func (e *EngineError) WithDetail(key string, value any) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// IsRetryable reports whether err is classified transient, throttled or
// conflict.
func IsRetryable(err error) bool {
	switch ErrorClassOf(err) {
	case ErrorClassTransient, ErrorClassThrottled, ErrorClassConflict:
		return true
	default:
		return false
	}
}

// Error codes, stable for scripts reading --json output and history.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeRemoteFailed     = "REMOTE_FAILED"
	ErrCodeInvariant        = "INVARIANT_VIOLATION"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeStateCorrupt     = "STATE_CORRUPT"
)

// Classified is implemented by errors that know their own class and code,
// such as remote API errors.
type Classified interface {
	ErrorClass() ErrorClass
	ErrorCode() string
}

// NewRemoteOperationError wraps a failed remote call made on behalf of a
// space. The class and code come from the underlying error when it is
// Classified, and default to transient REMOTE_FAILED otherwise.
func NewRemoteOperationError(operation, logicalID string, err error) *EngineError {
	class, code := ErrorClassTransient, ErrCodeRemoteFailed
	var c Classified
	if errors.As(err, &c) {
		class, code = c.ErrorClass(), c.ErrorCode()
	}
	return (&EngineError{
		Class:   class,
		Message: fmt.Sprintf("remote %s failed", operation),
		Err:     err,
	}).WithResource(logicalID).WithOperation(operation).WithCode(code)
}

// NewStateError wraps a failure to read or write the state file. A
// corrupt file is permanent; other I/O failures are transient.
func NewStateError(message string, err error) *EngineError {
	if errors.Is(err, state.ErrCorruptState) {
		return NewPermanentError(message, err).WithCode(ErrCodeStateCorrupt)
	}
	return NewTransientError(message, err).WithCode(ErrCodeInternal)
}

// NewInvariantError reports a violated engine invariant for a space.
func NewInvariantError(logicalID, message string) *EngineError {
	return NewPermanentError(message, nil).
		WithResource(logicalID).
		WithCode(ErrCodeInvariant)
}

// ErrorCodeOf returns the code of an EngineError in err's chain, or "".
func ErrorCodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ErrorClassOf returns the class of an EngineError in err's chain, or
// permanent for unclassified errors.
func ErrorClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassPermanent
}
