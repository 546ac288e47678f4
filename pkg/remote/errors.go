package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/engine"
	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// ErrNoSpaceID is returned when a create response carries no space id.
var ErrNoSpaceID = errors.New("no space ID in response")

// APIError is a non-2xx response from the spaces API. Message is masked
// for secrets.
type APIError struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
	Code    string `json:"error_code,omitempty"`
	Message string `json:"message"`
}

func newAPIError(method, path string, status int, code, message string) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{
		Method:  method,
		Path:    path,
		Status:  status,
		Code:    code,
		Message: telemetry.MaskSecrets(message),
	}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// ErrorClass classifies the response status for the engine.
func (e *APIError) ErrorClass() engine.ErrorClass {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return engine.ErrorClassThrottled
	case e.Status == http.StatusConflict:
		return engine.ErrorClassConflict
	case e.Status == http.StatusRequestTimeout || e.Status >= 500:
		return engine.ErrorClassTransient
	default:
		return engine.ErrorClassPermanent
	}
}

// ErrorCode maps the response status to an engine error code.
func (e *APIError) ErrorCode() string {
	switch e.Status {
	case http.StatusBadRequest:
		return engine.ErrCodeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return engine.ErrCodePermissionDenied
	case http.StatusNotFound:
		return engine.ErrCodeNotFound
	case http.StatusConflict:
		return engine.ErrCodeConflict
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return engine.ErrCodeTimeout
	case http.StatusTooManyRequests:
		return engine.ErrCodeRateLimited
	default:
		return engine.ErrCodeRemoteFailed
	}
}

// attemptError classifies one failed attempt for the retry loop. Only
// GET, PATCH and DELETE are retried on 5xx or 409, since a POST that got
// that far may already have created the space. Transport errors and 429
// are retried for every method.
func attemptError(method string, err error) *engine.EngineError {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return engine.NewTransientError("request failed", err)
	}
	class := apiErr.ErrorClass()
	switch {
	case class == engine.ErrorClassThrottled:
		return engine.NewThrottledError("rate limited", err).WithCode(apiErr.ErrorCode())
	case class == engine.ErrorClassPermanent, !idempotent(method):
		return engine.NewPermanentError("request rejected", err).WithCode(apiErr.ErrorCode())
	case class == engine.ErrorClassConflict:
		return engine.NewConflictError("conflicting update", err).WithCode(apiErr.ErrorCode())
	default:
		return engine.NewTransientError("server error", err).WithCode(apiErr.ErrorCode())
	}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
