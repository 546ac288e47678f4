package config

import "fmt"

// ParseError reports malformed or structurally invalid configuration input.
type ParseError struct {
	// Path is the file or directory being parsed.
	Path string

	// Message describes what was wrong.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(path, message string, err error) *ParseError {
	return &ParseError{Path: path, Message: message, Err: err}
}
