// Package errors provides structured error types for the development server
// with categories that map onto HTTP statuses and startup failure handling.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Category represents different classes of server errors.
type Category string

const (
	CategoryResolve   Category = "resolve"
	CategoryIO        Category = "io"
	CategoryTransform Category = "transform"
	CategoryConfig    Category = "config"
	CategoryInternal  Category = "internal"
)

// DevError is a structured error with category and source location context.
type DevError struct {
	Category Category
	Code     string
	Message  string
	Cause    error
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *DevError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *DevError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by category and code.
func (e *DevError) Is(target error) bool {
	var t *DevError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}

	return false
}

// WithLocation adds source location information.
func (e *DevError) WithLocation(filePath string, line, column int) *DevError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// NewResolveError creates an error for a request path no file satisfies.
func NewResolveError(code, message string) *DevError {
	return &DevError{
		Category: CategoryResolve,
		Code:     code,
		Message:  message,
	}
}

// NewIOError creates an error for a file that resolved but could not be read.
func NewIOError(code, message string, cause error) *DevError {
	return &DevError{
		Category: CategoryIO,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewTransformError creates an error for a compiler rejection.
func NewTransformError(code, message string, cause error) *DevError {
	return &DevError{
		Category: CategoryTransform,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewConfigError creates a fatal startup configuration error.
func NewConfigError(code, message string, cause error) *DevError {
	return &DevError{
		Category: CategoryConfig,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewInternalError creates an error for unexpected internal failures.
func NewInternalError(code, message string, cause error) *DevError {
	return &DevError{
		Category: CategoryInternal,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	var devErr *DevError
	if errors.As(err, &devErr) {
		return devErr.Category == category
	}

	return false
}
