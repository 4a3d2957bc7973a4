package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrProductNotFound    = fmt.Errorf("product: %w", ErrNotFound)
	ErrTaskNotFound       = fmt.Errorf("task: %w", ErrNotFound)
	ErrResultNotFound     = fmt.Errorf("result table: %w", ErrNotFound)
	ErrEmptyRange         = fmt.Errorf("empty date range: %w", ErrInvalidInput)
	ErrUnknownMetric      = fmt.Errorf("metric: %w", ErrInvalidInput)
	ErrUnknownPolicy      = fmt.Errorf("option: %w", ErrInvalidInput)
	ErrRemoteService      = fmt.Errorf("remote service: %w", ErrUnavailable)
	ErrNotReady           = fmt.Errorf("service not ready: %w", ErrUnavailable)
	ErrStorageUnavailable = fmt.Errorf("storage: %w", ErrUnavailable)
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// EmptyRangeError reports a requested year range that does not overlap the
// years a series actually covers.
type EmptyRangeError struct {
	Series    string   // Image series identifier
	Available YearSpan // Years covered by the series
	Requested YearSpan // Years asked for by the caller
}

// Error implements the error interface.
func (e *EmptyRangeError) Error() string {
	if e.Series == "" {
		return fmt.Sprintf("empty date range: requested %s", e.Requested)
	}
	return fmt.Sprintf("empty date range for %s: requested %s, available %s",
		e.Series, e.Requested, e.Available)
}

// Unwrap returns the underlying error type.
func (e *EmptyRangeError) Unwrap() error {
	return ErrEmptyRange
}

// UnknownMetricError reports a metric outside a product's fixed set.
type UnknownMetricError struct {
	Product string
	Metric  string
	Allowed []string
}

// Error implements the error interface.
func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric %q for product %s (allowed: %s)",
		e.Metric, e.Product, strings.Join(e.Allowed, ", "))
}

// Unwrap returns the underlying error type.
func (e *UnknownMetricError) Unwrap() error {
	return ErrUnknownMetric
}

// UnknownPolicyError reports an enumerated option (quality policy, time
// step, scenario, model, sensor or year) outside a product's fixed set.
type UnknownPolicyError struct {
	Product string
	Kind    string // e.g. "quality policy", "time step"
	Value   string
	Allowed []string
}

// Error implements the error interface.
func (e *UnknownPolicyError) Error() string {
	return fmt.Sprintf("unknown %s %q for product %s (allowed: %s)",
		e.Kind, e.Value, e.Product, strings.Join(e.Allowed, ", "))
}

// Unwrap returns the underlying error type.
func (e *UnknownPolicyError) Unwrap() error {
	return ErrUnknownPolicy
}

// RemoteServiceError represents a failure reported by the remote platform
// or by the transport used to reach it.
type RemoteServiceError struct {
	Operation  string // compute, export
	StatusCode int    // HTTP status, 0 when the request never completed
	Message    string // Message returned by the platform
	Err        error  // Transport error, if any
}

// Error implements the error interface.
func (e *RemoteServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("remote %s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("remote %s failed with status %d", e.Operation, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("remote %s failed: %v", e.Operation, e.Err)
	default:
		return fmt.Sprintf("remote %s failed: %s", e.Operation, e.Message)
	}
}

// Unwrap returns the sentinel and the transport error.
func (e *RemoteServiceError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRemoteService, e.Err}
	}
	return []error{ErrRemoteService}
}

// ExtractionError attaches the request context to a failed combination.
type ExtractionError struct {
	Product  string
	Metric   string
	Scenario string
	Model    string
	Sensor   string
	Years    *YearSpan
	Err      error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "extracting %s", e.Product)
	if e.Metric != "" {
		fmt.Fprintf(&b, " metric %s", e.Metric)
	}
	if e.Sensor != "" {
		fmt.Fprintf(&b, " sensor %s", e.Sensor)
	}
	if e.Scenario != "" {
		fmt.Fprintf(&b, " scenario %s", e.Scenario)
	}
	if e.Model != "" {
		fmt.Fprintf(&b, " model %s", e.Model)
	}
	if e.Years != nil {
		fmt.Fprintf(&b, " years %s", e.Years)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (put, list, read)
	Key       string // Object key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
