package adapter

import (
	"errors"
	"fmt"
	"time"
)

// Standard adapter errors
var (
	// ErrOperationNotSupported is returned when the client does not expose an operation
	ErrOperationNotSupported = errors.New("operation not supported by this store")

	// ErrConnectionClosed is returned when attempting to use a closed connection
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrNotConnected is returned when a wrapper has no usable physical connection
	ErrNotConnected = errors.New("no usable connection")

	// ErrConnectionFailed is returned when a connection attempt fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrInvalidConfiguration is returned when the configuration is invalid
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDialerNotFound is returned when no dialer is registered for a store
	ErrDialerNotFound = errors.New("dialer not found")

	// ErrExecutionFailed is returned when the store fails while running an operation
	ErrExecutionFailed = errors.New("execution failed")

	// ErrSelectFailed is returned when a key-value database cannot be selected
	ErrSelectFailed = errors.New("select failed")

	// ErrMissingParameter is returned when a named placeholder has no value
	ErrMissingParameter = errors.New("missing query parameter")
)

// UnsupportedOperationError is returned when an operation is not supported.
type UnsupportedOperationError struct {
	Store     string
	Operation string
	Reason    string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s does not support %s: %s", e.Store, e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s does not support %s", e.Store, e.Operation)
}

// Is checks if the error is ErrOperationNotSupported.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrOperationNotSupported
}

// NewUnsupportedOperationError creates a new UnsupportedOperationError.
func NewUnsupportedOperationError(store, operation, reason string) *UnsupportedOperationError {
	return &UnsupportedOperationError{
		Store:     store,
		Operation: operation,
		Reason:    reason,
	}
}

// ConnectionError is returned when a connection error occurs.
type ConnectionError struct {
	Store   string
	Host    string
	Port    int
	Elapsed time.Duration
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s at %s:%d after %s: %v", e.Store, e.Host, e.Port, e.Elapsed, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrConnectionFailed.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(store, host string, port int, elapsed time.Duration, cause error) *ConnectionError {
	return &ConnectionError{
		Store:   store,
		Host:    host,
		Port:    port,
		Elapsed: elapsed,
		Cause:   cause,
	}
}

// ConfigurationError is returned when a configuration error occurs.
type ConfigurationError struct {
	Name   string
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for %s: field '%s': %s", e.Name, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s: %s", e.Name, e.Reason)
}

// Is checks if the error is ErrInvalidConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(name, field, reason string) *ConfigurationError {
	return &ConfigurationError{
		Name:   name,
		Field:  field,
		Reason: reason,
	}
}

// ExecutionError wraps a failure raised by the store while running an operation.
type ExecutionError struct {
	Store     string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Store, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrExecutionFailed.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

// WrapError wraps an error with store context.
// Errors that already carry a classification are returned as-is.
func WrapError(store, operation string, err error) error {
	if err == nil {
		return nil
	}
	if Classify(err) != KindExecution {
		return err
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return &ExecutionError{Store: store, Operation: operation, Cause: err}
}

// Error kinds reported by Classify.
const (
	KindConfiguration = "configuration"
	KindConnection    = "connection"
	KindDispatch      = "dispatch"
	KindClosed        = "closed"
	KindSelect        = "select"
	KindExecution     = "execution"
)

// Classify maps an error onto the broker's error taxonomy.
func Classify(err error) string {
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrDialerNotFound):
		return KindConnection
	case errors.Is(err, ErrOperationNotSupported), errors.Is(err, ErrNotConnected):
		return KindDispatch
	case errors.Is(err, ErrConnectionClosed):
		return KindClosed
	case errors.Is(err, ErrSelectFailed):
		return KindSelect
	default:
		return KindExecution
	}
}

// IsUnsupported checks if an error indicates an unsupported operation.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrOperationNotSupported)
}

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
