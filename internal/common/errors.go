package common

import "errors"

// Error codes used across the billing engine. They map directly onto the
// error taxonomy: configuration problems are never retried, invariant
// violations indicate programmer error, gateway errors are retryable by the
// caller's own policy.
const (
	CodeConfig    = "CONFIG"
	CodeInvariant = "INVARIANT"
	CodeGateway   = "GATEWAY"
	CodeNotFound  = "NOT_FOUND"
	CodeInternal  = "INTERNAL"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ConfigError reports a configuration problem that is fatal to the calling
// operation, such as a currency code without a known symbol.
func ConfigError(message string, err error) *AppError {
	return NewAppError(CodeConfig, message, 422, err)
}

// InvariantError reports a violated precondition that should be unreachable
// in normal operation.
func InvariantError(message string) *AppError {
	return NewAppError(CodeInvariant, message, 500, nil)
}

// GatewayError wraps a failure talking to the payment gateway.
func GatewayError(message string, err error) *AppError {
	return NewAppError(CodeGateway, message, 502, err)
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	var target *AppError
	if !errors.As(err, &target) {
		return false
	}
	return target.Code == code
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
