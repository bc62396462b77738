// Package errors defines the typed failure classes of the workflow engine.
package errors

import (
	"errors"
	"fmt"
)

// ConfigError marks a worker definition that cannot be turned into an
// executable graph. It is reported to the caller before any task runs.
type ConfigError struct {
	Err     error
	Message string
}

func (e *ConfigError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("config error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError with a formatted message.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// PrepError marks a failure while resolving a task's inputs: integration
// lookup, credential fetch, asset fetch or variable rendering.
type PrepError struct {
	Err     error
	Message string
}

func (e *PrepError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("prep error: %v", e.Err)
}

func (e *PrepError) Unwrap() error { return e.Err }

// NewPrepError builds a PrepError with a formatted message.
func NewPrepError(format string, args ...any) *PrepError {
	return &PrepError{Message: fmt.Sprintf(format, args...)}
}

// WrapPrep attaches a PrepError classification to err.
func WrapPrep(err error, format string, args ...any) *PrepError {
	return &PrepError{Err: err, Message: fmt.Sprintf(format, args...) + ": " + err.Error()}
}

// TaskError marks a task execution failure. It fails the run and surfaces as
// the reason on the task_fail log event.
type TaskError struct {
	Err     error
	Message string
}

func (e *TaskError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("task error: %v", e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// NewTaskError builds a TaskError with a formatted message.
func NewTaskError(format string, args ...any) *TaskError {
	return &TaskError{Message: fmt.Sprintf(format, args...)}
}

// WrapTask attaches a TaskError classification to err.
func WrapTask(err error, format string, args ...any) *TaskError {
	return &TaskError{Err: err, Message: fmt.Sprintf(format, args...) + ": " + err.Error()}
}

// AuthError marks a missing or invalid credential on an inbound request,
// including expired or forged wait tokens.
type AuthError struct {
	Err     error
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("auth error: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError builds an AuthError with a formatted message.
func NewAuthError(format string, args ...any) *AuthError {
	return &AuthError{Message: fmt.Sprintf(format, args...)}
}

// HubError marks a live-update hub delivery problem. Hub failures never fail
// a run; callers log them and continue.
type HubError struct {
	Err     error
	Message string
}

func (e *HubError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("hub error: %v", e.Err)
}

func (e *HubError) Unwrap() error { return e.Err }

// NewHubError builds a HubError with a formatted message.
func NewHubError(format string, args ...any) *HubError {
	return &HubError{Message: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err carries a ConfigError anywhere in its chain.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsPrep reports whether err carries a PrepError anywhere in its chain.
func IsPrep(err error) bool {
	var target *PrepError
	return errors.As(err, &target)
}

// IsTask reports whether err carries a TaskError anywhere in its chain.
func IsTask(err error) bool {
	var target *TaskError
	return errors.As(err, &target)
}

// IsAuth reports whether err carries an AuthError anywhere in its chain.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsHub reports whether err carries a HubError anywhere in its chain.
func IsHub(err error) bool {
	var target *HubError
	return errors.As(err, &target)
}
