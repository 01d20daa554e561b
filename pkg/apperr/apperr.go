// Package apperr holds the error kinds surfaced to users and how they read.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthRequired means there is no authenticated session.
	ErrAuthRequired = errors.New("sign-in required")
	// ErrNotFound means the referenced task or profile is not in view.
	ErrNotFound = errors.New("not found")
	// ErrPending means the task is still being saved and cannot be changed yet.
	ErrPending = errors.New("task is still being saved")
	// ErrForbidden means the session lacks the admin role.
	ErrForbidden = errors.New("admin role required")
)

// ValidationError rejects local input before any network call.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s %s", e.Field, e.Msg)
}

// GatewayError is a transport or server failure of a data operation.
type GatewayError struct {
	Op     string
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Retryable reports transport failures, throttling and 5xx responses.
func (e *GatewayError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// AIResponseError covers every failure of a decomposition request.
type AIResponseError struct {
	Msg       string
	Retryable bool
	Err       error
}

func (e *AIResponseError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *AIResponseError) Unwrap() error { return e.Err }

// Message renders err as a short user-facing line.
func Message(err error) string {
	var (
		verr *ValidationError
		gerr *GatewayError
		aerr *AIResponseError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return "Please sign in first (taskdeck login)."
	case errors.As(err, &verr):
		return "Invalid input: " + verr.Error()
	case errors.As(err, &aerr):
		if aerr.Retryable {
			return "The assistant is unavailable right now, try again: " + aerr.Msg
		}
		return "The assistant could not build a plan: " + aerr.Msg
	case errors.As(err, &gerr):
		if gerr.Retryable() {
			return "Could not reach the server, try again."
		}
		return "The server rejected the request: " + gerr.Error()
	default:
		return err.Error()
	}
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	var (
		verr *ValidationError
		gerr *GatewayError
		aerr *AIResponseError
	)
	switch {
	case errors.Is(err, ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPending):
		return http.StatusConflict
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &aerr), errors.As(err, &gerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
