// Package popgenerrors contains the errors returned by the request lifecycle manager. Transports look for the
// types defined here and translate them into status codes; see HTTPStatusFromError.
//
// Every type is matched with errors.As, so callers are free to wrap them with pkg/errors.
package popgenerrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrNotFound is returned whenever a request or artifact is unknown. Type and Message are optional.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "request" or "artifact"
	Value   string // Resource name, e.g., the request id
	Message string // An optional message to include in the error message
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidIdentifier is returned when an identifier does not have the expected shape. It is kept distinct from
// ErrNotFound so callers can tell a syntax error from a missing resource.
type ErrInvalidIdentifier struct {
	Name  string // What kind of identifier, e.g. "request id" or "output kind"
	Value string
}

func (err *ErrInvalidIdentifier) Error() string {
	return fmt.Sprintf("%q is not a valid %s", err.Value, err.Name)
}

// ErrAlreadyInState is returned by redundant transitions, and by any transition attempted on a request that has
// already finished or been stopped.
type ErrAlreadyInState struct {
	RequestId string
	State     string
}

func (err *ErrAlreadyInState) Error() string {
	return fmt.Sprintf("request %s is already %s", err.RequestId, err.State)
}

// ErrNotStarted is returned when pausing, resuming or stopping a request that was never started.
type ErrNotStarted struct {
	RequestId string
}

func (err *ErrNotStarted) Error() string {
	return fmt.Sprintf("request %s has not started yet", err.RequestId)
}

// ErrPending is returned when an artifact is asked for before its request has finished.
type ErrPending struct {
	RequestId string
}

func (err *ErrPending) Error() string {
	return fmt.Sprintf("results for request %s are not ready yet", err.RequestId)
}

// ErrInvalidArgument is returned when a request configuration is rejected.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "population"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrArtifactIO wraps a filesystem failure while writing or packaging output.
type ErrArtifactIO struct {
	Path string
	Err  error
}

func (err *ErrArtifactIO) Error() string {
	return fmt.Sprintf("artifact io error on %s: %v", err.Path, err.Err)
}

func (err *ErrArtifactIO) Cause() error { return err.Err }

func (err *ErrArtifactIO) Unwrap() error { return err.Err }

// ErrInterrupted is returned by a producer whose generation call was aborted. It is expected during a stop and
// triggers cleanup rather than an error report.
var ErrInterrupted = errors.New("interrupted during collection")

// IsInterrupted reports whether err stems from cancellation of a collection.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// HTTPStatusFromError maps error types to HTTP status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrInvalidIdentifier
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrAlreadyInState
		if errors.As(err, &e) {
			return http.StatusConflict
		}
	}
	{
		var e *ErrNotStarted
		if errors.As(err, &e) {
			return http.StatusConflict
		}
	}
	{
		var e *ErrPending
		if errors.As(err, &e) {
			return http.StatusAccepted
		}
	}
	return http.StatusInternalServerError
}
