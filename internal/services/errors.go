package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	// ErrAlreadyRunning reports that a video already has a queued or running
	// pipeline run and a second one was refused.
	ErrAlreadyRunning = errors.New("already running")
)

// Wrap tags a stage failure with a classification marker while keeping the
// stage, operation, and message recoverable for Details. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &stageError{marker: marker, stage: stage, operation: operation, message: message, cause: err}
}

// Tag attaches a capability sentinel such as download.ErrDownload to an
// already wrapped error, so callers can match it with errors.Is without the
// sentinel text repeating in the message.
func Tag(sentinel, err error) error {
	if sentinel == nil || err == nil {
		return err
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return &taggedError{sentinel: sentinel, err: err}
}

type stageError struct {
	marker    error
	stage     string
	operation string
	message   string
	cause     error
}

func (e *stageError) Error() string {
	detail := buildDetail(e.stage, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker.Error(), detail, e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.marker.Error(), detail)
}

func (e *stageError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

type taggedError struct {
	sentinel error
	err      error
}

func (e *taggedError) Error() string   { return e.err.Error() }
func (e *taggedError) Unwrap() []error { return []error{e.sentinel, e.err} }

// Retryable reports whether a stage error is worth another attempt.
// Validation, configuration, and not-found failures never are.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// ErrorDetails is the flattened shape of a wrapped stage error, suitable for
// persistence and for returning over IPC.
type ErrorDetails struct {
	Kind      string `json:"kind"`
	Stage     string `json:"stage,omitempty"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Cause     string `json:"cause,omitempty"`
}

// Details classifies err against the sentinel markers and returns its flat form.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	d := ErrorDetails{Kind: "error", Message: err.Error()}
	var stageErr *stageError
	if errors.As(err, &stageErr) {
		d.Stage = stageErr.stage
		d.Operation = stageErr.operation
		if stageErr.cause != nil {
			d.Cause = stageErr.cause.Error()
		}
	}
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		d.Kind = "already_running"
	case errors.Is(err, ErrNotFound):
		d.Kind = "not_found"
	case errors.Is(err, ErrValidation):
		d.Kind = "validation"
	case errors.Is(err, ErrConfiguration):
		d.Kind = "configuration"
	case errors.Is(err, ErrTimeout):
		d.Kind = "timeout"
	case errors.Is(err, ErrExternalTool):
		d.Kind = "external_tool"
	case errors.Is(err, ErrTransient):
		d.Kind = "transient"
	}
	d.Hint = hintFor(d.Kind)
	return d
}

// hintFor maps an error kind to the operator guidance shown alongside it.
func hintFor(kind string) string {
	switch kind {
	case "already_running":
		return "wait for the active run to finish or cancel it first"
	case "not_found":
		return "the referenced record no longer exists"
	case "validation":
		return "the input is invalid; retrying will not help"
	case "configuration":
		return "check the configuration file and required credentials"
	case "timeout":
		return "the operation ran out of time; it may succeed on retry"
	case "external_tool":
		return "check that the external tool is installed and on PATH"
	case "transient":
		return "a temporary failure; it is safe to retry"
	default:
		return ""
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
