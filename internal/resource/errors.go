package resource

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAgent reports a missing agent configuration or agent name.
	ErrInvalidAgent = errors.New("invalid agent configuration")
	// ErrNoWorkspace reports that no search root is available.
	ErrNoWorkspace = errors.New("no workspace folder is open")
	// ErrNoValidPatterns reports that every resource pattern was empty.
	ErrNoValidPatterns = errors.New("no valid resource patterns found")
	// ErrResourceLoadTimeout reports that a resolution exceeded its time budget.
	ErrResourceLoadTimeout = errors.New("resource loading timed out")
	// ErrClosed reports use of a closed service.
	ErrClosed = errors.New("resource service is closed")
)

// ProcessingError reports a batch that failed on every attempt.
type ProcessingError struct {
	Batch    int
	Patterns []string
	Attempts int
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("resource processing failed: batch %d (%d patterns) after %d attempts: %v",
		e.Batch, len(e.Patterns), e.Attempts, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ErrorKind categorizes errors returned by Service.Resolve.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindProcessing ErrorKind = "processing"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindCancelled  ErrorKind = "cancelled"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// Classify maps an error to its ErrorKind.
func Classify(err error) ErrorKind {
	var procErr *ProcessingError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAgent),
		errors.Is(err, ErrNoWorkspace),
		errors.Is(err, ErrNoValidPatterns):
		return ErrorKindValidation
	case errors.Is(err, ErrResourceLoadTimeout):
		return ErrorKindTimeout
	case errors.As(err, &procErr):
		return ErrorKindProcessing
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	default:
		return ErrorKindUnknown
	}
}

// Action identifies a recovery step the presentation layer can offer.
type Action string

const (
	ActionOpenFolder Action = "open-folder"
	ActionEditAgent  Action = "edit-agent"
	ActionViewConfig Action = "view-configuration"
	ActionRetry      Action = "retry"
	ActionRefresh    Action = "refresh-resources"
	ActionShowLogs   Action = "show-logs"
)

// RecoveryActions returns the recovery steps that fit err.
func RecoveryActions(err error) []Action {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoWorkspace):
		return []Action{ActionOpenFolder}
	case errors.Is(err, ErrInvalidAgent), errors.Is(err, ErrNoValidPatterns):
		return []Action{ActionEditAgent, ActionViewConfig}
	}

	switch Classify(err) {
	case ErrorKindTimeout:
		return []Action{ActionRetry, ActionRefresh}
	case ErrorKindProcessing:
		return []Action{ActionRetry, ActionViewConfig, ActionShowLogs}
	case ErrorKindCancelled:
		return nil
	default:
		return []Action{ActionShowLogs}
	}
}
