package scan

import (
	"errors"
	"strings"

	"github.com/kozaktomas/face-scan/internal/constants"
)

// Failure categories of the scan flow. Pipeline errors wrap one of these.
var (
	ErrCapture  = errors.New("capture failure")
	ErrUpload   = errors.New("upload failure")
	ErrAnalysis = errors.New("analysis failure")
	ErrPersist  = errors.New("persist failure")
)

var (
	// ErrPipelineInFlight is returned when a transition would start a second pipeline.
	ErrPipelineInFlight = errors.New("scan pipeline already in progress")
	// ErrInvalidTransition is returned when a trigger does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid scan state transition")
	// ErrClosed is returned by every transition after Close.
	ErrClosed = errors.New("scan controller closed")
	// ErrNotFound is returned when selecting a result that is not in the history.
	ErrNotFound = errors.New("scan result not found")
)

var (
	errNoImage       = errors.New("No image captured")
	errUploadFailed  = errors.New(constants.UploadFailedMessage)
	errEmptyAnalysis = errors.New("No facial landmarks detected")
)

// Stage names a step of the scan flow.
type Stage string

// Stages in execution order.
const (
	StageCapture Stage = "capture"
	StageUpload  Stage = "upload"
	StageAnalyze Stage = "analyze"
	StagePersist Stage = "persist"
)

func (s Stage) sentinel() error {
	switch s {
	case StageCapture:
		return ErrCapture
	case StageUpload:
		return ErrUpload
	case StageAnalyze:
		return ErrAnalysis
	case StagePersist:
		return ErrPersist
	}
	return nil
}

// StageError reports which step failed. Err carries the user facing message.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Unwrap exposes the stage sentinel and the message error to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Stage.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// UserMessage converts an error into the text shown in the Error state.
func UserMessage(err error) string {
	if err == nil {
		return constants.DefaultErrorMessage
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return constants.DefaultErrorMessage
	}
	return msg
}
