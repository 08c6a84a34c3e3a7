// Package scan coordinates the two-photo capture, upload and analysis flow of a facial scan.
package scan

import (
	"fmt"

	"github.com/kozaktomas/face-scan/internal/database"
)

// Kind identifies the active variant of a session state.
type Kind int

// Session state kinds. Exactly one is active per controller.
const (
	KindIdle Kind = iota
	KindCapturingFront
	KindCapturingSide
	KindProcessing
	KindResults
	KindError
	KindHistory
)

var kindNames = [...]string{
	KindIdle:           "idle",
	KindCapturingFront: "capturing_front",
	KindCapturingSide:  "capturing_side",
	KindProcessing:     "processing",
	KindResults:        "results",
	KindError:          "error",
	KindHistory:        "history",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name so JSON clients see "capturing_front" instead of 1.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown scan state %q", text)
}

// State is a snapshot of the session state. Result is set only for KindResults,
// Message only for KindError.
type State struct {
	Kind    Kind                 `json:"kind"`
	Result  *database.ScanResult `json:"result,omitempty"`
	Message string               `json:"message,omitempty"`
}

func idleState() State { return State{Kind: KindIdle} }

func resultsState(r database.ScanResult) State {
	return State{Kind: KindResults, Result: &r}
}

func errorState(message string) State {
	return State{Kind: KindError, Message: message}
}

// Busy reports whether a pipeline is running in this state.
func (s State) Busy() bool {
	return s.Kind == KindProcessing
}

// Capturing reports whether the state waits for a photo.
func (s State) Capturing() bool {
	return s.Kind == KindCapturingFront || s.Kind == KindCapturingSide
}

// Pose is the head orientation of a captured photo.
type Pose string

// Photo poses in capture order.
const (
	PoseFront Pose = "front"
	PoseSide  Pose = "side"
)

// pose returns the pose the given state is waiting for.
func (k Kind) pose() (Pose, bool) {
	switch k {
	case KindCapturingFront:
		return PoseFront, true
	case KindCapturingSide:
		return PoseSide, true
	default:
		return "", false
	}
}
