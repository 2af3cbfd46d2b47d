package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of the current recording session.
type State string

const (
	StateIdle         State = "idle"
	StateRequesting   State = "requesting"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateReviewing    State = "reviewing"
	StateFailed       State = "failed"
)

// Reason explains a state change to subscribers.
type Reason string

const (
	ReasonCaptureRequested    Reason = "capture_requested"
	ReasonRecordingStarted    Reason = "recording_started"
	ReasonPermissionDenied    Reason = "permission_denied"
	ReasonDeviceUnavailable   Reason = "device_unavailable"
	ReasonStopped             Reason = "stopped"
	ReasonAutoStopped         Reason = "auto_stopped"
	ReasonCaptureFailed       Reason = "capture_failed"
	ReasonTranscriptReady     Reason = "transcript_ready"
	ReasonTranscriptionFailed Reason = "transcription_failed"
	ReasonRetrying            Reason = "retrying"
	ReasonDismissed           Reason = "dismissed"
	ReasonTornDown            Reason = "torn_down"
)

type event int

const (
	evStart event = iota
	evGranted
	evDenied
	evTick
	evLimit
	evStop
	evFinalizeFailed
	evTranscribed
	evTranscribeFailed
	evRetry
	evDismiss
	evTeardown
)

var eventNames = [...]string{
	evStart:            "start",
	evGranted:          "granted",
	evDenied:           "denied",
	evTick:             "tick",
	evLimit:            "limit",
	evStop:             "stop",
	evFinalizeFailed:   "finalize_failed",
	evTranscribed:      "transcribed",
	evTranscribeFailed: "transcribe_failed",
	evRetry:            "retry",
	evDismiss:          "dismiss",
	evTeardown:         "teardown",
}

func (e event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var ErrInvalidTransition = errors.New("invalid session transition")

var transitions = map[State]map[event]State{
	StateIdle: {
		evStart: StateRequesting,
	},
	StateRequesting: {
		evGranted: StateRecording,
		evDenied:  StateFailed,
	},
	StateRecording: {
		evTick:           StateRecording,
		evLimit:          StateTranscribing,
		evStop:           StateTranscribing,
		evFinalizeFailed: StateFailed,
	},
	StateTranscribing: {
		evTranscribed:      StateReviewing,
		evTranscribeFailed: StateFailed,
	},
	StateReviewing: {
		evDismiss: StateIdle,
	},
	StateFailed: {
		evRetry:   StateTranscribing,
		evDismiss: StateIdle,
	},
}

// next is the complete transition table. Teardown is accepted from every
// state.
func next(from State, ev event) (State, error) {
	if ev == evTeardown {
		return StateIdle, nil
	}
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, ev)
}
