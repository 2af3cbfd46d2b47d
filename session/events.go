package session

import (
	"time"

	"jot/capture"
	"jot/transcriber"
)

// EventSink receives controller events in order, outside the controller
// lock. Implementations must not call back into the controller
// synchronously.
type EventSink interface {
	StateChanged(state State, reason Reason)
	Progress(p Progress)
	Notice(n Notice)
	TranscriptReady(r Review)
}

// Progress is emitted once per tick while recording.
type Progress struct {
	Elapsed int
	Limit   int
}

// Fraction is elapsed/limit.
func (p Progress) Fraction() float64 {
	if p.Limit <= 0 {
		return 0
	}
	return float64(p.Elapsed) / float64(p.Limit)
}

func (p Progress) Remaining() int {
	return max(p.Limit-p.Elapsed, 0)
}

type NoticeKind string

const (
	NoticeQuotaExceeded       NoticeKind = "quota_exceeded"
	NoticePermissionDenied    NoticeKind = "permission_denied"
	NoticeDeviceUnavailable   NoticeKind = "device_unavailable"
	NoticeCaptureFailed       NoticeKind = "capture_failed"
	NoticeTranscriptionFailed NoticeKind = "transcription_failed"
	NoticeUpgradeRequired     NoticeKind = "upgrade_required"
)

// Notice is a dismissible user-facing message. UpgradeURL is set when an
// upgrade would lift the restriction.
type Notice struct {
	Kind       NoticeKind
	Message    string
	UpgradeURL string
	Err        error
}

// Review is delivered when a transcript is ready.
type Review struct {
	SessionID  string
	Transcript transcriber.Result
	Duration   time.Duration
	Format     string
	Pro        bool
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) StateChanged(State, Reason) {}
func (NopSink) Progress(Progress)          {}
func (NopSink) Notice(Notice)              {}
func (NopSink) TranscriptReady(Review)     {}

// Snapshot is a copy of the controller's current session.
type Snapshot struct {
	ID         string
	State      State
	Pro        bool
	StartedAt  time.Time
	Elapsed    int
	Limit      int
	Audio      *capture.Audio
	Transcript *transcriber.Result
	Edited     *string
	Charged    bool
	Err        error
}

// Text is the edited transcript when present, else the original.
func (s Snapshot) Text() string {
	if s.Edited != nil {
		return *s.Edited
	}
	if s.Transcript != nil {
		return s.Transcript.Text
	}
	return ""
}
