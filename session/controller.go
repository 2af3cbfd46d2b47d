// Package session is the recording session controller: the state machine
// that owns the capture lifecycle, enforces the time limit and daily quota,
// runs the transcription round-trip and gates the pro-only actions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"jot/capture"
	"jot/encoder"
	"jot/export"
	"jot/log"
	"jot/quota"
	"jot/transcriber"
)

var (
	ErrQuotaExceeded     = errors.New("daily recording quota exceeded")
	ErrNotReviewing      = errors.New("no transcript under review")
	ErrNothingToRetry    = errors.New("no retained audio to retry")
	ErrSessionDiscarded  = errors.New("session discarded")
	ErrUpgradeRequired   = errors.New("upgrade required")
	ErrExportUnavailable = errors.New("export unavailable")
	ErrNoAudio           = errors.New("no audio captured")
)

// Capturer is the capture boundary the controller drives.
type Capturer interface {
	Start(ctx context.Context) error
	Stop() (capture.Audio, error)
	Abort()
	Format() encoder.Format
}

type QuotaTracker interface {
	CanStart(p quota.Profile) quota.Decision
	RecordUse(p quota.Profile)
}

// TierSource returns the current tier profile.
type TierSource func() quota.Profile

// ChargePolicy decides when a recording consumes a daily use.
type ChargePolicy int

const (
	// ChargeOnFinalize charges once the capture finalizes, whatever the
	// transcription outcome.
	ChargeOnFinalize ChargePolicy = iota
	// ChargeOnSuccess charges only when transcription succeeds.
	ChargeOnSuccess
)

func ParseChargePolicy(s string) (ChargePolicy, error) {
	switch s {
	case "", "finalize":
		return ChargeOnFinalize, nil
	case "success":
		return ChargeOnSuccess, nil
	}
	return ChargeOnFinalize, fmt.Errorf("unknown charge policy %q", s)
}

type Deps struct {
	Capture     Capturer
	Transcriber transcriber.Transcriber
	Quota       QuotaTracker
	Tier        TierSource
	Gateway     export.Gateway
	Saver       export.Saver
	Sink        EventSink
}

type Options struct {
	UpgradeURL   string
	ChargePolicy ChargePolicy
	// NewTicker defaults to NewRealTicker.
	NewTicker func(time.Duration) Ticker
	Now       func() time.Time
}

// record is the live session. It is replaced, never reused.
type record struct {
	id         string
	profile    quota.Profile
	startedAt  time.Time
	elapsed    int
	attempt    int
	audio      *capture.Audio
	transcript *transcriber.Result
	edited     *string
	charged    bool
	err        error
}

// Controller is safe for concurrent use. Blocking work (capture grant,
// transcription) runs with the lock released.
type Controller struct {
	ctx  context.Context
	deps Deps
	opts Options

	mu       sync.Mutex
	state    State
	profile  quota.Profile
	sess     *record
	ticker   Ticker
	tickStop chan struct{}
	outbox   []func(EventSink)

	emitMu sync.Mutex
	wg     sync.WaitGroup
}

// New creates a controller. ctx bounds in-flight transcription requests.
func New(ctx context.Context, deps Deps, opts Options) *Controller {
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewRealTicker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{ctx: ctx, deps: deps, opts: opts, state: StateIdle}
	c.profile = deps.Tier()
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Profile returns the tier profile new sessions will use.
func (c *Controller) Profile() quota.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// Quota reports whether a recording could start now.
func (c *Controller) Quota() quota.Decision {
	return c.deps.Quota.CanStart(c.Profile())
}

// RefreshTier re-reads the tier. A recording in progress keeps the limit it
// started with.
func (c *Controller) RefreshTier() quota.Profile {
	p := c.deps.Tier()
	c.mu.Lock()
	c.profile = p
	c.mu.Unlock()
	return p
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{State: c.state, Pro: c.profile.Pro}
	if s := c.sess; s != nil {
		snap.ID = s.id
		snap.StartedAt = s.startedAt
		snap.Elapsed = s.elapsed
		snap.Limit = s.profile.TimeLimit
		snap.Audio = s.audio
		snap.Transcript = s.transcript
		snap.Edited = s.edited
		snap.Charged = s.charged
		snap.Err = s.err
	}
	return snap
}

// Start checks the quota, then requests the capture device. It returns once
// recording has begun or failed.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		from := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, from)
	}

	profile := c.profile
	if d := c.deps.Quota.CanStart(profile); !d.Allowed {
		c.queue(func(s EventSink) {
			s.Notice(Notice{
				Kind:       NoticeQuotaExceeded,
				Message:    fmt.Sprintf("You have used all %d free recordings for today.", profile.DailyLimit),
				UpgradeURL: c.opts.UpgradeURL,
				Err:        ErrQuotaExceeded,
			})
		})
		c.mu.Unlock()
		c.flush()
		return ErrQuotaExceeded
	}

	sess := &record{id: uuid.NewString(), profile: profile}
	c.sess = sess
	c.transition(evStart, ReasonCaptureRequested)
	c.mu.Unlock()
	c.flush()

	err := c.deps.Capture.Start(ctx)

	c.mu.Lock()
	if c.sess != sess || c.state != StateRequesting {
		c.mu.Unlock()
		if err == nil {
			c.deps.Capture.Abort()
		}
		return ErrSessionDiscarded
	}
	if err != nil {
		sess.err = err
		reason, kind, msg := ReasonDeviceUnavailable, NoticeDeviceUnavailable, "No usable microphone was found."
		if errors.Is(err, capture.ErrPermissionDenied) {
			reason, kind, msg = ReasonPermissionDenied, NoticePermissionDenied, "Microphone access was denied."
		}
		c.transition(evDenied, reason)
		c.queue(func(s EventSink) { s.Notice(Notice{Kind: kind, Message: msg, Err: err}) })
		c.mu.Unlock()
		c.flush()
		return err
	}

	sess.startedAt = c.opts.Now()
	c.transition(evGranted, ReasonRecordingStarted)
	c.startTicker(sess.id)
	log.SessionStart(sess.id, profile.Pro, profile.TimeLimit, c.deps.Capture.Format().Name)
	c.mu.Unlock()
	c.flush()
	return nil
}

// Stop ends recording and starts transcription.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StateRecording {
		from := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, from)
	}
	err := c.finishRecording(evStop, ReasonStopped)
	c.mu.Unlock()
	c.flush()
	return err
}

// Retry re-sends the retained audio of a failed transcription. It never
// charges the quota again.
func (c *Controller) Retry() error {
	c.mu.Lock()
	if c.state != StateFailed || c.sess == nil || c.sess.audio == nil {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	c.sess.err = nil
	c.transition(evRetry, ReasonRetrying)
	c.transcribe(c.sess)
	c.mu.Unlock()
	c.flush()
	return nil
}

// Dismiss discards a reviewed or failed session.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	if _, err := next(c.state, evDismiss); err != nil {
		c.mu.Unlock()
		return err
	}
	c.transition(evDismiss, ReasonDismissed)
	c.sess = nil
	c.mu.Unlock()
	c.flush()
	return nil
}

// Teardown returns to Idle from any state, releasing the ticker and the
// device. An outstanding transcription completes and is ignored. A device
// still being opened is released by the pending Start once it returns, so
// Teardown never waits on a permission prompt.
func (c *Controller) Teardown() {
	c.mu.Lock()
	c.stopTicker()
	if c.state == StateRecording {
		c.deps.Capture.Abort()
	}
	if c.state != StateIdle {
		c.transition(evTeardown, ReasonTornDown)
	}
	c.sess = nil
	c.mu.Unlock()
	c.flush()
}

// Wait blocks until in-flight transcriptions have been delivered.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// EditTranscript stores an edited copy of the transcript. The original
// result is kept.
func (c *Controller) EditTranscript(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewing || c.sess == nil {
		return ErrNotReviewing
	}
	c.sess.edited = &text
	return nil
}

func (c *Controller) startTicker(id string) {
	t := c.opts.NewTicker(time.Second)
	stop := make(chan struct{})
	c.ticker = t
	c.tickStop = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				c.tick(id)
			}
		}
	}()
}

// stopTicker is called on every exit from Recording. Callers hold c.mu.
func (c *Controller) stopTicker() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.tickStop)
	c.ticker = nil
	c.tickStop = nil
}

func (c *Controller) tick(id string) {
	c.mu.Lock()
	if c.state != StateRecording || c.sess == nil || c.sess.id != id {
		c.mu.Unlock()
		return
	}
	s := c.sess
	s.elapsed++
	p := Progress{Elapsed: s.elapsed, Limit: s.profile.TimeLimit}
	c.queue(func(sink EventSink) { sink.Progress(p) })
	if s.elapsed >= s.profile.TimeLimit {
		c.finishRecording(evLimit, ReasonAutoStopped)
	} else {
		c.transition(evTick, "")
	}
	c.mu.Unlock()
	c.flush()
}

// finishRecording finalizes the capture and dispatches transcription.
// Callers hold c.mu and the state is Recording.
func (c *Controller) finishRecording(ev event, reason Reason) error {
	c.stopTicker()
	s := c.sess

	a, err := c.deps.Capture.Stop()
	if err != nil {
		s.err = err
		c.transition(evFinalizeFailed, ReasonCaptureFailed)
		c.queue(func(sink EventSink) {
			sink.Notice(Notice{Kind: NoticeCaptureFailed, Message: "The recording could not be saved.", Err: err})
		})
		return err
	}
	s.audio = &a
	if c.opts.ChargePolicy == ChargeOnFinalize {
		c.charge(s)
	}
	c.transition(ev, reason)
	c.transcribe(s)
	return nil
}

// transcribe sends the session's audio without holding the lock. Callers
// hold c.mu.
func (c *Controller) transcribe(s *record) {
	s.attempt++
	id, attempt, a := s.id, s.attempt, *s.audio
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.deps.Transcriber.Transcribe(c.ctx, a)
		c.deliver(id, attempt, res, err)
	}()
}

func (c *Controller) deliver(id string, attempt int, res transcriber.Result, err error) {
	c.mu.Lock()
	s := c.sess
	if c.state != StateTranscribing || s == nil || s.id != id || s.attempt != attempt {
		c.mu.Unlock()
		log.Info(fmt.Sprintf("discarding stale transcription for session %s", id))
		return
	}

	if err != nil {
		s.err = err
		c.transition(evTranscribeFailed, ReasonTranscriptionFailed)
		c.queue(func(sink EventSink) {
			sink.Notice(Notice{Kind: NoticeTranscriptionFailed, Message: transcriptionMessage(err), Err: err})
		})
		c.mu.Unlock()
		c.flush()
		return
	}

	s.transcript = &res
	if c.opts.ChargePolicy == ChargeOnSuccess {
		c.charge(s)
	}
	c.transition(evTranscribed, ReasonTranscriptReady)
	review := Review{
		SessionID:  s.id,
		Transcript: res,
		Duration:   s.audio.Duration,
		Format:     s.audio.Format.Name,
		Pro:        c.profile.Pro,
	}
	c.queue(func(sink EventSink) { sink.TranscriptReady(review) })
	c.mu.Unlock()
	c.flush()
}

func transcriptionMessage(err error) string {
	var se *transcriber.ServiceError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("The transcription service failed (%d): %s", se.Status, se.Message)
	case errors.Is(err, transcriber.ErrUnreachable):
		return "The transcription service could not be reached."
	case errors.Is(err, transcriber.ErrMalformedResponse):
		return "The transcription service sent an unreadable response."
	}
	return err.Error()
}

// charge consumes one daily use at most once per session. Callers hold c.mu.
func (c *Controller) charge(s *record) {
	if s.charged {
		return
	}
	c.deps.Quota.RecordUse(s.profile)
	s.charged = true
}

// transition applies ev and queues a StateChanged event. Callers hold c.mu.
// Ticks keep the state and are not announced.
func (c *Controller) transition(ev event, reason Reason) {
	from := c.state
	to, err := next(from, ev)
	if err != nil {
		log.Errorf("session: %v", err)
		return
	}
	c.state = to
	if from == to {
		return
	}
	id := ""
	if c.sess != nil {
		id = c.sess.id
	}
	log.StateChange(id, string(from), string(to), string(reason))
	c.queue(func(s EventSink) { s.StateChanged(to, reason) })
}

// queue appends an event for delivery. Callers hold c.mu.
func (c *Controller) queue(f func(EventSink)) {
	c.outbox = append(c.outbox, f)
}

// flush delivers queued events in order. If another goroutine is already
// delivering, it picks up these events too.
func (c *Controller) flush() {
	for {
		if !c.emitMu.TryLock() {
			return
		}
		for {
			c.mu.Lock()
			batch := c.outbox
			c.outbox = nil
			c.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, f := range batch {
				f(c.deps.Sink)
			}
		}
		c.emitMu.Unlock()

		c.mu.Lock()
		pending := len(c.outbox) > 0
		c.mu.Unlock()
		if !pending {
			return
		}
	}
}
