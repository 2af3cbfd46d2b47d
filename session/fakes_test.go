package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jot/capture"
	"jot/encoder"
	"jot/export"
	"jot/quota"
	"jot/store"
	"jot/transcriber"
)

type fakeCapture struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	audio    capture.Audio
	starts   int
	stops    int
	aborts   int
	active   bool

	// entered and release, when set, hold Start until release is closed,
	// like a platform permission prompt.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeCapture) Start(context.Context) error {
	if f.release != nil {
		close(f.entered)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeCapture) Stop() (capture.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.active = false
	if f.stopErr != nil {
		return capture.Audio{}, f.stopErr
	}
	return f.audio, nil
}

func (f *fakeCapture) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.aborts++
	}
	f.active = false
}

func (f *fakeCapture) Format() encoder.Format { return encoder.FLAC }

func (f *fakeCapture) counts() (starts, stops, aborts int, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.aborts, f.active
}

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{c: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) last(t *testing.T) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		t.Fatal("no ticker created")
	}
	return c.tickers[len(c.tickers)-1]
}

// tick delivers one tick and fails if the ticker goroutine is gone.
func (f *fakeTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case f.c <- time.Time{}:
	case <-time.After(time.Second):
		t.Fatal("tick not consumed")
	}
}

// tryTick reports whether a tick was consumed within a short window.
func (f *fakeTicker) tryTick() bool {
	select {
	case f.c <- time.Time{}:
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

type stateEvent struct {
	state  State
	reason Reason
}

type recordingSink struct {
	mu       sync.Mutex
	states   []stateEvent
	progress []Progress
	notices  []Notice
	reviews  []Review
}

func (s *recordingSink) StateChanged(st State, r Reason) {
	s.mu.Lock()
	s.states = append(s.states, stateEvent{st, r})
	s.mu.Unlock()
}

func (s *recordingSink) Progress(p Progress) {
	s.mu.Lock()
	s.progress = append(s.progress, p)
	s.mu.Unlock()
}

func (s *recordingSink) Notice(n Notice) {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	s.mu.Unlock()
}

func (s *recordingSink) TranscriptReady(r Review) {
	s.mu.Lock()
	s.reviews = append(s.reviews, r)
	s.mu.Unlock()
}

func (s *recordingSink) snapshotStates() []stateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stateEvent(nil), s.states...)
}

func (s *recordingSink) snapshotNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

type fakeGateway struct {
	available bool
	docs      []export.Document
}

func (g *fakeGateway) Available() bool { return g.available }

func (g *fakeGateway) Export(_ context.Context, doc export.Document) (export.Artifact, error) {
	g.docs = append(g.docs, doc)
	return export.Artifact{Path: "memo.md"}, nil
}

type fakeSaver struct {
	names []string
	data  [][]byte
}

func (s *fakeSaver) Save(_ context.Context, name string, data []byte) (string, error) {
	s.names = append(s.names, name)
	s.data = append(s.data, data)
	return "/downloads/" + name, nil
}

var testLimits = quota.Limits{FreeTimeLimit: 120, ProTimeLimit: 600, FreeDailyLimit: 3}

type harness struct {
	ctrl    *Controller
	kv      *store.Memory
	tracker *quota.Tracker
	capture *fakeCapture
	trans   *transcriber.Fake
	clock   *fakeClock
	sink    *recordingSink
	gateway *fakeGateway
	saver   *fakeSaver
}

func newHarness(t *testing.T, pro bool, opts Options) *harness {
	t.Helper()
	h := &harness{
		kv: store.NewMemory(),
		capture: &fakeCapture{audio: capture.Audio{
			Data:     []byte("audio-bytes"),
			Format:   encoder.FLAC,
			Duration: 42 * time.Second,
		}},
		trans:   transcriber.NewFake("hello", nil),
		clock:   &fakeClock{},
		sink:    &recordingSink{},
		gateway: &fakeGateway{available: true},
		saver:   &fakeSaver{},
	}
	if pro {
		quota.SetPro(h.kv, true)
	}
	h.tracker = quota.NewTracker(h.kv)
	opts.NewTicker = h.clock.NewTicker
	if opts.UpgradeURL == "" {
		opts.UpgradeURL = "https://example.test/upgrade"
	}
	h.ctrl = New(context.Background(), Deps{
		Capture:     h.capture,
		Transcriber: h.trans,
		Quota:       h.tracker,
		Tier:        func() quota.Profile { return quota.LoadProfile(h.kv, testLimits) },
		Gateway:     h.gateway,
		Saver:       h.saver,
		Sink:        h.sink,
	}, opts)
	t.Cleanup(func() {
		h.ctrl.Teardown()
		h.ctrl.Wait()
	})
	return h
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.State(), want)
}

// record runs one session through to Reviewing.
func (h *harness) record(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	h.ctrl.Wait()
	waitForState(t, h.ctrl, StateReviewing)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met")
}
