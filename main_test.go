package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"

	"jot/audio"
	"jot/config"
	"jot/encoder"
	"jot/hotkey"
	"jot/quota"
	"jot/session"
	"jot/stub"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// oneSecond is 1 s of 16 kHz mono silence.
var oneSecond = make([]byte, 32000)

func testConfig(t *testing.T, opts stub.Options) config.Config {
	t.Helper()
	srv := httptest.NewServer(stub.NewRouter(opts))
	t.Cleanup(srv.Close)
	return config.Config{
		Transcribe: config.TranscribeConfig{URL: srv.URL + "/transcribe", Timeout: 5 * time.Second},
		Limits:     quota.Limits{FreeTimeLimit: 120, ProTimeLimit: 600, FreeDailyLimit: 3},
		DataDir:    t.TempDir(),
		ExportDir:  t.TempDir(),
		Formats:    []string{"wav"},
		UpgradeURL: "https://example.test/upgrade",
	}
}

// chanSink hands controller events to the test as TUI messages.
type chanSink struct{ msgs chan tea.Msg }

func newChanSink() *chanSink { return &chanSink{msgs: make(chan tea.Msg, 64)} }

func (s *chanSink) StateChanged(st session.State, r session.Reason) {
	s.msgs <- stateMsg{State: st, Reason: r}
}
func (s *chanSink) Progress(p session.Progress)      { s.msgs <- progressMsg(p) }
func (s *chanSink) Notice(n session.Notice)          { s.msgs <- noticeMsg(n) }
func (s *chanSink) TranscriptReady(r session.Review) { s.msgs <- reviewMsg(r) }

func newTestApp(t *testing.T, cfg config.Config, sink session.EventSink) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, audio.NewFakeContextPCM(oneSecond, false), nil, sink)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

// pump feeds every pending controller event to the model.
func pump(m tuiModel, s *chanSink) tuiModel {
	for {
		select {
		case msg := <-s.msgs:
			next, _ := m.Update(msg)
			m = next.(tuiModel)
		default:
			return m
		}
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command synchronously.
func press(t *testing.T, m tuiModel, k tea.KeyMsg) tuiModel {
	t.Helper()
	next, cmd := m.Update(k)
	m = next.(tuiModel)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(tuiModel)
		}
	}
	return m
}

func TestTUIRecordReviewFlow(t *testing.T) {
	sink := newChanSink()
	a := newTestApp(t, testConfig(t, stub.DefaultOptions()), sink)
	m := newTUIModel(context.Background(), a, "mic: fake")
	m.width = 80

	if !strings.Contains(m.View(), "3 of 3 left today") {
		t.Errorf("view missing quota line:\n%s", m.View())
	}

	m = press(t, m, key("r"))
	m = pump(m, sink)
	if m.state != session.StateRecording {
		t.Fatalf("state = %s, want recording", m.state)
	}
	if m.progress.Limit != 120 {
		t.Errorf("limit = %d, want 120", m.progress.Limit)
	}
	if !strings.Contains(m.View(), "REC") {
		t.Error("recording view missing REC")
	}

	m = press(t, m, key("r"))
	a.ctrl.Wait()
	m = pump(m, sink)
	if m.state != session.StateReviewing {
		t.Fatalf("state = %s, want reviewing", m.state)
	}
	view := m.View()
	for _, want := range []string{"hello", "97.0%", "· en ·", "download (pro)"} {
		if !strings.Contains(view, want) {
			t.Errorf("review view missing %q:\n%s", want, view)
		}
	}
	if !strings.Contains(m.tierLine, "2 of 3") {
		t.Errorf("tier line = %q after charge", m.tierLine)
	}
}

func TestTUIEditAndCopy(t *testing.T) {
	sink := newChanSink()
	a := newTestApp(t, testConfig(t, stub.DefaultOptions()), sink)
	m := newTUIModel(context.Background(), a, "")
	var copied string
	m.copy = func(s string) error { copied = s; return nil }

	m = press(t, m, key("r"))
	m = press(t, pump(m, sink), key("r"))
	a.ctrl.Wait()
	m = pump(m, sink)

	m = press(t, m, key("e"))
	if !m.editing {
		t.Fatal("not editing")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = press(t, m, key("there"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.editing {
		t.Fatal("still editing after enter")
	}
	if got := a.ctrl.Snapshot().Text(); got != "hello ther" {
		t.Fatalf("edited text = %q", got)
	}

	m = press(t, m, key("c"))
	if copied != "hello ther" {
		t.Errorf("copied %q", copied)
	}
	if m.status != "Copied to clipboard" {
		t.Errorf("status = %q", m.status)
	}
}

func TestTUIFreeTierGating(t *testing.T) {
	sink := newChanSink()
	cfg := testConfig(t, stub.DefaultOptions())
	a := newTestApp(t, cfg, sink)
	m := newTUIModel(context.Background(), a, "")

	m = press(t, m, key("r"))
	m = press(t, pump(m, sink), key("r"))
	a.ctrl.Wait()
	m = pump(m, sink)

	m = pump(press(t, m, key("d")), sink)
	if m.notice == nil || m.notice.Kind != session.NoticeUpgradeRequired {
		t.Fatalf("notice = %+v, want upgrade required", m.notice)
	}
	if !strings.Contains(m.View(), "https://example.test/upgrade") {
		t.Error("view missing upgrade url")
	}
	if m.status != "" {
		t.Errorf("status = %q, want none", m.status)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.notice != nil {
		t.Error("esc should clear the notice first")
	}

	a.setTier(true)
	m = press(t, m, key("u"))
	if !m.pro {
		t.Fatal("model not pro after refresh")
	}
	m = press(t, m, key("x"))
	if !strings.HasPrefix(m.status, "Exported to ") {
		t.Fatalf("status = %q", m.status)
	}
	path := strings.TrimPrefix(m.status, "Exported to ")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export file: %v", err)
	}

	m = press(t, m, key("d"))
	if !strings.HasPrefix(m.status, "Audio saved to "+cfg.ExportDir) {
		t.Errorf("status = %q", m.status)
	}
	if !strings.HasSuffix(m.status, ".wav") {
		t.Errorf("download is not wav: %q", m.status)
	}
}

func TestTUIFailedTranscriptionRetry(t *testing.T) {
	sink := newChanSink()
	opts := stub.DefaultOptions()
	opts.FailStatus = 500
	a := newTestApp(t, testConfig(t, opts), sink)
	m := newTUIModel(context.Background(), a, "")

	m = press(t, m, key("r"))
	m = press(t, pump(m, sink), key("r"))
	a.ctrl.Wait()
	m = pump(m, sink)

	if m.state != session.StateFailed {
		t.Fatalf("state = %s, want failed", m.state)
	}
	if m.notice == nil || m.notice.Kind != session.NoticeTranscriptionFailed {
		t.Fatalf("notice = %+v", m.notice)
	}
	if !strings.Contains(m.View(), "retry") {
		t.Error("failed view missing retry")
	}

	m = press(t, m, key("t"))
	a.ctrl.Wait()
	m = pump(m, sink)
	if m.state != session.StateFailed {
		t.Errorf("state after retry = %s", m.state)
	}
	if d := a.ctrl.Quota(); d.Remaining != 2 {
		t.Errorf("remaining = %d, retry must not charge again", d.Remaining)
	}
}

func TestTUIQuotaExhausted(t *testing.T) {
	sink := newChanSink()
	cfg := testConfig(t, stub.DefaultOptions())
	cfg.Limits.FreeDailyLimit = 1
	a := newTestApp(t, cfg, sink)
	m := newTUIModel(context.Background(), a, "")

	m = press(t, m, key("r"))
	m = press(t, pump(m, sink), key("r"))
	a.ctrl.Wait()
	m = pump(m, sink)

	m = pump(press(t, m, key("r")), sink)
	if m.notice == nil || m.notice.Kind != session.NoticeQuotaExceeded {
		t.Fatalf("notice = %+v, want quota exceeded", m.notice)
	}
	if m.state != session.StateIdle {
		t.Errorf("state = %s, want idle", m.state)
	}
}

func TestTUIQuit(t *testing.T) {
	a := newTestApp(t, testConfig(t, stub.DefaultOptions()), session.NopSink{})
	m := newTUIModel(context.Background(), a, "")
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestTestMode(t *testing.T) {
	cfg := testConfig(t, stub.DefaultOptions())
	enc := encoder.NewWav()
	if err := enc.EncodeBlock(make([]int16, encoder.SampleRate)); err != nil {
		t.Fatal(err)
	}
	enc.Close()
	wav := filepath.Join(t.TempDir(), "short.wav")
	if err := os.WriteFile(wav, enc.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	script := strings.Join([]string{
		"START", "STOP", "WAIT",
		"EDIT edited words",
		"DOWNLOAD",
		"TIER pro",
		"EXPORT",
		"QUOTA",
		"BOGUS",
		"QUIT",
	}, "\n")
	var out bytes.Buffer
	if err := runTestMode(cfg, wav, strings.NewReader(script), &out); err != nil {
		t.Fatalf("runTestMode: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"state requesting capture_requested",
		"state recording recording_started",
		"state transcribing stopped",
		`transcript "hello"`,
		"error download: upgrade required",
		"notice upgrade_required",
		"tier pro=true limit=600",
		"export " + cfg.ExportDir,
		"quota allowed=true remaining=-1",
		`error unknown command "BOGUS"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	md, err := filepath.Glob(filepath.Join(cfg.ExportDir, "*.md"))
	if err != nil || len(md) != 1 {
		t.Fatalf("exports = %v, %v", md, err)
	}
	data, _ := os.ReadFile(md[0])
	if !strings.Contains(string(data), "edited words") {
		t.Errorf("export does not carry the edit:\n%s", data)
	}
}

func TestRunTier(t *testing.T) {
	cfg := testConfig(t, stub.DefaultOptions())
	if code := runTier(cfg, []string{"pro"}); code != 0 {
		t.Fatalf("tier pro = %d", code)
	}
	if code := runTier(cfg, []string{"gold"}); code != 2 {
		t.Errorf("tier gold = %d, want 2", code)
	}

	a := newTestApp(t, cfg, session.NopSink{})
	if !a.ctrl.Profile().Pro {
		t.Error("tier flag not persisted")
	}
}

func TestStartFreshDismissesReview(t *testing.T) {
	a := newTestApp(t, testConfig(t, stub.DefaultOptions()), session.NopSink{})
	ctx := context.Background()
	if err := toggle(ctx, a.ctrl); err != nil {
		t.Fatal(err)
	}
	if err := toggle(ctx, a.ctrl); err != nil {
		t.Fatal(err)
	}
	a.ctrl.Wait()
	if a.ctrl.State() != session.StateReviewing {
		t.Fatalf("state = %s", a.ctrl.State())
	}
	if err := startFresh(ctx, a.ctrl); err != nil {
		t.Fatalf("startFresh: %v", err)
	}
	if a.ctrl.State() != session.StateRecording {
		t.Errorf("state = %s, want recording", a.ctrl.State())
	}
}

func TestBadChargePolicy(t *testing.T) {
	cfg := testConfig(t, stub.DefaultOptions())
	cfg.ChargePolicy = "sometimes"
	_, err := newApp(context.Background(), cfg, audio.NewFakeContextPCM(oneSecond, false), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hello there world", 11, []string{"hello", "there world"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"one\ntwo", 10, []string{"one", "two"}},
		{"héllo wörld", 6, []string{"héllo", "wörld"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestClock(t *testing.T) {
	for s, want := range map[int]string{0: "0:00", 42: "0:42", 120: "2:00", 605: "10:05", -3: "0:00"} {
		if got := clock(s); got != want {
			t.Errorf("clock(%d) = %q, want %q", s, got, want)
		}
	}
}

func TestTierLine(t *testing.T) {
	free := quota.ProfileFor(false, quota.Limits{})
	if got := tierLine(free, quota.Decision{Allowed: true, Remaining: 2}); got != "free: recordings up to 2:00, 2 of 3 left today" {
		t.Errorf("free = %q", got)
	}
	pro := quota.ProfileFor(true, quota.Limits{})
	if got := tierLine(pro, quota.Decision{Allowed: true, Remaining: quota.Unlimited}); !strings.Contains(got, "10:00, unlimited") {
		t.Errorf("pro = %q", got)
	}
}

func waitState(t *testing.T, a *app, want session.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.ctrl.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", a.ctrl.State(), want)
}

func TestDriveHotkey(t *testing.T) {
	a := newTestApp(t, testConfig(t, stub.DefaultOptions()), session.NopSink{})
	fk := hotkey.NewFake()
	tr := hotkey.NewTrigger(fk, time.Second)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go driveHotkey(ctx, a.ctrl, tr)

	fk.SimTap()
	waitState(t, a, session.StateRecording)
	fk.SimTap()
	waitState(t, a, session.StateReviewing)

	// A tap from Reviewing starts a fresh recording.
	fk.SimTap()
	waitState(t, a, session.StateRecording)
}
