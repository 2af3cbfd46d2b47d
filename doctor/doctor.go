// Package doctor runs jot's system checks: storage, export directory,
// microphone capture, transcription and the global hotkey.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"jot/audio"
	"jot/capture"
	"jot/config"
	"jot/export"
	"jot/store"
	"jot/transcriber"
)

var errSkipped = errors.New("skipped")

type Deps struct {
	Config      config.Config
	Audio       audio.Context
	Device      *audio.DeviceInfo
	Transcriber transcriber.Transcriber
	// Record is how long the microphone check captures.
	Record time.Duration
	// Hotkey probes global hotkey support. Nil skips the check.
	Hotkey func() (string, error)
	Out    io.Writer
}

// state carries results between checks.
type state struct {
	audio *capture.Audio
}

type check struct {
	name string
	run  func(ctx context.Context, d Deps, st *state) (string, error)
}

var checks = []check{
	{"Storage", checkStorage},
	{"Export directory", checkExportDir},
	{"Microphone", checkMicrophone},
	{"Transcription", checkTranscription},
	{"Hotkey", checkHotkey},
}

// Run executes every check and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, d Deps) int {
	out := d.Out
	fmt.Fprintln(out, "jot doctor - system diagnostics")
	fmt.Fprintln(out, "===============================")

	allPass := true
	st := &state{}
	for i, c := range checks {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "[%d/%d] %s\n", i+1, len(checks), c.name)
		detail, err := c.run(ctx, d, st)
		switch {
		case errors.Is(err, errSkipped):
			fmt.Fprintf(out, "  SKIP: %s\n", detail)
		case err != nil:
			fmt.Fprintf(out, "  FAIL: %v\n", err)
			allPass = false
		default:
			fmt.Fprintf(out, "  PASS: %s\n", detail)
		}
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func checkStorage(_ context.Context, d Deps, _ *state) (string, error) {
	path := store.DefaultPath(d.Config.DataDir)
	kv, err := store.OpenSQLite(path)
	if err != nil {
		return "", err
	}
	defer kv.Close()

	probe := time.Now().UTC().Format(time.RFC3339Nano)
	if err := kv.Set("jot.doctor", probe); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	got, ok, err := kv.Get("jot.doctor")
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if !ok || got != probe {
		return "", fmt.Errorf("read back %q, wrote %q", got, probe)
	}
	return path, nil
}

func checkExportDir(_ context.Context, d Deps, _ *state) (string, error) {
	if !export.NewMarkdown(d.Config.ExportDir).Available() {
		return "", fmt.Errorf("cannot create %s", d.Config.ExportDir)
	}
	return d.Config.ExportDir, nil
}

func checkMicrophone(ctx context.Context, d Deps, st *state) (string, error) {
	if d.Audio == nil {
		return "no audio context", errSkipped
	}
	sess := capture.NewSession(d.Audio, capture.Config{Formats: d.Config.Formats, Device: d.Device, Gain: d.Config.MicGain})
	if err := sess.Start(ctx); err != nil {
		return "", err
	}

	select {
	case <-time.After(d.Record):
	case <-ctx.Done():
		sess.Abort()
		return "", ctx.Err()
	}

	a, err := sess.Stop()
	if err != nil {
		return "", err
	}
	if len(a.Data) == 0 {
		return "", errors.New("no audio captured")
	}
	st.audio = &a
	return fmt.Sprintf("recorded %.1f KB of %s in %s", float64(len(a.Data))/1024, a.Format.Name, a.Duration.Round(10*time.Millisecond)), nil
}

func checkTranscription(ctx context.Context, d Deps, st *state) (string, error) {
	if st.audio == nil || d.Transcriber == nil {
		return "needs captured audio", errSkipped
	}
	res, err := d.Transcriber.Transcribe(ctx, *st.audio)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	return fmt.Sprintf("%q [%s, %s]", text, export.LanguageText(res.Language), export.ConfidenceText(res.Confidence, res.HasConfidence)), nil
}

func checkHotkey(_ context.Context, d Deps, _ *state) (string, error) {
	if d.Hotkey == nil {
		return "not probed", errSkipped
	}
	return d.Hotkey()
}
