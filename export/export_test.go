package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFilename(t *testing.T) {
	ts := time.Date(2026, 3, 10, 14, 5, 9, 123_000_000, time.FixedZone("X", 3600))
	got := Filename(ts, "flac")
	want := "recording-2026-03-10T13-05-09-123Z.flac"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestConfidenceText(t *testing.T) {
	tests := []struct {
		p     float64
		known bool
		want  string
	}{
		{0.97, true, "97.0%"},
		{1, true, "100.0%"},
		{0.12345, true, "12.3%"},
		{0, false, "unknown"},
	}
	for _, tt := range tests {
		if got := ConfidenceText(tt.p, tt.known); got != tt.want {
			t.Errorf("ConfidenceText(%v, %v) = %q, want %q", tt.p, tt.known, got, tt.want)
		}
	}
}

func TestDurationText(t *testing.T) {
	for d, want := range map[time.Duration]string{
		0:                       "0:00",
		9 * time.Second:         "0:09",
		125 * time.Second:       "2:05",
		1500 * time.Millisecond: "0:02",
	} {
		if got := DurationText(d); got != want {
			t.Errorf("DurationText(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestMarkdownExport(t *testing.T) {
	dir := t.TempDir()
	m := NewMarkdown(dir)
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if !m.Available() {
		t.Fatal("expected gateway available")
	}
	art, err := m.Export(context.Background(), Document{
		Title:                 "Standup",
		Language:              "en",
		ConfidencePercentText: "97.0%",
		DurationText:          "0:42",
		TranscriptText:        "  hello  ",
		Image:                 []byte{0x89, 'P', 'N', 'G'},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Base(art.Path) != "recording-2026-01-02T03-04-05-000Z.md" {
		t.Errorf("path = %s", art.Path)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{"# Standup", "- Language: en", "- Confidence: 97.0%", "- Duration: 0:42", "\nhello\n", ".png)"} {
		if !strings.Contains(body, want) {
			t.Errorf("document missing %q:\n%s", want, body)
		}
	}
	if _, err := os.Stat(art.ImagePath); err != nil {
		t.Errorf("image not written: %v", err)
	}
}

func TestMarkdownUnavailable(t *testing.T) {
	var m *Markdown
	if m.Available() {
		t.Error("nil gateway reported available")
	}
	if NewMarkdown("").Available() {
		t.Error("empty dir reported available")
	}
}

func TestRenderUnknownLanguage(t *testing.T) {
	out := Render(Document{TranscriptText: "x"}, "")
	if !strings.Contains(out, "- Language: unknown") || !strings.Contains(out, "# Voice Memo") {
		t.Errorf("render:\n%s", out)
	}
}

func TestDirSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	path, err := Dir{Path: dir}.Save(context.Background(), "a.wav", []byte("RIFF"))
	if err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != "RIFF" {
		t.Errorf("saved %q", data)
	}
	if _, err := (Dir{Path: dir}).Save(context.Background(), "../escape.wav", nil); err == nil {
		t.Error("expected error for path traversal")
	}
}
