package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const diagFileName = "diagnostics_log.txt"

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

// NetMetrics is the network timing of one transcription request.
type NetMetrics struct {
	AudioLengthS float64
	UploadKB     float64
	Format       string
	DNSTimeMs    float64
	TLSTimeMs    float64
	TTFBMs       float64
	TotalTimeMs  float64
	ConnReused   bool
	Status       int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absFromWd(flagPath)
	}

	// Priority 2: JOT_LOG_PATH environment variable
	if envPath := os.Getenv("JOT_LOG_PATH"); envPath != "" {
		return absFromWd(envPath)
	}

	// Priority 3: Default OS-specific location
	return defaultDir()
}

func absFromWd(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

// event starts a diagnostics entry. Before Init or after Close it returns a
// nil event, on which zerolog methods are no-ops.
func event(level zerolog.Level) *zerolog.Event {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		return nil
	}
	return diagLog.WithLevel(level)
}

func Info(msg string)                   { event(zerolog.InfoLevel).Msg(msg) }
func Warn(msg string)                   { event(zerolog.WarnLevel).Msg(msg) }
func Warnf(format string, args ...any)  { event(zerolog.WarnLevel).Msgf(format, args...) }
func Error(msg string)                  { event(zerolog.ErrorLevel).Msg(msg) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

// SessionStart, StateChange and QuotaUse never carry transcript text.
func SessionStart(id string, pro bool, limitS int, format string) {
	event(zerolog.InfoLevel).
		Str("session", id).
		Bool("pro", pro).
		Int("limit_s", limitS).
		Str("format", format).
		Msg("session_start")
}

func StateChange(id, from, to, reason string) {
	event(zerolog.InfoLevel).
		Str("session", id).
		Str("from", from).
		Str("to", to).
		Str("reason", reason).
		Msg("state")
}

func QuotaUse(count, limit int) {
	event(zerolog.InfoLevel).
		Int("count", count).
		Int("limit", limit).
		Msg("quota_use")
}

func TranscriptionMetrics(m NetMetrics) {
	conn := "new"
	if m.ConnReused {
		conn = "reused"
	}
	event(zerolog.InfoLevel).
		Str("format", m.Format).
		Str("conn", conn).
		Int("status", m.Status).
		Float64("audio_s", m.AudioLengthS).
		Float64("upload_kb", m.UploadKB).
		Float64("dns_ms", m.DNSTimeMs).
		Float64("tls_ms", m.TLSTimeMs).
		Float64("ttfb_ms", m.TTFBMs).
		Float64("total_ms", m.TotalTimeMs).
		Msg("transcription")
}
