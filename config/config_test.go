package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var jotVars = []string{
	"JOT_TRANSCRIBE_URL", "JOT_TRANSCRIBE_TOKEN", "JOT_TRANSCRIBE_TIMEOUT_MS",
	"JOT_FREE_TIME_LIMIT", "JOT_PRO_TIME_LIMIT", "JOT_FREE_DAILY_LIMIT",
	"JOT_DATA_DIR", "JOT_EXPORT_DIR", "JOT_FORMATS", "JOT_UPGRADE_URL",
	"JOT_CHARGE_POLICY", "JOT_DEVICE", "JOT_MIC_GAIN", "JOT_STUB_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range jotVars {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcribe.URL != DefaultTranscribeURL {
		t.Errorf("URL = %q", cfg.Transcribe.URL)
	}
	if cfg.Transcribe.Timeout != 60*time.Second {
		t.Errorf("Timeout = %s", cfg.Transcribe.Timeout)
	}
	if cfg.Limits.FreeTimeLimit != 120 || cfg.Limits.ProTimeLimit != 600 || cfg.Limits.FreeDailyLimit != 3 {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
	if !reflect.DeepEqual(cfg.Formats, []string{"flac", "wav"}) {
		t.Errorf("Formats = %v", cfg.Formats)
	}
	if cfg.ChargePolicy != "finalize" {
		t.Errorf("ChargePolicy = %q", cfg.ChargePolicy)
	}
	if cfg.MicGain != 1 {
		t.Errorf("MicGain = %d", cfg.MicGain)
	}
	if filepath.Base(cfg.DataDir) != "jot" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JOT_TRANSCRIBE_URL", "https://stt.test/v1")
	t.Setenv("JOT_TRANSCRIBE_TIMEOUT_MS", "1500")
	t.Setenv("JOT_FREE_TIME_LIMIT", "30")
	t.Setenv("JOT_FREE_DAILY_LIMIT", "0")
	t.Setenv("JOT_PRO_TIME_LIMIT", "nope")
	t.Setenv("JOT_FORMATS", " WAV , ,flac")
	t.Setenv("JOT_CHARGE_POLICY", "Success")
	t.Setenv("JOT_MIC_GAIN", "40")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcribe.URL != "https://stt.test/v1" || cfg.Transcribe.Timeout != 1500*time.Millisecond {
		t.Errorf("Transcribe = %+v", cfg.Transcribe)
	}
	if cfg.Limits.FreeTimeLimit != 30 {
		t.Errorf("FreeTimeLimit = %d", cfg.Limits.FreeTimeLimit)
	}
	if cfg.Limits.FreeDailyLimit != 3 {
		t.Errorf("non-positive daily limit not defaulted: %d", cfg.Limits.FreeDailyLimit)
	}
	if cfg.Limits.ProTimeLimit != 600 {
		t.Errorf("unparsable pro limit not defaulted: %d", cfg.Limits.ProTimeLimit)
	}
	if !reflect.DeepEqual(cfg.Formats, []string{"wav", "flac"}) {
		t.Errorf("Formats = %v", cfg.Formats)
	}
	if cfg.ChargePolicy != "success" {
		t.Errorf("ChargePolicy = %q", cfg.ChargePolicy)
	}
	if cfg.MicGain != 16 {
		t.Errorf("MicGain = %d, want clamp to 16", cfg.MicGain)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	for _, k := range jotVars {
		os.Unsetenv(k)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("JOT_TRANSCRIBE_TOKEN=from-file\nJOT_DEVICE=USB\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JOT_DEVICE", "from-env")
	t.Cleanup(func() { os.Unsetenv("JOT_TRANSCRIBE_TOKEN") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcribe.Token != "from-file" {
		t.Errorf("Token = %q", cfg.Transcribe.Token)
	}
	if cfg.Device != "from-env" {
		t.Errorf(".env overrode environment: Device = %q", cfg.Device)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}
