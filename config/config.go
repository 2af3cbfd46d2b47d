// Package config resolves jot's runtime configuration from an optional .env
// file and JOT_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"jot/quota"
)

const (
	DefaultTranscribeURL = "http://localhost:8787/transcribe"
	DefaultUpgradeURL    = "https://jot.example.com/upgrade"
	DefaultStubAddr      = ":8787"
)

type Config struct {
	Transcribe   TranscribeConfig
	Limits       quota.Limits
	DataDir      string
	ExportDir    string
	Formats      []string
	UpgradeURL   string
	ChargePolicy string
	Device       string
	MicGain      int
	StubAddr     string
}

type TranscribeConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Load reads envFile (".env" when empty) if it exists, without overriding
// variables already set, then resolves the configuration.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv()
}

// FromEnv resolves the configuration from the environment alone.
func FromEnv() (Config, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	dataDir := envOrDefault("JOT_DATA_DIR", filepath.Join(base, "jot"))

	exportDir := strings.TrimSpace(os.Getenv("JOT_EXPORT_DIR"))
	if exportDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			exportDir = filepath.Join(home, "jot")
		} else {
			exportDir = filepath.Join(dataDir, "exports")
		}
	}

	cfg := Config{
		Transcribe: TranscribeConfig{
			URL:     envOrDefault("JOT_TRANSCRIBE_URL", DefaultTranscribeURL),
			Token:   strings.TrimSpace(os.Getenv("JOT_TRANSCRIBE_TOKEN")),
			Timeout: time.Duration(envOrDefaultInt("JOT_TRANSCRIBE_TIMEOUT_MS", 60000)) * time.Millisecond,
		},
		Limits: quota.Limits{
			FreeTimeLimit:  envOrDefaultInt("JOT_FREE_TIME_LIMIT", quota.DefaultFreeTimeLimit),
			ProTimeLimit:   envOrDefaultInt("JOT_PRO_TIME_LIMIT", quota.DefaultProTimeLimit),
			FreeDailyLimit: envOrDefaultInt("JOT_FREE_DAILY_LIMIT", quota.DefaultFreeDailyLimit),
		},
		DataDir:      dataDir,
		ExportDir:    exportDir,
		Formats:      splitList(envOrDefault("JOT_FORMATS", "flac,wav")),
		UpgradeURL:   envOrDefault("JOT_UPGRADE_URL", DefaultUpgradeURL),
		ChargePolicy: strings.ToLower(envOrDefault("JOT_CHARGE_POLICY", "finalize")),
		Device:       strings.TrimSpace(os.Getenv("JOT_DEVICE")),
		MicGain:      min(max(envOrDefaultInt("JOT_MIC_GAIN", 1), 1), 16),
		StubAddr:     envOrDefault("JOT_STUB_ADDR", DefaultStubAddr),
	}

	if cfg.Transcribe.Timeout <= 0 {
		cfg.Transcribe.Timeout = 60 * time.Second
	}
	if cfg.Limits.FreeTimeLimit <= 0 {
		cfg.Limits.FreeTimeLimit = quota.DefaultFreeTimeLimit
	}
	if cfg.Limits.ProTimeLimit <= 0 {
		cfg.Limits.ProTimeLimit = quota.DefaultProTimeLimit
	}
	if cfg.Limits.FreeDailyLimit <= 0 {
		cfg.Limits.FreeDailyLimit = quota.DefaultFreeDailyLimit
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
