package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"statementsync/internal/booking"
	"statementsync/internal/directory"
	"statementsync/internal/export"
	"statementsync/pkg/configutil"

	"dario.cat/mergo"
)

// FileName is the config file looked up in the working directory, a
// statementsync.local.json5 next to it overrides its values.
const FileName = "statementsync.json5"

const (
	EnvUsername = "BOOKING_USERNAME"
	EnvPassword = "BOOKING_PASSWORD"
)

const DefaultFromDate = "01/01/2025"

// DefaultThrottleMs applies when throttle_ms is left out, 0 disables the pause.
const DefaultThrottleMs = 500

// mobileDownloads is the shared download directory of Android devices.
const mobileDownloads = "/storage/emulated/0/Download"

type Config struct {
	BaseUrl            string            `json:"base_url"`
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	FromDate           string            `json:"from_date"`
	ToDate             string            `json:"to_date"`
	OutputDir          string            `json:"output_dir"`
	SessionFile        string            `json:"session_file"`
	CustomersCacheFile string            `json:"customers_cache_file"`
	ThrottleMs         *int              `json:"throttle_ms"`
	RequestsPerSecond  float64           `json:"requests_per_second"`
	CloudflareBypass   bool              `json:"cloudflare_bypass"`
	Mail               export.MailConfig `json:"mail"`
}

// Throttle is the pause between two clients, negative when throttling is disabled.
func (c Config) Throttle() time.Duration {
	if c.ThrottleMs == nil {
		return DefaultThrottleMs * time.Millisecond
	}
	if *c.ThrottleMs == 0 {
		return -1
	}
	return time.Duration(*c.ThrottleMs) * time.Millisecond
}

// Defaults returns the values used for every field a config file leaves out.
func Defaults() Config {
	return Config{
		BaseUrl:            booking.DefaultBaseUrl,
		FromDate:           DefaultFromDate,
		OutputDir:          DefaultOutputDir(runtime.GOOS, userHome(), dirExists),
		SessionFile:        "session_cookies.bin",
		CustomersCacheFile: directory.DefaultCacheFile,
		RequestsPerSecond:  2,
	}
}

// DefaultOutputDir is ~/Downloads, or the shared download directory when
// running on an Android device.
func DefaultOutputDir(goos, home string, exists func(string) bool) string {
	if (goos == "linux" || goos == "android") && exists(mobileDownloads) {
		return mobileDownloads
	}
	return filepath.Join(home, "Downloads")
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Load reads the config file at path (a missing file is not an error), fills
// missing credentials from the environment and every other missing field
// from Defaults.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	return Complete(cfg, os.LookupEnv)
}

// Complete fills the unset fields of cfg, lookup resolves environment variables.
func Complete(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	if cfg.Username == "" {
		cfg.Username, _ = lookup(EnvUsername)
	}
	if cfg.Password == "" {
		cfg.Password, _ = lookup(EnvPassword)
	}

	err := mergo.Merge(&cfg, Defaults())
	if err != nil {
		return Config{}, fmt.Errorf("apply defaults: %w", err)
	}
	if cfg.ThrottleMs != nil && *cfg.ThrottleMs < 0 {
		return Config{}, fmt.Errorf("throttle_ms must not be negative, got %d", *cfg.ThrottleMs)
	}
	return cfg, nil
}
