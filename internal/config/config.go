package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BrowserMode selects how Chrome is launched for a session.
type BrowserMode string

const (
	// ModeLocal starts a Chrome process on this host.
	ModeLocal BrowserMode = "local"
	// ModeContainer runs Chrome inside a Docker container and attaches
	// over its DevTools endpoint.
	ModeContainer BrowserMode = "container"
)

// Config is the process configuration. Required fields missing from the
// environment are a fatal startup error, never a per-request error.
type Config struct {
	// Meeting client credentials.
	ZoomEmail    string
	ZoomPassword string

	// Remote store.
	GCSBucket       string
	GCSProject      string
	CredentialsFile string // GOOGLE_APPLICATION_CREDENTIALS, optional with ADC

	// HTTP.
	Port int

	// MediaBaseURL is the URL prefix the browser page uses to fetch staged
	// media. Defaults to this server's own /media mount on localhost.
	MediaBaseURL string

	// StagingDir holds downloaded and transcoded files. It is also the
	// directory the origin server serves from.
	StagingDir string

	// ProfileDir holds persisted browser profiles.
	ProfileDir string

	Headless    bool
	BrowserMode BrowserMode
	ChromeImage string

	FFmpegBin  string
	FFprobeBin string

	// MaxSessions bounds concurrently live browser sessions.
	MaxSessions int

	// SessionTimeout is the default lifetime of a session in seconds.
	SessionTimeout int
}

// Load reads configuration from the environment. godotenv, if used, must
// have populated the environment before this runs.
func Load() (*Config, error) {
	cfg := &Config{
		ZoomEmail:       os.Getenv("ZOOM_EMAIL"),
		ZoomPassword:    os.Getenv("ZOOM_PASSWORD"),
		GCSBucket:       os.Getenv("GCS_BUCKET_NAME"),
		GCSProject:      os.Getenv("GCS_PROJECT_ID"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		StagingDir:      envOr("STAGING_DIR", filepath.Join(os.TempDir(), "zoom-meeting-bot", "media")),
		ProfileDir:      envOr("PROFILE_DIR", filepath.Join(os.TempDir(), "zoom-meeting-bot", "profiles")),
		ChromeImage:     envOr("CHROME_IMAGE", "browserless/chrome:latest"),
		FFmpegBin:       envOr("FFMPEG_BIN", "ffmpeg"),
		FFprobeBin:      envOr("FFPROBE_BIN", "ffprobe"),
	}

	var missing []string
	for _, v := range []struct{ name, val string }{
		{"ZOOM_EMAIL", cfg.ZoomEmail},
		{"ZOOM_PASSWORD", cfg.ZoomPassword},
		{"GCS_BUCKET_NAME", cfg.GCSBucket},
		{"GCS_PROJECT_ID", cfg.GCSProject},
	} {
		if v.val == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.Port, err = envInt("API_PORT", 3000); err != nil {
		return nil, err
	}
	if cfg.MaxSessions, err = envInt("MAX_SESSIONS", 4); err != nil {
		return nil, err
	}
	if cfg.SessionTimeout, err = envInt("SESSION_TIMEOUT", 3600); err != nil {
		return nil, err
	}

	cfg.Headless = envBool("HEADLESS", true)

	switch mode := BrowserMode(envOr("BROWSER_MODE", string(ModeLocal))); mode {
	case ModeLocal, ModeContainer:
		cfg.BrowserMode = mode
	default:
		return nil, fmt.Errorf("invalid BROWSER_MODE %q (want %q or %q)", mode, ModeLocal, ModeContainer)
	}

	cfg.MediaBaseURL = envOr("MEDIA_BASE_URL", fmt.Sprintf("http://localhost:%d/media", cfg.Port))
	cfg.MediaBaseURL = strings.TrimRight(cfg.MediaBaseURL, "/")

	return cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
