package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable named
// by key, or fallback if the variable is unset, empty, or not parseable.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// Config holds the server's environment-provided settings.
type Config struct {
	VideoDir    string // VIDEO_DIR: storage directory for artifacts
	Port        int    // PORT: session protocol listen port
	ServerName  string // SERVER_NAME: identity used in the greeting
	FFmpegPath  string // FFMPEG_PATH: external transcoder binary
	FFprobePath string // FFPROBE_PATH: external prober binary
	MaxSessions int    // MAX_SESSIONS: concurrent session ceiling
	MetricsPort int    // METRICS_PORT: admin /metrics listen port
	LogLevel    string // LOG_LEVEL: debug, info, warn, error
	LogFormat   string // LOG_FORMAT: json or text
}

// FromEnv builds a Config from environment variables with documented
// fallback defaults.
func FromEnv() Config {
	return Config{
		VideoDir:    GetEnv("VIDEO_DIR", "videos"),
		Port:        GetEnvInt("PORT", 5058),
		ServerName:  GetEnv("SERVER_NAME", "Multimedia Server"),
		FFmpegPath:  GetEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: GetEnv("FFPROBE_PATH", "ffprobe"),
		MaxSessions: GetEnvInt("MAX_SESSIONS", 100),
		MetricsPort: GetEnvInt("METRICS_PORT", 9090),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		LogFormat:   GetEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks that the configuration is usable at startup. A missing or
// non-directory VideoDir is fatal.
func (c Config) Validate() error {
	info, err := os.Stat(c.VideoDir)
	if err != nil {
		return fmt.Errorf("video directory %s: %w", c.VideoDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("video directory %s: not a directory", c.VideoDir)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", c.Port)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive, got %d", c.MaxSessions)
	}
	return nil
}
