package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_defaults(t *testing.T) {
	for _, key := range []string{"VIDEO_DIR", "PORT", "SERVER_NAME", "FFMPEG_PATH", "MAX_SESSIONS"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()
	if cfg.Port != 5058 || cfg.MaxSessions != 100 || cfg.ServerName != "Multimedia Server" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestFromEnv_overrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("VIDEO_DIR", "/srv/videos")
	cfg := FromEnv()
	if cfg.Port != 7000 || cfg.VideoDir != "/srv/videos" {
		t.Errorf("overrides = %+v", cfg)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("SOME_TIMEOUT", "250ms")
	if d := GetEnvDuration("SOME_TIMEOUT", time.Second); d != 250*time.Millisecond {
		t.Errorf("d = %v", d)
	}
	t.Setenv("SOME_TIMEOUT", "not-a-duration")
	if d := GetEnvDuration("SOME_TIMEOUT", time.Second); d != time.Second {
		t.Errorf("fallback = %v", d)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{VideoDir: t.TempDir(), Port: 5058, MaxSessions: 100}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config: %v", err)
	}

	cfg.VideoDir = filepath.Join(t.TempDir(), "missing")
	if err := cfg.Validate(); err == nil {
		t.Error("missing video dir must be fatal")
	}

	cfg.VideoDir = t.TempDir()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 must be rejected")
	}
}
