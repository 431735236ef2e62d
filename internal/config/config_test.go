package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.PreviewDebounce != 150*time.Millisecond || cfg.PreviewReadyDelay != 500*time.Millisecond {
		t.Errorf("preview timings = %v / %v", cfg.PreviewDebounce, cfg.PreviewReadyDelay)
	}
	if cfg.NoticeTTL != 2500*time.Millisecond {
		t.Errorf("NoticeTTL = %v", cfg.NoticeTTL)
	}
	if cfg.MinioBucket != "site-media" || cfg.MinioUseSSL {
		t.Errorf("minio = %q ssl=%v", cfg.MinioBucket, cfg.MinioUseSSL)
	}
	if cfg.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.RedisURL)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("SITECMS_PREVIEW_DEBOUNCE", "75ms")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("APP_ENV", "production")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.PreviewDebounce != 75*time.Millisecond || !cfg.MinioUseSSL {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Production() {
		t.Error("expected production")
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"SITECMS_PREVIEW_DEBOUNCE":    "0s",
		"SITECMS_PREVIEW_READY_DELAY": "-1s",
		"SITECMS_SAVE_TIMEOUT":        "soon",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Parse(); err == nil {
				t.Errorf("%s=%s accepted", key, value)
			}
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MINIO_BUCKET=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("MINIO_BUCKET")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinioBucket != "from-dotenv" {
		t.Errorf("MinioBucket = %q", cfg.MinioBucket)
	}
}
