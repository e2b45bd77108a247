package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setTestDirs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("TEMP_DIR", filepath.Join(dir, "tmp"))
	t.Setenv("DB_PATH", filepath.Join(dir, "db", "test.db"))
	t.Setenv("STORAGE_DIR", filepath.Join(dir, "files"))
	return dir
}

func TestLoadConfig(t *testing.T) {
	setTestDirs(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("READ_TIMEOUT", "10s")
	t.Setenv("WRITE_TIMEOUT", "20s")
	t.Setenv("CV_POLL_INTERVAL", "500ms")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("expected 9090, got %s", cfg.ServerPort)
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Errorf("expected 10s, got %s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 20*time.Second {
		t.Errorf("expected 20s, got %s", cfg.WriteTimeout)
	}
	if cfg.Recording.PollInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", cfg.Recording.PollInterval)
	}
	if cfg.Services.LLMTemperature != 0.2 {
		t.Errorf("expected 0.2, got %v", cfg.Services.LLMTemperature)
	}
	if cfg.Recording.MaxUploadBytes != 1<<20 {
		t.Errorf("expected 1MiB, got %d", cfg.Recording.MaxUploadBytes)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Policy.Zoom.Cooldown != 5*time.Second {
		t.Errorf("expected default zoom cooldown, got %s", cfg.Policy.Zoom.Cooldown)
	}
}

func TestLoadProductionMiddleware(t *testing.T) {
	setTestDirs(t)
	t.Setenv("ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Middleware.EnableRateLimit || !cfg.Middleware.EnableTimeout {
		t.Errorf("production middleware not enabled: %+v", cfg.Middleware)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown storage driver", "STORAGE_DRIVER", "ftp"},
		{"spaces without bucket", "STORAGE_DRIVER", "spaces"},
		{"inverted duration bounds", "MIN_VIDEO_DURATION", "500"},
		{"zero poll interval", "CV_POLL_INTERVAL", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTestDirs(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadPolicyOverlay(t *testing.T) {
	dir := setTestDirs(t)
	path := filepath.Join(dir, "policy.yaml")
	body := []byte("zoom:\n  cooldown: 3s\n  max_points: 8\nbeat:\n  drop_every_measures: 8\nfps: 60\n")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLICY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p := cfg.Policy
	if p.Zoom.Cooldown != 3*time.Second || p.Zoom.MaxPoints != 8 {
		t.Errorf("zoom overlay not applied: %+v", p.Zoom)
	}
	if p.Zoom.Scale != 1.5 {
		t.Errorf("zoom scale should keep default, got %v", p.Zoom.Scale)
	}
	if p.Beat.DropEveryMeasures != 8 || p.Beat.BeatsPerMeasure != 4 {
		t.Errorf("beat overlay = %+v", p.Beat)
	}
	if p.FPS != 60 || p.MinScenes != 3 {
		t.Errorf("policy = %+v", p)
	}
}

func TestLoadPolicyErrors(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("fps: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Error("expected error for malformed yaml")
	}

	p := DefaultPolicy()
	p.MaxScenes = 1
	if err := p.Validate(); err == nil {
		t.Error("expected error for inverted scene bounds")
	}
}
