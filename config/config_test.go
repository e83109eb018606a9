package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.Address != "127.0.0.1" {
		t.Errorf("listen defaults = %s:%d", cfg.Address, cfg.Port)
	}
	if cfg.ChatServiceName != "chatService" || cfg.NotificationService != "notificationService" {
		t.Errorf("service names = %q, %q", cfg.ChatServiceName, cfg.NotificationService)
	}
	if cfg.MaxMessagesPerFile != 1000 || cfg.DefaultRoomMaxUsers != 200 {
		t.Errorf("chat defaults = %d, %d", cfg.MaxMessagesPerFile, cfg.DefaultRoomMaxUsers)
	}
	if cfg.RateLimit.Enabled || cfg.RateLimit.Burst != 20 {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatwire.yaml")
	body := []byte("port: 9000\nhistoricDir: /var/lib/chatwire\nrateLimit:\n  enabled: true\n  burst: 5\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.HistoricDir != "/var/lib/chatwire" {
		t.Errorf("historicDir = %q", cfg.HistoricDir)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Burst != 5 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	// Untouched keys keep their defaults.
	if cfg.Address != "127.0.0.1" {
		t.Errorf("address = %q", cfg.Address)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing explicit config accepted")
	}
}

func TestEnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CHATWIRE_PORT", "7777")
	t.Setenv("CHATWIRE_RATELIMIT_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7777 {
		t.Errorf("port = %d", cfg.Port)
	}
	if !cfg.RateLimit.Enabled {
		t.Error("rate limit env override ignored")
	}
}
