package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
smtp:
  host: smtp.example.com
  username: sender@example.com
  password: secret
imap:
  host: imap.example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.SMTP.Port != 465 {
		t.Errorf("expected default SMTP port 465, got %d", cfg.SMTP.Port)
	}
	if cfg.IMAP.Port != 993 {
		t.Errorf("expected default IMAP port 993, got %d", cfg.IMAP.Port)
	}
	if cfg.Scheduler.TickInterval != time.Second {
		t.Errorf("expected default tick interval 1s, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.SendDelay != 5*time.Second {
		t.Errorf("expected default send delay 5s, got %v", cfg.Scheduler.SendDelay)
	}
	if cfg.Scheduler.MaintenanceInterval != 30*time.Minute {
		t.Errorf("expected default maintenance interval 30m, got %v", cfg.Scheduler.MaintenanceInterval)
	}
	if cfg.Tracker.BaseURL != "http://localhost:5000" {
		t.Errorf("unexpected tracker base URL %q", cfg.Tracker.BaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
smtp:
  host: smtp.example.com
  port: 587
  username: sender@example.com
imap:
  host: imap.example.com
scheduler:
  tick_interval: 250ms
  send_delay: 1s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.SMTP.Port != 587 {
		t.Errorf("expected SMTP port 587, got %d", cfg.SMTP.Port)
	}
	if cfg.Scheduler.TickInterval != 250*time.Millisecond {
		t.Errorf("expected tick interval 250ms, got %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadMissingSMTPHost(t *testing.T) {
	path := writeConfig(t, `
imap:
  host: imap.example.com
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing smtp.host")
	}
}

func TestLoadDKIMIncomplete(t *testing.T) {
	path := writeConfig(t, `
smtp:
  host: smtp.example.com
  username: sender@example.com
imap:
  host: imap.example.com
dkim:
  enabled: true
  domain: example.com
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for incomplete dkim config")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
