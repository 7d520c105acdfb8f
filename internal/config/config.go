package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	IMAP      IMAPConfig      `yaml:"imap"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Templates TemplateConfig  `yaml:"templates"`
	Regions   RegionsConfig   `yaml:"regions"`
	DKIM      DKIMConfig      `yaml:"dkim"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// APIConfig contains control API server settings. An empty APIKey disables
// authentication.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	APIKey     string `yaml:"api_key"`
}

// DatabaseConfig contains the SQLite store settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SMTPConfig contains outbound mail settings
type SMTPConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SenderName    string `yaml:"sender_name"`
	Subject       string `yaml:"subject"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify"`
}

// IMAPConfig contains inbound mailbox settings
type IMAPConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SkipTLSVerify bool   `yaml:"skip_tls_verify"`
}

// TrackerConfig contains the tracking/counter service settings. BaseURL is
// where the dispatch engine and reply correlator report events; ListenAddr
// and CounterPath are used by the `tracker` subcommand.
type TrackerConfig struct {
	BaseURL     string        `yaml:"base_url"`
	ListenAddr  string        `yaml:"listen_addr"`
	CounterPath string        `yaml:"counter_path"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SchedulerConfig contains polling and job intervals
type SchedulerConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	ReplyScanInterval   time.Duration `yaml:"reply_scan_interval"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	SendDelay           time.Duration `yaml:"send_delay"`
}

// TemplateConfig contains the template directory settings
type TemplateConfig struct {
	Dir string `yaml:"dir"`
}

// RegionsConfig points at the static region-to-countries mapping file
type RegionsConfig struct {
	Path string `yaml:"path"`
}

// DKIMConfig contains DKIM signing settings for outbound mail
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/outreach.db"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 465
	}
	if c.IMAP.Port == 0 {
		c.IMAP.Port = 993
	}
	if c.SMTP.Subject == "" {
		c.SMTP.Subject = "Product Offering"
	}
	if c.Tracker.BaseURL == "" {
		c.Tracker.BaseURL = "http://localhost:5000"
	}
	if c.Tracker.ListenAddr == "" {
		c.Tracker.ListenAddr = ":5000"
	}
	if c.Tracker.CounterPath == "" {
		c.Tracker.CounterPath = "data/counters.db"
	}
	if c.Tracker.Timeout == 0 {
		c.Tracker.Timeout = 10 * time.Second
	}
	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = time.Second
	}
	if c.Scheduler.ReplyScanInterval == 0 {
		c.Scheduler.ReplyScanInterval = time.Hour
	}
	if c.Scheduler.MaintenanceInterval == 0 {
		c.Scheduler.MaintenanceInterval = 30 * time.Minute
	}
	if c.Scheduler.SendDelay == 0 {
		c.Scheduler.SendDelay = 5 * time.Second
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = "templates"
	}
	if c.Regions.Path == "" {
		c.Regions.Path = "config/regions.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if c.SMTP.Username == "" {
		return fmt.Errorf("smtp.username is required")
	}
	if c.DKIM.Enabled {
		if c.DKIM.Domain == "" || c.DKIM.Selector == "" || c.DKIM.KeyFile == "" {
			return fmt.Errorf("dkim requires domain, selector and key_file when enabled")
		}
	}
	return nil
}
