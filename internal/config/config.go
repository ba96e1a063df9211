// Package config handles loading the workdesk config.toml file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/baiirun/workdesk/internal/deadline"
	"github.com/baiirun/workdesk/internal/model"
)

// EnvPath names the environment variable that overrides the config path.
const EnvPath = "WORKDESK_CONFIG"

// Config represents the config.toml file.
type Config struct {
	// Database is the SQLite file path. Empty means db.DefaultPath.
	Database string `toml:"database"`
	// User is the username commands act as when --as is not given.
	User     string   `toml:"user"`
	LogLevel string   `toml:"log_level"`
	SLA      SLA      `toml:"sla"`
	Deadline Deadline `toml:"deadline"`
	Sweep    Sweep    `toml:"sweep"`
}

// SLA overrides the ticket deadline for each priority.
type SLA struct {
	Critical Duration `toml:"critical"`
	High     Duration `toml:"high"`
	Medium   Duration `toml:"medium"`
	Low      Duration `toml:"low"`
}

type Deadline struct {
	// WarnFraction is the share of the SLA left at which an item turns
	// WARNING.
	WarnFraction float64 `toml:"warn_fraction"`
}

type Sweep struct {
	Interval Duration `toml:"interval"`
	// MetricsAddr is where the sweeper serves /metrics. Empty disables it.
	MetricsAddr string `toml:"metrics_addr"`
}

// Duration is a time.Duration written as a Go duration string ("4h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	table := deadline.DefaultTable()
	return &Config{
		LogLevel: "info",
		SLA: SLA{
			Critical: Duration{table[model.PriorityCritical]},
			High:     Duration{table[model.PriorityHigh]},
			Medium:   Duration{table[model.PriorityMedium]},
			Low:      Duration{table[model.PriorityLow]},
		},
		Deadline: Deadline{WarnFraction: deadline.DefaultWarnFraction},
		Sweep:    Sweep{Interval: Duration{time.Minute}},
	}
}

// DefaultPath returns ~/.workdesk/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".workdesk", "config.toml"), nil
}

// Path resolves the config file location: an explicit path wins, then
// $WORKDESK_CONFIG, then DefaultPath.
func Path(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env, nil
	}
	return DefaultPath()
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges the TOML decoder cannot.
func (c *Config) Validate() error {
	for _, p := range []struct {
		name string
		d    Duration
	}{
		{"sla.critical", c.SLA.Critical},
		{"sla.high", c.SLA.High},
		{"sla.medium", c.SLA.Medium},
		{"sla.low", c.SLA.Low},
	} {
		if p.d.Duration <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.d.Duration)
		}
	}
	if f := c.Deadline.WarnFraction; f <= 0 || f >= 1 {
		return fmt.Errorf("deadline.warn_fraction must be between 0 and 1, got %v", f)
	}
	if c.Sweep.Interval.Duration <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %s", c.Sweep.Interval.Duration)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// Calculator builds the deadline calculator described by the config.
func (c *Config) Calculator() deadline.Calculator {
	return deadline.Calculator{
		Table: deadline.Table{
			model.PriorityCritical: c.SLA.Critical.Duration,
			model.PriorityHigh:     c.SLA.High.Duration,
			model.PriorityMedium:   c.SLA.Medium.Duration,
			model.PriorityLow:      c.SLA.Low.Duration,
		},
		WarnFraction: c.Deadline.WarnFraction,
	}
}
