package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Bravia    BraviaConfig    `json:"bravia"`
	Power     PowerConfig     `json:"power"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Energy    EnergyConfig    `json:"energy,omitempty"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ServerConfig controls the HTTP API listener. Prefer binding to
// localhost; there is no request authentication.
type ServerConfig struct {
	Addr         string `json:"addr,omitempty"` // default: "127.0.0.1:8090"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// BraviaConfig controls the panel transports. All durations are Go
// duration strings.
type BraviaConfig struct {
	Timeout      string `json:"timeout,omitempty"`        // per network call, default "5s"
	MaxAttempts  int    `json:"max_attempts,omitempty"`   // per transport, default 3
	RetryBase    string `json:"retry_base,omitempty"`     // default "1s"
	SimpleIPPort int    `json:"simple_ip_port,omitempty"` // default 20060
}

type PowerConfig struct {
	Concurrency int `json:"concurrency,omitempty"`  // bulk worker count, default 4
	RatePerSec  int `json:"rate_per_sec,omitempty"` // 0 disables rate limiting
}

type SchedulerConfig struct {
	// Timezone for cron evaluation, e.g. "Europe/Berlin". Empty means
	// the host's local time.
	Timezone     string `json:"timezone,omitempty"`
	DrainTimeout string `json:"drain_timeout,omitempty"` // default "30s"
}

// EnergyConfig sets the panel power model used by the savings report.
type EnergyConfig struct {
	OnWatts      float64 `json:"on_watts,omitempty"`
	StandbyWatts float64 `json:"standby_watts,omitempty"`
	CostPerKWh   float64 `json:"cost_per_kwh,omitempty"`
	CO2PerKWh    float64 `json:"co2_per_kwh,omitempty"`
}

type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// Validate checks constraints that the strict decoder cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"database.busy_timeout", c.Database.BusyTimeout},
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"bravia.timeout", c.Bravia.Timeout},
		{"bravia.retry_base", c.Bravia.RetryBase},
		{"scheduler.drain_timeout", c.Scheduler.DrainTimeout},
	} {
		if err := checkDuration(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Bravia.SimpleIPPort < 0 || c.Bravia.SimpleIPPort > 65535 {
		return fmt.Errorf("bravia.simple_ip_port: %d out of range", c.Bravia.SimpleIPPort)
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if c.Notify.Enabled && strings.TrimSpace(c.Notify.Token) == "" {
		return errors.New("notify.token is required when notify.enabled")
	}
	return nil
}

// checkDuration vets one duration field. Empty means unset and is fine;
// negative values are rejected.
func checkDuration(path, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return fmt.Errorf("%s: duration must be >= 0", path)
	}
	return nil
}

// Duration converts a duration field that Validate has already vetted.
// Unset (or zero) yields def.
func Duration(raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
