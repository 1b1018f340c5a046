/*
Package config loads the service configuration from TOML.

PURPOSE:
  One Config value drives the server, the store, logging, metrics, the
  realtime watcher and the business constants of both calendar kinds.
  Every field has a default; a missing file yields the defaults.

EXAMPLE (config.toml):
  [server]
  port = 8080
  cors_origins = ["http://localhost:5173"]

  [realtime]
  redis_addr = "localhost:6379"
  debounce = "250ms"

  [calendars.pld_sdv]
  limited_ratio = "0.7"
  min_lead = "48h"
  horizon_months = 6

  [calendars.vacation]
  horizon_months = 0
  fetch_months_ahead = 12
  week_start = "monday"

SEE ALSO:
  - calendar/availability.go: Policy built from CalendarConfig
  - cmd/server/main.go: Flag overrides
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-calendar/calendar"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Logs      LogsConfig      `toml:"logs"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Realtime  RealtimeConfig  `toml:"realtime"`
	Calendars CalendarsConfig `toml:"calendars"`
}

type ServerConfig struct {
	Port            int           `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	CORSOrigins     []string      `toml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogsConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or text
}

type MetricsConfig struct {
	Enabled     bool   `toml:"enabled"`
	Path        string `toml:"path"`
	ServiceName string `toml:"service_name"`
}

// RealtimeConfig configures the "something changed" signal. An empty
// RedisAddr keeps the signal in-process.
type RealtimeConfig struct {
	RedisAddr string        `toml:"redis_addr"`
	Channel   string        `toml:"channel"`
	Debounce  time.Duration `toml:"debounce"`
	// Interval forces a refresh even without signals; 0 disables it.
	Interval time.Duration `toml:"interval"`
}

type CalendarsConfig struct {
	Daily    CalendarConfig `toml:"pld_sdv"`
	Vacation CalendarConfig `toml:"vacation"`
}

// CalendarConfig holds the business constants of one calendar kind.
type CalendarConfig struct {
	LimitedRatio     decimal.Decimal `toml:"limited_ratio"`
	MinLead          time.Duration   `toml:"min_lead"`
	HorizonMonths    int             `toml:"horizon_months"`
	FetchMonthsAhead int             `toml:"fetch_months_ahead"`
	WeekStart        string          `toml:"week_start"`
	Location         string          `toml:"location"`
}

// Default returns the stock configuration.
func Default() Config {
	daily := calendar.DefaultPolicy(calendar.KindDaily)
	vacation := calendar.DefaultPolicy(calendar.KindVacation)
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Database: DatabaseConfig{Path: "./data/calendar.db"},
		Logs:     LogsConfig{Level: "info", Format: "json"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics", ServiceName: "leave-calendar"},
		Realtime: RealtimeConfig{Channel: "leave-calendar:changed", Debounce: 250 * time.Millisecond, Interval: 5 * time.Minute},
		Calendars: CalendarsConfig{
			Daily: CalendarConfig{
				LimitedRatio:  daily.LimitedRatio,
				MinLead:       daily.Window.MinLead,
				HorizonMonths: daily.Window.HorizonMonths,
				WeekStart:     "monday",
				Location:      "UTC",
			},
			Vacation: CalendarConfig{
				LimitedRatio:     vacation.LimitedRatio,
				MinLead:          vacation.Window.MinLead,
				HorizonMonths:    vacation.Window.HorizonMonths,
				FetchMonthsAhead: 12,
				WeekStart:        "monday",
				Location:         "UTC",
			},
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the calendar cannot run with.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d", ErrInvalid, c.Server.Port)
	}
	if _, err := parseLevel(c.Logs.Level); err != nil {
		return err
	}
	if c.Logs.Format != "json" && c.Logs.Format != "text" {
		return fmt.Errorf("%w: logs.format %q", ErrInvalid, c.Logs.Format)
	}
	if c.Realtime.Debounce < 0 || c.Realtime.Interval < 0 {
		return fmt.Errorf("%w: realtime durations must not be negative", ErrInvalid)
	}
	if err := c.Calendars.Daily.validate("calendars.pld_sdv"); err != nil {
		return err
	}
	return c.Calendars.Vacation.validate("calendars.vacation")
}

func (c CalendarConfig) validate(section string) error {
	if !c.LimitedRatio.IsPositive() || c.LimitedRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s.limited_ratio %s not in (0, 1]", ErrInvalid, section, c.LimitedRatio)
	}
	if c.MinLead < 0 {
		return fmt.Errorf("%w: %s.min_lead is negative", ErrInvalid, section)
	}
	if c.HorizonMonths < 0 || c.FetchMonthsAhead < 0 {
		return fmt.Errorf("%w: %s month counts must not be negative", ErrInvalid, section)
	}
	if _, err := parseWeekday(c.WeekStart); err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("%w: %s.location: %v", ErrInvalid, section, err)
	}
	return nil
}

// Options converts the section into calendar options for kind.
func (c CalendarConfig) Options(kind calendar.Kind) (calendar.Options, error) {
	first, err := parseWeekday(c.WeekStart)
	if err != nil {
		return calendar.Options{}, err
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return calendar.Options{}, fmt.Errorf("%w: location: %v", ErrInvalid, err)
	}
	return calendar.Options{
		Policy: calendar.Policy{
			Kind:         kind,
			LimitedRatio: c.LimitedRatio,
			Window: calendar.Window{
				MinLead:       c.MinLead,
				HorizonMonths: c.HorizonMonths,
				Location:      loc,
			},
			WeekStart: first,
		},
		FetchMonthsAhead: c.FetchMonthsAhead,
	}, nil
}

// For returns the section of kind.
func (c CalendarsConfig) For(kind calendar.Kind) CalendarConfig {
	if kind == calendar.KindVacation {
		return c.Vacation
	}
	return c.Daily
}

func parseWeekday(s string) (time.Weekday, error) {
	if s == "" {
		return time.Monday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalid, s)
}
