package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-calendar/calendar"
	"github.com/warp/leave-calendar/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 48*time.Hour, cfg.Calendars.Daily.MinLead)
	assert.Equal(t, 6, cfg.Calendars.Daily.HorizonMonths)
	assert.Equal(t, "0.7", cfg.Calendars.Daily.LimitedRatio.String())
	assert.Zero(t, cfg.Calendars.Vacation.HorizonMonths)
	assert.Equal(t, 12, cfg.Calendars.Vacation.FetchMonthsAhead)
	assert.Equal(t, 5*time.Minute, cfg.Realtime.Interval, "fallback refresh runs without a config file")
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[realtime]
redis_addr = "localhost:6379"
debounce = "1s"

[calendars.pld_sdv]
limited_ratio = "0.8"
min_lead = "24h"

[calendars.vacation]
limited_ratio = 0.5
week_start = "sunday"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Realtime.RedisAddr)
	assert.Equal(t, time.Second, cfg.Realtime.Debounce)
	assert.Equal(t, "0.8", cfg.Calendars.Daily.LimitedRatio.String())
	assert.Equal(t, 24*time.Hour, cfg.Calendars.Daily.MinLead)
	assert.Equal(t, 6, cfg.Calendars.Daily.HorizonMonths, "untouched keys keep defaults")
	assert.Equal(t, "0.5", cfg.Calendars.Vacation.LimitedRatio.String(), "bare floats decode too")
	assert.Equal(t, "sunday", cfg.Calendars.Vacation.WeekStart)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[server]
prot = 9090
`)

	_, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "server.prot")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"ratio above one", func(c *config.Config) { c.Calendars.Daily.LimitedRatio = decimal.RequireFromString("1.4") }},
		{"zero ratio", func(c *config.Config) { c.Calendars.Vacation.LimitedRatio = decimal.Zero }},
		{"negative lead", func(c *config.Config) { c.Calendars.Daily.MinLead = -time.Hour }},
		{"negative horizon", func(c *config.Config) { c.Calendars.Daily.HorizonMonths = -1 }},
		{"unknown weekday", func(c *config.Config) { c.Calendars.Vacation.WeekStart = "caturday" }},
		{"unknown location", func(c *config.Config) { c.Calendars.Daily.Location = "Nowhere/Special" }},
		{"bad log level", func(c *config.Config) { c.Logs.Level = "loud" }},
		{"bad log format", func(c *config.Config) { c.Logs.Format = "xml" }},
		{"negative debounce", func(c *config.Config) { c.Realtime.Debounce = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
		})
	}
}

func TestCalendarConfig_Options(t *testing.T) {
	cfg := config.Default()
	cfg.Calendars.Vacation.WeekStart = "Sunday"

	opts, err := cfg.Calendars.For(calendar.KindVacation).Options(calendar.KindVacation)
	require.NoError(t, err)

	assert.Equal(t, calendar.KindVacation, opts.Policy.Kind)
	assert.Equal(t, time.Sunday, opts.Policy.WeekStart)
	assert.Equal(t, 12, opts.FetchMonthsAhead)
	assert.Zero(t, opts.Policy.Window.HorizonMonths)
	assert.Equal(t, time.UTC, opts.Policy.Window.Location)

	daily, err := cfg.Calendars.For(calendar.KindDaily).Options(calendar.KindDaily)
	require.NoError(t, err)
	assert.Equal(t, 6, daily.Policy.Window.HorizonMonths)
}

func TestNewLogger_AddsServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger, err := config.LogsConfig{Level: "info", Format: "json"}.NewLogger(&buf, "leave-calendar")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("refreshed", "kind", "pld_sdv")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"service":"leave-calendar"`)
	assert.Contains(t, out, `"kind":"pld_sdv"`)
}
