package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func noEnv(string) (string, bool) { return "", false }

func TestParseYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", `
transport:
  platform: Telegram
  telegram:
    token: abc
logging:
  level: debug
  console: true
reminders:
  default_timezone: Asia/Makassar
`)
	m := NewConfigManager(p)
	m.lookupEnv = noEnv
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Platform != "telegram" {
		t.Fatalf("platform = %q", cfg.Transport.Platform)
	}
	if cfg.Reminders.DefaultTimezone != "Asia/Makassar" {
		t.Fatalf("tz = %q", cfg.Reminders.DefaultTimezone)
	}
	if !slices.Equal(cfg.Reminders.ThresholdsHours, []int{72, 24, 5}) {
		t.Fatalf("thresholds = %v", cfg.Reminders.ThresholdsHours)
	}
	if cfg.Reminders.Tolerance != "90s" || cfg.Reminders.SweepInterval != "1m" {
		t.Fatalf("durations = %+v", cfg.Reminders)
	}
	if !cfg.WeeklySummary.IsEnabled() || cfg.WeeklySummary.TopN != 5 {
		t.Fatalf("weekly = %+v", cfg.WeeklySummary)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" || cfg.Storage.Path == "" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit")
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, path, body string
	}{
		{"unknown field", "c.json", `{"transport":{"platform":"telegram"},"bogus":1}`},
		{"trailing data", "c.json", `{} {}`},
		{"bad yaml", "c.yaml", "transport: [\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tc.path, []byte(tc.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults ok", func(*Config) {}, ""},
		{"unknown tz", func(c *Config) { c.Reminders.DefaultTimezone = "Mars/Base" }, "default_timezone"},
		{"ascending thresholds", func(c *Config) { c.Reminders.ThresholdsHours = []int{5, 24} }, "descending"},
		{"zero threshold", func(c *Config) { c.Reminders.ThresholdsHours = []int{24, 0} }, "must be > 0"},
		{"interval too wide", func(c *Config) { c.Reminders.SweepInterval = "5m" }, "twice the tolerance"},
		{"bad duration", func(c *Config) { c.Reminders.ExpireAfter = "soon" }, "expire_after"},
		{"bad platform", func(c *Config) { c.Transport.Platform = "irc" }, "platform"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"exposed observability", func(c *Config) {
			c.Observability = &ObservabilityConfig{Enabled: true, Addr: "0.0.0.0:9091"}
		}, "observability"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		EnvTelegramToken: "from-env",
		EnvDefaultTZ:     "UTC",
		EnvStoragePath:   "/tmp/x.db",
		EnvDiscordToken:  "  ",
	}
	cfg := &Config{}
	cfg.Transport.Discord.Token = "file"
	applyEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	if cfg.Transport.Telegram.Token != "from-env" || cfg.Reminders.DefaultTimezone != "UTC" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage == nil || cfg.Storage.Path != "/tmp/x.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Transport.Discord.Token != "file" {
		t.Fatal("blank env value must not override")
	}
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	t.Parallel()
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
}

func TestSummarizeConfigChangeHidesTokens(t *testing.T) {
	t.Parallel()
	a := &Config{}
	applyDefaults(a)
	a.Transport.Telegram.Token = "one"

	b := *a
	b.Transport.Telegram.Token = "two"
	if changed, _ := SummarizeConfigChange(a, &b); len(changed) != 0 {
		t.Fatalf("token rotation reported as %v", changed)
	}

	b.Reminders.SweepInterval = "30s"
	b.Storage = &StorageConfig{Driver: "file", Path: "x.json"}
	changed, attrs := SummarizeConfigChange(a, &b)
	if !slices.Equal(changed, []string{"reminders", "storage"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 || !NeedsRestart(changed) {
		t.Fatalf("attrs=%d restart=%v", len(attrs), NeedsRestart(changed))
	}
}

func TestSubscribeKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("expected newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"reminders":{"default_timezone":"UTC"}}`)
	m := NewConfigManager(p)
	m.lookupEnv = noEnv
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Reminders.DefaultTimezone != "Asia/Jayapura" {
				t.Fatalf("tz = %q", cfg.Reminders.DefaultTimezone)
			}
			return
		case <-tick.C:
			// Rewrite until the watcher is up and notices.
			_ = os.WriteFile(p, []byte(`{"reminders":{"default_timezone":"Asia/Jayapura"}}`), 0o600)
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}
