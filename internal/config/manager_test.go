package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const yamlConfig = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: /tmp/sw.db
  busy_timeout: 5s
  outcome_retention: 720h
youtube:
  api_keys: [key-a, key-b]
  interval: 5m
  feed_probe: true
twitch:
  client_id: cid
  client_secret: secret
  interval: 3m
notify:
  username: watcher
  rate_per_sec: 5
  timeout: 10s
plans:
  default: standard
  tenants:
    acme: premium
`

func TestParseYAML(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", yamlConfig))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging: %+v", cfg.Logging)
	}
	if len(cfg.YouTube.APIKeys) != 2 || cfg.YouTube.APIKeys[1] != "key-b" {
		t.Fatalf("api keys: %+v", cfg.YouTube.APIKeys)
	}
	if got := cfg.YouTubeInterval(0); got != 5*time.Minute {
		t.Fatalf("youtube interval = %v", got)
	}
	if got := cfg.TwitchInterval(time.Minute); got != 3*time.Minute {
		t.Fatalf("twitch interval = %v", got)
	}
	if cfg.Plans.Tenants["acme"] != "premium" || cfg.Plans.Default != "standard" {
		t.Fatalf("plans: %+v", cfg.Plans)
	}
}

func TestParseJSON(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{"logging":{"level":"info"},"storage":{"driver":"memory"}}`))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", "loggign:\n  level: info\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("misspelled section must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{"logging":{"level":"info"}}{"extra":1}`))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("trailing document must be rejected")
	}
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad driver", "storage:\n  driver: oracle\n", "storage.driver"},
		{"bad duration", "youtube:\n  interval: five minutes\n", "youtube.interval"},
		{"negative rate", "notify:\n  rate_per_sec: -1\n", "rate_per_sec"},
		{"half twitch creds", "twitch:\n  client_id: cid\n", "client_secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(writeFile(t, "config.yaml", tc.body))
			_, err := m.Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", yamlConfig))
	if m.Get() != nil {
		t.Fatalf("Get must be nil before Load")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get must return the committed config")
	}
}

func TestSubscribePublish(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", yamlConfig))
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	cfg := &Config{}
	m.Commit(cfg)
	m.publish(cfg)

	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("wrong config delivered")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber never notified")
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", yamlConfig))
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first, second := &Config{}, &Config{Plans: PlansConfig{Default: "premium"}}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-ch:
		if got != second {
			t.Fatalf("full buffer must keep the newest config")
		}
	default:
		t.Fatalf("expected a buffered config")
	}
}

func TestHashConfigStable(t *testing.T) {
	a := &Config{Logging: LoggingConfig{Level: "info"}}
	b := &Config{Logging: LoggingConfig{Level: "info"}}
	c := &Config{Logging: LoggingConfig{Level: "debug"}}
	if hashConfig(a) != hashConfig(b) {
		t.Fatalf("equal configs must hash equal")
	}
	if hashConfig(a) == hashConfig(c) {
		t.Fatalf("different configs should hash differently")
	}
}

func TestSummarizeChangeRedactsSecrets(t *testing.T) {
	oldCfg := &Config{}
	newCfg := &Config{
		Twitch:  TwitchConfig{ClientID: "cid", ClientSecret: "hunter2"},
		YouTube: YouTubeConfig{APIKeys: []string{"k1"}},
	}
	sections, fields := SummarizeChange(oldCfg, newCfg)
	joined := strings.Join(sections, ",")
	if !strings.Contains(joined, "twitch") || !strings.Contains(joined, "youtube") {
		t.Fatalf("changed sections missing: %v", sections)
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Info()
	for _, f := range fields {
		f(ev)
	}
	ev.Send()
	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "k1") {
		t.Fatalf("secret leaked into change summary: %s", out)
	}
}
