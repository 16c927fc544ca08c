package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ldpm/pkg/logx"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
logging:
  level: debug
  console: true
database:
  path: /var/lib/ldpm/ldpm.db
  busy_timeout: 5s
server:
  addr: 127.0.0.1:8090
bravia:
  timeout: 3s
  max_attempts: 3
  retry_base: 1s
  simple_ip_port: 20060
power:
  concurrency: 4
scheduler:
  timezone: UTC
  drain_timeout: 30s
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", validYAML), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Database.Path != "/var/lib/ldpm/ldpm.db" {
		t.Fatalf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Bravia.SimpleIPPort != 20060 || cfg.Bravia.MaxAttempts != 3 {
		t.Fatalf("unexpected bravia config: %+v", cfg.Bravia)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.json",
		`{"database": {"path": "ldpm.db"}, "server": {"addr": ":8090"}}`), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8090" {
		t.Fatalf("server.addr = %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", `
database:
  path: ldpm.db
displays:
  - 10.0.0.1
`), logx.Nop())
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing database path", yaml: `server: {addr: ":8090"}`},
		{name: "bad duration", yaml: "database: {path: x.db}\nbravia: {timeout: fast}"},
		{name: "bad timezone", yaml: "database: {path: x.db}\nscheduler: {timezone: Mars/Olympus}"},
		{name: "port out of range", yaml: "database: {path: x.db}\nbravia: {simple_ip_port: 99999}"},
		{name: "notify enabled without token", yaml: "database: {path: x.db}\nnotify: {enabled: true}"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(writeFile(t, "config.yaml", tt.yaml), logx.Nop())
			if _, err := m.Load(); err == nil {
				t.Fatalf("Load accepted invalid config:\n%s", tt.yaml)
			}
		})
	}
}

func TestCheckDuration(t *testing.T) {
	t.Parallel()
	if err := checkDuration("x", "  "); err != nil {
		t.Fatalf("blank: %v", err)
	}
	if err := checkDuration("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if err := checkDuration("x", "soon"); err == nil {
		t.Fatal("garbage duration accepted")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()
	if got := Duration("2s", time.Second); got != 2*time.Second {
		t.Fatalf("Duration(2s) = %v", got)
	}
	if got := Duration("", time.Second); got != time.Second {
		t.Fatalf("Duration(unset) = %v, want default", got)
	}
	if got := Duration("0s", time.Second); got != time.Second {
		t.Fatalf("Duration(0s) = %v, want default", got)
	}
}

func TestChangedSections(t *testing.T) {
	t.Parallel()
	a := &Config{}
	b := &Config{}
	if got := ChangedSections(a, b); len(got) != 0 {
		t.Fatalf("ChangedSections(equal) = %v", got)
	}
	b.Logging.Level = "debug"
	b.Notify.Enabled = true
	got := ChangedSections(a, b)
	if len(got) != 2 || got[0] != "logging" || got[1] != "notify" {
		t.Fatalf("ChangedSections = %v, want [logging notify]", got)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", validYAML)
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// An on-disk change with different content must reach subscribers.
	if err := os.WriteFile(path, []byte(validYAML+"energy:\n  on_watts: 120\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload()

	select {
	case cfg := <-ch:
		if cfg.Energy.OnWatts != 120 {
			t.Fatalf("subscriber got stale config: %+v", cfg.Energy)
		}
	default:
		t.Fatal("subscriber did not receive the new config")
	}

	// Reloading identical content publishes nothing.
	m.reload()
	select {
	case <-ch:
		t.Fatal("unchanged config must not be republished")
	default:
	}
}
