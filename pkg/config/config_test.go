package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
environment: test
backend:
  type: engine
engine:
  timeframes: ["1m", "5m"]
  allowed_lateness: 2s
clickhouse:
  host: localhost
  database: candles_db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Backend.Type != "engine" {
		t.Fatalf("backend = %q, want engine", c.Backend.Type)
	}
	if len(c.Engine.Timeframes) != 2 {
		t.Fatalf("timeframes = %v", c.Engine.Timeframes)
	}
	if c.ClickHouse.Table != "candles" {
		t.Fatalf("table default = %q", c.ClickHouse.Table)
	}
	if c.Engine.DrainInterval <= 0 {
		t.Fatalf("drain interval default not applied")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	if _, err := Load(writeConfig(t, sampleYAML+"\nbogus_section:\n  x: 1\n")); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	bad := `
environment: test
backend:
  type: carrier-pigeon
engine:
  timeframes: ["1m"]
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for bad backend type")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	c, err := LoadWithEnv(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Backend.Type != "kafka" {
		t.Fatalf("backend = %q, want kafka", c.Backend.Type)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
}
