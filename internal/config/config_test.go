package config

import (
	"strings"
	"testing"
)

func TestParseEngineConfig_Defaults(t *testing.T) {
	cfg, err := ParseEngineConfig([]byte("version: 1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Network.HTTPPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Network.HTTPPort)
	}
	if cfg.MQTT.TopicPrefix != "defusal" {
		t.Errorf("expected default prefix, got %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.Events.Buffer != 256 {
		t.Errorf("expected default buffer 256, got %d", cfg.Events.Buffer)
	}
	if got := cfg.MorseConfig().Threshold; got != 0.8 {
		t.Errorf("expected default morse threshold 0.8, got %v", got)
	}
}

func TestParseEngineConfig_Full(t *testing.T) {
	raw := `
version: 1
network:
  http_port: 9090
mqtt:
  url: tcp://broker:1883
  topic_prefix: lab
postgres:
  enabled: true
  host: db
  sslmode: require
solver:
  morse:
    presence_weight: 0.5
    subsequence_weight: 0.3
    coverage_weight: 0.2
    threshold: 0.7
    margin: 0.05
`
	cfg, err := ParseEngineConfig([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Network.HTTPPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Network.HTTPPort)
	}
	if cfg.MQTT.URL != "tcp://broker:1883" {
		t.Errorf("unexpected mqtt url %q", cfg.MQTT.URL)
	}
	if got := cfg.MorseConfig().Threshold; got != 0.7 {
		t.Errorf("expected morse threshold 0.7, got %v", got)
	}
	if !cfg.Postgres.Enabled || cfg.Postgres.Port != 5432 {
		t.Errorf("unexpected postgres config: %+v", cfg.Postgres)
	}
}

func TestParseEngineConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"wrong version", "version: 2\n", "unsupported engine.yaml version"},
		{"port out of range", "version: 1\nnetwork:\n  http_port: 70000\n", "HTTPPort"},
		{"wildcard prefix", "version: 1\nmqtt:\n  topic_prefix: a/#\n", "TopicPrefix"},
		{"bad sslmode", "version: 1\npostgres:\n  sslmode: maybe\n", "SSLMode"},
		{"morse weights", "version: 1\nsolver:\n  morse:\n    presence_weight: 0.9\n    subsequence_weight: 0.9\n    threshold: 0.8\n", "weights must sum to 1"},
		{"morse threshold", "version: 1\nsolver:\n  morse:\n    presence_weight: 1\n    threshold: 1.5\n", "threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEngineConfig([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestHTTPPortOverride(t *testing.T) {
	cfg := Defaults()
	t.Setenv("DEFUSAL_HTTP_PORT", "7000")
	if got := cfg.HTTPPort(); got != 7000 {
		t.Errorf("expected 7000, got %d", got)
	}
	t.Setenv("DEFUSAL_HTTP_PORT", "nope")
	if got := cfg.HTTPPort(); got != 8080 {
		t.Errorf("expected fallback 8080, got %d", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	for _, k := range []string{"PGHOST", "PGPORT", "PGUSER", "PGDATABASE", "PGPASSWORD", "PGPASSWORD_FILE"} {
		t.Setenv(k, "")
	}
	cfg := Defaults()

	dsn, err := cfg.Postgres.DSN()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "host=127.0.0.1 port=5432 user=defusal dbname=defusal sslmode=disable"
	if dsn != want {
		t.Errorf("expected %q, got %q", want, dsn)
	}

	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "s3cret")
	dsn, err = cfg.Postgres.DSN()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(dsn, "host=db.internal") || !strings.Contains(dsn, "password=s3cret") {
		t.Errorf("env overrides not applied: %q", dsn)
	}
}
