package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/DefusalEngine/internal/modules"
)

// EngineConfig is the engine.yaml file read by defusald.
type EngineConfig struct {
	Version int `yaml:"version" validate:"eq=1"`
	Network struct {
		HTTPPort int `yaml:"http_port" validate:"omitempty,min=1,max=65535"`
	} `yaml:"network"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Postgres PostgresConfig `yaml:"postgres"`
	Solver   SolverConfig   `yaml:"solver"`
	Events   struct {
		Buffer int `yaml:"buffer" validate:"omitempty,min=1"`
	} `yaml:"events"`
}

// MQTTConfig points at the device broker.
type MQTTConfig struct {
	URL         string `yaml:"url" validate:"omitempty,url"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" validate:"omitempty,excludesall=#+"`
	// HeartbeatTimeout is in seconds.
	HeartbeatTimeout int `yaml:"heartbeat_timeout" validate:"omitempty,min=1"`
}

// PostgresConfig holds the connection parts. The password is never read from
// the file; it comes from PGPASSWORD or PGPASSWORD_FILE.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" validate:"required_if=Enabled true"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
}

// SolverConfig tunes the solvers that have knobs.
type SolverConfig struct {
	Morse *modules.MorseConfig `yaml:"morse"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Defaults returns the configuration used when no file is given.
func Defaults() *EngineConfig {
	cfg := &EngineConfig{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (c *EngineConfig) applyDefaults() {
	if c.Network.HTTPPort == 0 {
		c.Network.HTTPPort = 8080
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "defusald"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "defusal"
	}
	if c.MQTT.HeartbeatTimeout == 0 {
		c.MQTT.HeartbeatTimeout = 15
	}
	if c.Postgres.Host == "" {
		c.Postgres.Host = "127.0.0.1"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "defusal"
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "defusal"
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Events.Buffer == 0 {
		c.Events.Buffer = 256
	}
}

// LoadEngineConfig reads and validates an engine.yaml file.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseEngineConfig(b)
}

// ParseEngineConfig decodes and validates engine.yaml content.
func ParseEngineConfig(b []byte) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported engine.yaml version: %d", cfg.Version)
	}

	cfg.applyDefaults()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid engine.yaml: %w", err)
	}
	if m := cfg.Solver.Morse; m != nil {
		if err := validateMorse(*m); err != nil {
			return nil, fmt.Errorf("invalid engine.yaml: %w", err)
		}
	}
	return &cfg, nil
}

func validateMorse(m modules.MorseConfig) error {
	sum := m.PresenceWeight + m.SubsequenceWeight + m.CoverageWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("morse weights must sum to 1, got %.3f", sum)
	}
	if m.Threshold <= 0 || m.Threshold > 1 {
		return fmt.Errorf("morse threshold must be in (0,1], got %.3f", m.Threshold)
	}
	if m.Margin < 0 || m.Margin >= 1 {
		return fmt.Errorf("morse margin must be in [0,1), got %.3f", m.Margin)
	}
	return nil
}

// HTTPPort returns the configured API port. DEFUSAL_HTTP_PORT overrides it.
func (c *EngineConfig) HTTPPort() int {
	if v := os.Getenv("DEFUSAL_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return c.Network.HTTPPort
}

// MorseConfig returns the configured Morse tuning or the defaults.
func (c *EngineConfig) MorseConfig() modules.MorseConfig {
	if c.Solver.Morse == nil {
		return modules.DefaultMorseConfig
	}
	return *c.Solver.Morse
}

// DSN builds a lib/pq connection string. PG* environment variables override
// the file, matching libpq.
func (p PostgresConfig) DSN() (string, error) {
	host := getEnv("PGHOST", p.Host)
	port := getEnv("PGPORT", strconv.Itoa(p.Port))
	user := getEnv("PGUSER", p.User)
	dbname := getEnv("PGDATABASE", p.Database)
	password, err := ResolveSecret("PGPASSWORD")
	if err != nil {
		return "", err
	}

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, p.SSLMode), nil
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, p.SSLMode), nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
