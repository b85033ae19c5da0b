package telemetry

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	WriterLocal   = "local"
	WriterSQLite  = "sqlite"
	WriterBackend = "backend"
)

const (
	EnvAPIKey    = "TELEMETRY_API_KEY"
	EnvOrgID     = "TELEMETRY_ORG_ID"
	EnvDatasetID = "TELEMETRY_DEFAULT_DATASET_ID"
	EnvEndpoint  = "TELEMETRY_API_ENDPOINT"
)

type WriterConfig struct {
	Type       string `yaml:"type"`
	OutputPath string `yaml:"output_path"`
}

// BackendConfig is read from the environment, never from the session file.
type BackendConfig struct {
	APIKey    string
	OrgID     string
	DatasetID string
	Endpoint  string
	Timeout   time.Duration
}

type SessionConfig struct {
	Project       string         `yaml:"project"`
	Pipeline      string         `yaml:"pipeline"`
	Verbose       bool           `yaml:"verbose"`
	Rotation      time.Duration  `yaml:"rotation"`
	FrequentItems int            `yaml:"frequent_items"`
	Writers       []WriterConfig `yaml:"writers"`

	Backend BackendConfig `yaml:"-"`
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Project:       "churnserve",
		Pipeline:      "default-pipeline",
		FrequentItems: 32,
		Writers: []WriterConfig{
			{Type: WriterLocal, OutputPath: "telemetry-output"},
		},
		Backend: BackendConfig{Timeout: 10 * time.Second},
	}
}

// LoadSessionConfig reads a session file. A missing file yields the
// defaults so the service can start without one.
func LoadSessionConfig(path string) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	if path == "" {
		return cfg, nil
	}
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return cfg, fmt.Errorf("parse session config %s: %w", path, err)
	}
	if cfg.FrequentItems <= 0 {
		cfg.FrequentItems = DefaultSessionConfig().FrequentItems
	}
	return cfg, cfg.Validate()
}

// ApplyEnv fills backend credentials from the process environment.
func (c *SessionConfig) ApplyEnv() {
	c.Backend.APIKey = os.Getenv(EnvAPIKey)
	c.Backend.OrgID = os.Getenv(EnvOrgID)
	c.Backend.DatasetID = os.Getenv(EnvDatasetID)
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" {
		c.Backend.Endpoint = endpoint
	}
}

func (c SessionConfig) Validate() error {
	if c.Rotation < 0 {
		return errors.New("rotation must not be negative")
	}
	for i, w := range c.Writers {
		switch w.Type {
		case WriterLocal, WriterSQLite:
			if w.OutputPath == "" {
				return fmt.Errorf("writer %d (%s): output_path required", i, w.Type)
			}
		case WriterBackend:
		default:
			return fmt.Errorf("writer %d: unknown type %q", i, w.Type)
		}
	}
	return nil
}
