package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"churnserve/ml"
)

const (
	EnvPort      = "CHURNSERVE_PORT"
	EnvModelPath = "CHURNSERVE_MODEL_PATH"
	EnvModelType = "CHURNSERVE_MODEL_TYPE"
	EnvLogLevel  = "CHURNSERVE_LOG_LEVEL"
)

type Config struct {
	Http struct {
		Port         int           `yaml:"port"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	Model struct {
		Type     string `yaml:"type"`
		Path     string `yaml:"path"`
		LabelKey string `yaml:"label_key"`
	} `yaml:"model"`
	Telemetry struct {
		SessionFile string `yaml:"session_file"`
		DatasetName string `yaml:"dataset_name"`
	} `yaml:"telemetry"`
	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
	} `yaml:"tracing"`
}

func Default() *Config {
	var c Config
	c.Http.Port = 8080
	c.Http.Timeout = 30 * time.Second
	c.Http.MaxBodyBytes = 1 << 20
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 28
	c.Model.Type = ml.TypeDecisionTree
	c.Model.Path = "sklearn_model.json"
	c.Model.LabelKey = "churn"
	c.Telemetry.SessionFile = "telemetry.yaml"
	c.Telemetry.DatasetName = "my_deployed_model"
	c.Tracing.ServiceName = "churnserve"
	return &c
}

// Load decodes path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Http.Port = port
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(EnvModelType); v != "" {
		c.Model.Type = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.Model.Path == "" {
		return errors.New("model path is required")
	}
	if c.Model.LabelKey == "" {
		return errors.New("model label_key is required")
	}
	if c.Telemetry.DatasetName == "" {
		return errors.New("telemetry dataset_name is required")
	}
	return nil
}
