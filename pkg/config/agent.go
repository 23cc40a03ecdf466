package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// AgentEnvPrefix prefixes the environment overrides of the client agent.
const AgentEnvPrefix = "LICENSE_AGENT"

// AgentConfig drives the client that validates one license on a schedule.
type AgentConfig struct {
	ServerURL      string        `yaml:"server_url" split_words:"true" validate:"required,url,startswith=http"`
	LicenseKey     string        `yaml:"license_key" split_words:"true" validate:"required"`
	LicenseKeyFile string        `yaml:"license_key_file" split_words:"true"`
	IntervalS      int           `yaml:"interval_s" envconfig:"INTERVAL_S" validate:"min=10"`
	RequestTimeout int           `yaml:"request_timeout_s" envconfig:"REQUEST_TIMEOUT_S" validate:"min=1"`
	Retry          RetryConfig   `yaml:"retry"`
	Logging        LoggingConfig `yaml:"logging"`
	// MachineIDPath overrides the machine identity source of the hwid.
	MachineIDPath string `yaml:"machine_id_path" split_words:"true"`
}

type RetryConfig struct {
	InitialMs  int `yaml:"initial_ms" split_words:"true" validate:"min=1"`
	MaxMs      int `yaml:"max_ms" split_words:"true" validate:"gtefield=InitialMs"`
	MaxRetries int `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" validate:"min=0"`
}

func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		ServerURL:      "http://localhost:8080",
		IntervalS:      300,
		RequestTimeout: 10,
		Retry: RetryConfig{
			InitialMs:  500,
			MaxMs:      5000,
			MaxRetries: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadAgent reads the agent config from path with LICENSE_AGENT_* overrides.
func LoadAgent(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process(AgentEnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("agent config from environment: %w", err)
	}
	if cfg.LicenseKey == "" && cfg.LicenseKeyFile != "" {
		data, err := os.ReadFile(cfg.LicenseKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read license key file: %w", err)
		}
		cfg.LicenseKey = strings.TrimSpace(string(data))
	}
	return cfg, nil
}

// Validate fills in defaults for the optional settings, then checks the
// struct tags. Errors name the YAML field, e.g. "interval_s".
func (c *AgentConfig) Validate() error {
	c.ServerURL = strings.TrimSpace(c.ServerURL)
	c.LicenseKey = strings.TrimSpace(c.LicenseKey)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10
	}
	if c.Retry.InitialMs <= 0 {
		c.Retry.InitialMs = 500
	}
	if c.Retry.MaxMs <= 0 {
		c.Retry.MaxMs = 5000
	}
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = 5
	}
	if c.Retry.MaxMs < c.Retry.InitialMs {
		c.Retry.MaxMs = c.Retry.InitialMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return validateStruct(c)
}
