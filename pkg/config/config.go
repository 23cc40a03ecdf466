package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/astralux/licensing/pkg/license"
	"github.com/astralux/licensing/pkg/store"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override of the server config,
// e.g. LICENSE_AUTH_ADMIN_SECRET or LICENSE_DATABASE_DSN.
const EnvPrefix = "LICENSE"

type ServerConfig struct {
	Server    HTTPConfig      `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Licensing LicensingConfig `yaml:"licensing"`
	Sharing   SharingConfig   `yaml:"sharing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type HTTPConfig struct {
	Listen          string        `yaml:"listen" split_words:"true" validate:"required"`
	TrustedProxies  []string      `yaml:"trusted_proxies" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" split_words:"true" validate:"oneof=sqlite postgres"`
	DSN          string `yaml:"dsn" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" split_words:"true" validate:"min=0"`
	LogSQL       bool   `yaml:"log_sql" split_words:"true"`
}

type AuthConfig struct {
	// AdminSecret has no default. AdminSecretFile is read when it is empty.
	AdminSecret     string `yaml:"admin_secret" split_words:"true" validate:"required"`
	AdminSecretFile string `yaml:"admin_secret_file" split_words:"true"`
}

type LicensingConfig struct {
	KeyPrefix         string `yaml:"key_prefix" split_words:"true" validate:"required,alphanum,max=16"`
	DefaultHwidResets int    `yaml:"default_hwid_resets" split_words:"true" validate:"min=0"`
	RequireClaim      bool   `yaml:"require_claim" split_words:"true"`
	RequireHwid       bool   `yaml:"require_hwid" split_words:"true"`
	MaxBindAttempts   int    `yaml:"max_bind_attempts" split_words:"true" validate:"min=1,max=100"`
}

type SharingConfig struct {
	SuspiciousAt int `yaml:"suspicious_at" split_words:"true" validate:"gt=1"`
	HighRiskAt   int `yaml:"high_risk_at" split_words:"true" validate:"gtfield=SuspiciousAt"`
	SampleSize   int `yaml:"sample_size" split_words:"true" validate:"min=1,max=100"`
}

type LoggingConfig struct {
	Level string `yaml:"level" split_words:"true" validate:"oneof=trace debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	ServiceName string  `yaml:"service_name" json:"service_name" split_words:"true"`
	Endpoint    string  `yaml:"endpoint" json:"endpoint"`
	Insecure    bool    `yaml:"insecure" json:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" split_words:"true"`
	LogSpans    bool    `yaml:"log_spans" json:"log_spans" split_words:"true"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// DefaultServerConfig returns every setting except the admin secret.
func DefaultServerConfig() *ServerConfig {
	policy := license.DefaultPolicy()
	thresholds := license.DefaultThresholds()
	return &ServerConfig{
		Server: HTTPConfig{
			Listen:          ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			DSN:    "file:licenses.db?_busy_timeout=5000",
		},
		Licensing: LicensingConfig{
			KeyPrefix:         policy.KeyPrefix,
			DefaultHwidResets: policy.DefaultHwidResets,
			RequireClaim:      policy.RequireClaim,
			RequireHwid:       policy.RequireHwid,
			MaxBindAttempts:   policy.MaxBindAttempts,
		},
		Sharing: SharingConfig{
			SuspiciousAt: thresholds.SuspiciousAt,
			HighRiskAt:   thresholds.HighRiskAt,
			SampleSize:   thresholds.SampleSize,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Tracing: TracingConfig{
			ServiceName: "license-server",
			SampleRatio: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load layers the YAML file at path (optional) and LICENSE_* environment
// variables over the defaults. The result is not validated.
func Load(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config from environment: %w", err)
	}
	if cfg.Auth.AdminSecret == "" && cfg.Auth.AdminSecretFile != "" {
		data, err := os.ReadFile(cfg.Auth.AdminSecretFile)
		if err != nil {
			return nil, fmt.Errorf("read admin secret file: %w", err)
		}
		cfg.Auth.AdminSecret = strings.TrimSpace(string(data))
	}
	cfg.Licensing.KeyPrefix = strings.ToUpper(strings.TrimSpace(cfg.Licensing.KeyPrefix))
	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Auth.AdminSecret) == "" {
		return ErrMissingAdminSecret
	}
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

// Policy converts the licensing section for the engine.
func (c *ServerConfig) Policy() license.Policy {
	return license.Policy{
		KeyPrefix:         c.Licensing.KeyPrefix,
		DefaultHwidResets: c.Licensing.DefaultHwidResets,
		RequireClaim:      c.Licensing.RequireClaim,
		RequireHwid:       c.Licensing.RequireHwid,
		MaxBindAttempts:   c.Licensing.MaxBindAttempts,
	}
}

func (c *ServerConfig) Thresholds() license.Thresholds {
	return license.Thresholds{
		SuspiciousAt: c.Sharing.SuspiciousAt,
		HighRiskAt:   c.Sharing.HighRiskAt,
		SampleSize:   c.Sharing.SampleSize,
	}
}

func (c *ServerConfig) Store() store.Config {
	return store.Config{
		Driver:       c.Database.Driver,
		DSN:          c.Database.DSN,
		MaxOpenConns: c.Database.MaxOpenConns,
		LogSQL:       c.Database.LogSQL,
	}
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct turns the first validator failure into an *Error naming the
// YAML path of the field, e.g. "sharing.high_risk_at".
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &Error{Message: err.Error()}
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	msg := fmt.Sprintf("%s: failed %q", field, fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s: failed %q (%s)", field, fe.Tag(), fe.Param())
	}
	return &Error{Message: msg, Field: field}
}

var (
	ErrMissingAdminSecret = &Error{Message: "auth.admin_secret is required", Field: "auth.admin_secret"}
	ErrMissingServerURL   = &Error{Message: "server URL is required", Field: "server_url"}
	ErrMissingLicenseKey  = &Error{Message: "license key is required", Field: "license_key"}
	ErrInvalidInterval    = &Error{Message: "validation interval must be >= 10s", Field: "interval_s"}
)

type Error struct {
	Message string
	Field   string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error about the same field, so validator failures compare
// equal to the sentinels above.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Field != "" && t.Field == e.Field
}
