// Package config loads dockbench settings from dockbench.yaml, DOCKBENCH_*
// environment variables and built-in defaults, in decreasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"dockbench/internal/container"
	"dockbench/internal/runner"
	"dockbench/internal/runtime"
)

const (
	configName = "dockbench"
	envPrefix  = "DOCKBENCH"
)

type Config struct {
	LogLevel string        `mapstructure:"logLevel" validate:"oneof=debug info warn error"`
	Docker   DockerConfig  `mapstructure:"docker"`
	Store    StoreConfig   `mapstructure:"store"`
	Runner   RunnerConfig  `mapstructure:"runner"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	Export   ExportConfig  `mapstructure:"export"`
}

// DockerConfig selects the docker daemon. Empty values defer to DOCKER_HOST
// and friends.
type DockerConfig struct {
	Host       string        `mapstructure:"host"`
	APIVersion string        `mapstructure:"apiVersion"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	TLS        TLSConfig     `mapstructure:"tls"`
}

type TLSConfig struct {
	CACert     string `mapstructure:"caCert" validate:"required_with=ClientCert ClientKey"`
	ClientCert string `mapstructure:"clientCert" validate:"required_with=CACert ClientKey"`
	ClientKey  string `mapstructure:"clientKey" validate:"required_with=CACert ClientCert"`
}

type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type RunnerConfig struct {
	StepTimeout      time.Duration `mapstructure:"stepTimeout" validate:"gt=0"`
	ReadinessTimeout time.Duration `mapstructure:"readinessTimeout" validate:"gt=0"`
	StopTimeout      time.Duration `mapstructure:"stopTimeout" validate:"gt=0"`
	SummaryRow       bool          `mapstructure:"summaryRow"`
}

type MetricsConfig struct {
	SampleInterval time.Duration `mapstructure:"sampleInterval" validate:"gt=0"`
}

// ExportConfig points at an S3 compatible bucket for result exports.
type ExportConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accessKey"`
	SecretKey string `mapstructure:"secretKey"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"useSSL"`
	Bucket    string `mapstructure:"bucket" validate:"required_with=Endpoint"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	readiness := container.DefaultOptions()

	v.SetDefault("logLevel", "info")
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.apiVersion", "")
	v.SetDefault("docker.timeout", "0s")
	v.SetDefault("docker.tls.caCert", "")
	v.SetDefault("docker.tls.clientCert", "")
	v.SetDefault("docker.tls.clientKey", "")
	v.SetDefault("store.path", "dockbench.db")
	v.SetDefault("runner.stepTimeout", runner.DefaultStepTimeout.String())
	v.SetDefault("runner.readinessTimeout", readiness.ReadinessTimeout.String())
	v.SetDefault("runner.stopTimeout", readiness.StopTimeout.String())
	v.SetDefault("runner.summaryRow", false)
	v.SetDefault("metrics.sampleInterval", "250ms")
	v.SetDefault("export.endpoint", "")
	v.SetDefault("export.accessKey", "")
	v.SetDefault("export.secretKey", "")
	v.SetDefault("export.region", "")
	v.SetDefault("export.useSSL", true)
	v.SetDefault("export.bucket", "")
}

// Load reads the configuration. An explicit path must exist; otherwise
// dockbench.yaml is looked up in the working directory and then in
// $HOME/.config/dockbench, and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file - malformed YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validation failed: %w", err)
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value %v)", strings.TrimPrefix(e.Namespace(), "Config."), e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// HostConfig returns the docker daemon settings.
func (c *Config) HostConfig() runtime.HostConfig {
	return runtime.HostConfig{
		Host:       c.Docker.Host,
		APIVersion: c.Docker.APIVersion,
		Timeout:    c.Docker.Timeout,
		CACert:     c.Docker.TLS.CACert,
		ClientCert: c.Docker.TLS.ClientCert,
		ClientKey:  c.Docker.TLS.ClientKey,
	}
}

// ContainerOptions returns the readiness and teardown settings.
func (c *Config) ContainerOptions() container.Options {
	opts := container.DefaultOptions()
	opts.ReadinessTimeout = c.Runner.ReadinessTimeout
	opts.StopTimeout = c.Runner.StopTimeout
	return opts
}

// RunnerOptions returns the step execution settings.
func (c *Config) RunnerOptions() runner.Options {
	return runner.Options{
		StepTimeout: c.Runner.StepTimeout,
		SummaryRow:  c.Runner.SummaryRow,
	}
}

// ExportEnabled reports whether an object storage endpoint is configured.
func (c *Config) ExportEnabled() bool {
	return c.Export.Endpoint != ""
}
