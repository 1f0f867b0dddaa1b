// Package config loads engine-level configuration, adapted from
// config/config.go's TOML Load/createDefault pattern: a single TOML file
// for host-wide settings (logging, telemetry, rate limiting), generalized
// from the chain node's ListenAddress/DataDir fields to this engine's
// service-identity and observability knobs. Per-market risk parameters are
// NOT part of this file -- they are loaded separately by LoadMarketTable (markets.go)
// since they form a much larger, per-market table better expressed as YAML.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the host-wide engine configuration.
type Config struct {
	ServiceName string `toml:"ServiceName"`
	Environment string `toml:"Environment"`

	LogFilePath string `toml:"LogFilePath"`

	TelemetryEndpoint string `toml:"TelemetryEndpoint"`
	TelemetryInsecure bool   `toml:"TelemetryInsecure"`
	TelemetryMetrics  bool   `toml:"TelemetryMetrics"`
	TelemetryTraces   bool   `toml:"TelemetryTraces"`

	OrderSubmissionRateLimitPerSecond float64 `toml:"OrderSubmissionRateLimitPerSecond"`
	OrderSubmissionRateLimitBurst     int     `toml:"OrderSubmissionRateLimitBurst"`

	MarketConfigPath string `toml:"MarketConfigPath"`
}

// Load reads cfg from path, writing a default file first if none exists,
// matching the teacher's createDefault-on-first-run convention.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault writes and returns a conservative default configuration.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ServiceName:                       "dexcore",
		Environment:                       "development",
		LogFilePath:                       "",
		TelemetryEndpoint:                 "localhost:4318",
		TelemetryInsecure:                 true,
		TelemetryMetrics:                  true,
		TelemetryTraces:                   true,
		OrderSubmissionRateLimitPerSecond: 50,
		OrderSubmissionRateLimitBurst:     100,
		MarketConfigPath:                  "markets.yaml",
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the flat precondition checks of the teacher's
// config/validate.go, adapted to this engine's fields.
func Validate(cfg *Config) error {
	if cfg.ServiceName == "" {
		return errRequiredField("ServiceName")
	}
	if cfg.OrderSubmissionRateLimitPerSecond < 0 {
		return errRequiredField("OrderSubmissionRateLimitPerSecond must be >= 0")
	}
	if cfg.OrderSubmissionRateLimitBurst < 0 {
		return errRequiredField("OrderSubmissionRateLimitBurst must be >= 0")
	}
	return nil
}

type errRequiredField string

func (e errRequiredField) Error() string {
	return "config: " + string(e) + " is required"
}
