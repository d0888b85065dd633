package wrtc

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from WRTC_* environment
// variables.
type Config struct {
	Engine       string `env:"WRTC_ENGINE" envDefault:"pion"`
	LibPath      string `env:"WRTC_LIB_PATH"`
	SDKLibPath   string `env:"WRTC_SDK_LIB_PATH"`
	SDPSemantics string `env:"WRTC_SDP_SEMANTICS" envDefault:"unified-plan"`
	PortMin      uint16 `env:"WRTC_PORT_MIN"`
	PortMax      uint16 `env:"WRTC_PORT_MAX"`
	LogLevel     string `env:"WRTC_LOG_LEVEL" envDefault:"info"`
	MetricsAddr  string `env:"WRTC_METRICS_ADDR"`
}

// LoadConfig parses and validates the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if _, err := ParseBackend(c.Engine); err != nil {
		return fmt.Errorf("WRTC_ENGINE: %w", err)
	}
	if _, err := ParseSDPSemantics(c.SDPSemantics); err != nil {
		return fmt.Errorf("WRTC_SDP_SEMANTICS: %w", err)
	}
	if c.PortMax != 0 && c.PortMin > c.PortMax {
		return fmt.Errorf("%w: WRTC_PORT_MIN %d > WRTC_PORT_MAX %d", ErrTypeMismatch, c.PortMin, c.PortMax)
	}
	return nil
}

// Configuration returns the default per-connection configuration implied by
// the process configuration.
func (c Config) Configuration() Configuration {
	semantics, err := ParseSDPSemantics(c.SDPSemantics)
	if err != nil {
		semantics = SDPSemanticsUnifiedPlan
	}
	return Configuration{
		SDPSemantics: semantics,
		PortRange:    PortRange{Min: c.PortMin, Max: c.PortMax},
	}
}
