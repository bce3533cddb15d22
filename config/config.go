// Package config holds the sampling plan run by the sensors CLI.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Adapters a plan can reach devices through.
const (
	AdapterPeriph  = "periph"
	AdapterMCP2221 = "mcp2221"
	AdapterNanoPi  = "nanopi"
	// AdapterMock simulates light and climate sensors without a bus.
	AdapterMock = "mock"
)

// Device kinds that can be sampled.
const (
	KindBH1750   = "bh1750"
	KindHDC2080  = "hdc2080"
	KindPCF85063 = "pcf85063"
	KindSFM4100  = "sfm4100"
)

type Config struct {
	// Adapter is one of periph, mcp2221, nanopi or mock.
	Adapter string `yaml:"adapter"`
	// Bus names the I2C bus for the periph adapter (e.g. /dev/i2c-1 or "1").
	Bus string `yaml:"bus"`
	// Frequency is the I2C clock, e.g. 100kHz.
	Frequency string        `yaml:"frequency"`
	Interval  time.Duration `yaml:"interval"`
	Devices   []Device      `yaml:"devices"`
}

type Device struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	Address uint8  `yaml:"address"`

	// BH1750 measurement mode (one-time-l, continuous-h, ...)
	Mode string `yaml:"mode,omitempty"`

	// SFM4100 calibration
	Offset int16   `yaml:"offset,omitempty"`
	Scale  float64 `yaml:"scale,omitempty"`
}

// Load reads, validates and normalizes the plan at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a plan. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}

// BusFrequency returns the parsed bus clock. The plan must be validated.
func (c *Config) BusFrequency() physic.Frequency {
	var f physic.Frequency
	if err := f.Set(c.Frequency); err != nil {
		return 0
	}
	return f
}
