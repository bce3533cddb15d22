package sampling

import (
	"fmt"
	"time"
)

// Value is one physical quantity read from a device.
type Value struct {
	Quantity string  `yaml:"quantity"`
	Value    float64 `yaml:"value"`
	Unit     string  `yaml:"unit"`
}

func (v Value) String() string {
	return fmt.Sprintf("%s=%g%s", v.Quantity, v.Value, v.Unit)
}

// Reading is the outcome of sampling one device once.
type Reading struct {
	Device string    `yaml:"device"`
	Kind   string    `yaml:"kind"`
	At     time.Time `yaml:"at"`
	Values []Value   `yaml:"values,omitempty"`
	Err    error     `yaml:"-"`
}

// Source binds a probe to the device name and kind it is reported under.
type Source struct {
	Name  string
	Kind  string
	Probe Probe
}
