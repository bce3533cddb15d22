package config

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/environment"
)

// Validate checks the plan. It does not mutate it; empty values are left for Normalize.
func Validate(cfg *Config) error {
	switch cfg.Adapter {
	case "", AdapterPeriph, AdapterMCP2221, AdapterNanoPi, AdapterMock:
	default:
		return fmt.Errorf("unknown adapter %q: %w", cfg.Adapter, devices.ErrInvalidArgument)
	}

	if cfg.Frequency != "" {
		var f physic.Frequency
		if err := f.Set(cfg.Frequency); err != nil {
			return fmt.Errorf("frequency %q: %v: %w", cfg.Frequency, err, devices.ErrInvalidArgument)
		}
		if f < devices.MinI2CFrequency || f > devices.MaxI2CFrequency {
			return fmt.Errorf("frequency %s outside [%s, %s]: %w", f, devices.MinI2CFrequency, devices.MaxI2CFrequency, devices.ErrInvalidArgument)
		}
	}

	if cfg.Interval < 0 {
		return fmt.Errorf("interval must be >= 0: %w", devices.ErrInvalidArgument)
	}

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device required: %w", devices.ErrInvalidArgument)
	}

	names := make(map[string]int)
	addresses := make(map[uint8]string)

	for i, d := range cfg.Devices {
		name := deviceName(d, i)
		if prev, exists := names[name]; exists {
			return fmt.Errorf("device %q: name already used by device %d: %w", name, prev, devices.ErrInvalidArgument)
		}
		names[name] = i

		if err := validateDevice(d); err != nil {
			return fmt.Errorf("device %q: %w", name, err)
		}
		if cfg.Adapter == AdapterMock && d.Kind != KindBH1750 && d.Kind != KindHDC2080 {
			return fmt.Errorf("device %q: %s cannot be simulated: %w", name, d.Kind, devices.ErrInvalidArgument)
		}

		addr := d.Address
		if addr == 0 {
			addr = defaultAddress(d.Kind)
		}
		if prev, exists := addresses[addr]; exists {
			return fmt.Errorf("device %q: address %#02x collides with %q: %w", name, addr, prev, devices.ErrInvalidArgument)
		}
		addresses[addr] = name
	}

	return nil
}

// deviceName is the name a device is reported under; unnamed devices are numbered.
func deviceName(d Device, i int) string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("%s-%d", d.Kind, i)
}

func validateDevice(d Device) error {
	switch d.Kind {
	case KindBH1750:
		if d.Address != 0 && d.Address != environment.BH1750AddrLow && d.Address != environment.BH1750AddrHigh {
			return fmt.Errorf("bh1750 address must be %#02x or %#02x: %w", environment.BH1750AddrLow, environment.BH1750AddrHigh, devices.ErrInvalidArgument)
		}
		if d.Mode != "" {
			if _, err := environment.ParseBH1750Mode(d.Mode); err != nil {
				return err
			}
		}
	case KindHDC2080:
		if d.Address != 0 && d.Address != environment.HDC2080AddrLow && d.Address != environment.HDC2080AddrHigh {
			return fmt.Errorf("hdc2080 address must be %#02x or %#02x: %w", environment.HDC2080AddrLow, environment.HDC2080AddrHigh, devices.ErrInvalidArgument)
		}
	case KindPCF85063, KindSFM4100:
		if d.Address > 0x7F {
			return fmt.Errorf("address %#02x is not a 7-bit address: %w", d.Address, devices.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("unknown kind %q: %w", d.Kind, devices.ErrInvalidArgument)
	}

	if d.Kind != KindBH1750 && d.Mode != "" {
		return fmt.Errorf("mode is only supported by bh1750: %w", devices.ErrInvalidArgument)
	}
	if d.Kind != KindSFM4100 && (d.Offset != 0 || d.Scale != 0) {
		return fmt.Errorf("calibration is only supported by sfm4100: %w", devices.ErrInvalidArgument)
	}
	if d.Scale < 0 {
		return fmt.Errorf("scale must be positive: %w", devices.ErrInvalidArgument)
	}
	return nil
}
