package config

import (
	"time"

	"github.com/mklimuk/devices/environment"
	"github.com/mklimuk/devices/flow"
	"github.com/mklimuk/devices/rtc"
)

const (
	DefaultAdapter   = AdapterPeriph
	DefaultBus       = "/dev/i2c-1"
	DefaultFrequency = "100kHz"
	DefaultInterval  = 10 * time.Second
	DefaultMode      = "one-time-l"
)

func defaultAddress(kind string) uint8 {
	switch kind {
	case KindBH1750:
		return environment.BH1750AddrLow
	case KindHDC2080:
		return environment.HDC2080AddrLow
	case KindPCF85063:
		return rtc.PCF85063Addr
	case KindSFM4100:
		return flow.SFM4100AddrAir
	}
	return 0
}

// Normalize fills in defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Adapter == "" {
		cfg.Adapter = DefaultAdapter
	}
	if cfg.Bus == "" && cfg.Adapter == AdapterPeriph {
		cfg.Bus = DefaultBus
	}
	if cfg.Frequency == "" {
		cfg.Frequency = DefaultFrequency
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Address == 0 {
			d.Address = defaultAddress(d.Kind)
		}
		d.Name = deviceName(*d, i)
		if d.Kind == KindBH1750 && d.Mode == "" {
			d.Mode = DefaultMode
		}
		if d.Kind == KindSFM4100 && d.Scale == 0 {
			d.Scale = 1
		}
	}
}
