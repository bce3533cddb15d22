package devices

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

const (
	MinI2CFrequency = 10 * physic.KiloHertz
	MaxI2CFrequency = 3400 * physic.KiloHertz
	MaxSPIFrequency = 18 * physic.MegaHertz
)

type BusKind int

const (
	BusI2C BusKind = iota
	BusSPI
)

func (k BusKind) String() string {
	switch k {
	case BusI2C:
		return "i2c"
	case BusSPI:
		return "spi"
	default:
		return fmt.Sprintf("bus(%d)", int(k))
	}
}

// TransportParams identifies a bus instance and the target device on it.
// It is a plain value; drivers never keep a pointer to it.
type TransportParams struct {
	Kind BusKind
	// Bus is the bus instance handle, e.g. "/dev/i2c-1", "I2C1" or "SPI0.0".
	Bus string
	// Pins are informational on hosts where the kernel owns the pinmux.
	SDA, SCL        string
	MOSI, MISO, SCK string
	Address         byte
	Frequency       physic.Frequency
	PeripheralClock physic.Frequency
}

// DefaultI2CParams returns standard mode (100kHz) parameters for the given device.
func DefaultI2CParams(bus string, address byte) TransportParams {
	return TransportParams{Kind: BusI2C, Bus: bus, Address: address, Frequency: 100 * physic.KiloHertz}
}

// Validate checks the bus clock against the supported range.
func (p TransportParams) Validate() error {
	switch p.Kind {
	case BusI2C:
		if p.Frequency < MinI2CFrequency || p.Frequency > MaxI2CFrequency {
			return fmt.Errorf("i2c frequency %s outside [%s, %s]: %w", p.Frequency, MinI2CFrequency, MaxI2CFrequency, ErrInvalidArgument)
		}
		if p.Address == 0 || p.Address > 0x7F {
			return fmt.Errorf("i2c address %#x is not a valid 7-bit address: %w", p.Address, ErrInvalidArgument)
		}
	case BusSPI:
		if p.Frequency <= 0 || p.Frequency > MaxSPIFrequency {
			return fmt.Errorf("spi frequency %s outside (0, %s]: %w", p.Frequency, MaxSPIFrequency, ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("unknown bus kind %s: %w", p.Kind, ErrInvalidArgument)
	}
	if p.PeripheralClock != 0 && p.PeripheralClock < p.Frequency {
		return fmt.Errorf("peripheral clock %s below bus clock %s: %w", p.PeripheralClock, p.Frequency, ErrInvalidArgument)
	}
	return nil
}

// InitBus validates params and hands them to bus when it can be configured.
func InitBus(ctx context.Context, bus any, params TransportParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	in, ok := bus.(Initializer)
	if !ok {
		return nil
	}
	if err := in.Init(ctx, params); err != nil {
		return BusError(err)
	}
	return nil
}

// CheckAddress fails when params target a device other than addr.
// A zero params address means "use the driver's own".
func CheckAddress(params TransportParams, addr byte) error {
	if params.Kind == BusI2C && params.Address != 0 && params.Address != addr {
		return fmt.Errorf("params address %#02x does not match device address %#02x: %w", params.Address, addr, ErrInvalidArgument)
	}
	return nil
}
