package i2c

import (
	"context"
	"fmt"

	"github.com/mklimuk/devices"
	"tinygo.org/x/drivers"
)

var _ devices.I2CTxBus = &TinyGoBus{}

// TinyGoBus runs the drivers on top of a TinyGo machine.I2C (or anything
// else implementing drivers.I2C). The bus must be configured by the caller:
// TinyGo configures speed in machine.I2CConfig, not at runtime.
type TinyGoBus struct {
	bus drivers.I2C
}

func NewTinyGoBus(bus drivers.I2C) *TinyGoBus {
	return &TinyGoBus{bus: bus}
}

func (b *TinyGoBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := b.bus.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from %#02x: %w", address, err)
	}
	return nil
}

func (b *TinyGoBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to %#02x: %w", address, err)
	}
	return nil
}

func (b *TinyGoBus) Tx(ctx context.Context, address byte, w, r []byte) error {
	if err := b.bus.Tx(uint16(address), w, r); err != nil {
		return fmt.Errorf("could not transfer with %#02x: %w", address, err)
	}
	return nil
}

func (b *TinyGoBus) Release(ctx context.Context) error {
	return nil
}
