package spi

import (
	"context"
	"fmt"

	"github.com/mklimuk/devices"
	"tinygo.org/x/drivers"
)

var _ devices.SPIConn = &TinyGoConn{}

// ChipSelect drives the chip select line of a single device. TinyGo's machine.Pin
// satisfies it through a small closure: func(high bool) { pin.Set(high) }.
type ChipSelect func(high bool)

// TinyGoConn adapts a configured drivers.SPI (e.g. machine.SPI0) and an
// active-low chip select to devices.SPIConn.
type TinyGoConn struct {
	bus drivers.SPI
	cs  ChipSelect
}

func NewTinyGoConn(bus drivers.SPI, cs ChipSelect) *TinyGoConn {
	return &TinyGoConn{bus: bus, cs: cs}
}

func (c *TinyGoConn) Tx(ctx context.Context, w, r []byte) error {
	if c.cs != nil {
		c.cs(false)
		defer c.cs(true)
	}
	if len(r) == 0 {
		r = nil
	}
	if err := c.bus.Tx(w, r); err != nil {
		return fmt.Errorf("spi transfer failed: %w", err)
	}
	return nil
}
