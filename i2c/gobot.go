package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/devices"
	gobotio "gobot.io/x/gobot/v2/drivers/i2c"
)

var _ devices.I2CBus = &GobotBus{}

// GobotBus adapts a gobot I2C connector (e.g. the NanoPi adaptor) to devices.I2CBus.
// Connections are opened lazily, one per device address, and kept until Close.
type GobotBus struct {
	mx        sync.Mutex
	connector gobotio.Connector
	bus       int
	conns     map[byte]gobotio.Connection
}

func NewGobotBus(connector gobotio.Connector, bus int) *GobotBus {
	return &GobotBus{
		connector: connector,
		bus:       bus,
		conns:     make(map[byte]gobotio.Connection),
	}
}

// NewDefaultGobotBus uses the connector's default bus number.
func NewDefaultGobotBus(connector gobotio.Connector) *GobotBus {
	return NewGobotBus(connector, connector.DefaultI2cBus())
}

func (b *GobotBus) conn(address byte) (gobotio.Connection, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if c, ok := b.conns[address]; ok {
		return c, nil
	}
	c, err := b.connector.GetI2cConnection(int(address), b.bus)
	if err != nil {
		return nil, fmt.Errorf("could not open connection to %#02x on bus %d: %w", address, b.bus, err)
	}
	b.conns[address] = c
	return c, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %#02x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %#02x: got %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	c, err := b.conn(address)
	if err != nil {
		return err
	}
	n, err := c.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to %#02x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short write to %#02x: wrote %d of %d bytes", address, n, len(buffer))
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close closes every connection opened so far.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close connection to %#02x: %w", addr, err))
		}
		delete(b.conns, addr)
	}
	return errors.Join(errs...)
}
