package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/adapter"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/i2c"
)

const (
	adapterMCP2221 = "mcp2221"
	adapterPeriph  = "periph"
	adapterNanoPi  = "nanopi"
)

var i2cFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Value:   adapterMCP2221,
		Usage:   "bus adapter: mcp2221, periph or nanopi",
	},
	&cli.StringFlag{
		Name:    "bus",
		Aliases: []string{"b"},
		Value:   "/dev/i2c-1",
		Usage:   "i2c bus used by the periph adapter (nanopi: bus number)",
	},
	&cli.StringFlag{
		Name:  "frequency",
		Value: "100kHz",
		Usage: "i2c clock",
	},
}

func withI2CFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, i2cFlags...), flags...)
}

// closer releases whatever openI2C opened.
type closer func()

// openI2C opens the bus selected by the adapter flags.
func openI2C(adapterName, bus string) (devices.I2CBus, closer, error) {
	switch adapterName {
	case adapterMCP2221:
		return adapter.NewMCP2221(), func() {}, nil
	case adapterPeriph:
		b, err := i2c.NewGenericBus(bus)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
		}, nil
	case adapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		b := i2c.NewDefaultGobotBus(npi)
		if n, err := strconv.Atoi(bus); err == nil {
			b = i2c.NewGobotBus(npi, n)
		}
		return b, func() {
			if err := b.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
			_ = npi.I2cBusAdaptor.Finalize()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q: %w", adapterName, devices.ErrInvalidArgument)
}

func i2cParams(bus, frequency string, addr byte) (devices.TransportParams, error) {
	params := devices.DefaultI2CParams(bus, addr)
	f, err := parseFrequency(frequency)
	if err != nil {
		return params, err
	}
	params.Frequency = f
	return params, nil
}

// initializer is implemented by every driver.
type initializer interface {
	Init(ctx context.Context, params devices.TransportParams) error
}

// device opens the bus from the command flags, builds a driver with newDevice
// and initializes it for addr.
func device[T initializer](c *cli.Context, addr byte, newDevice func(devices.I2CBus) T) (T, closer, error) {
	var zero T
	bus, release, err := openI2C(c.String("adapter"), c.String("bus"))
	if err != nil {
		return zero, nil, console.Exit(1, "adapter initialization error: %s", console.Red(err))
	}
	params, err := i2cParams(c.String("bus"), c.String("frequency"), addr)
	if err != nil {
		release()
		return zero, nil, console.Exit(1, "%s", console.Red(err))
	}
	dev := newDevice(bus)
	if err := dev.Init(c.Context, params); err != nil {
		release()
		return zero, nil, console.Exit(1, "device initialization error: %s", console.Red(err))
	}
	return dev, release, nil
}

func parseFrequency(s string) (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, fmt.Errorf("frequency %q: %v: %w", s, err, devices.ErrInvalidArgument)
	}
	return f, nil
}

func hex16(v uint16) string {
	return fmt.Sprintf("%#04x", v)
}
