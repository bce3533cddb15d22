package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	periphspi "periph.io/x/conn/v3/spi"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/radio"
	"github.com/mklimuk/devices/spi"
)

var radioCmd = cli.Command{
	Name:  "radio",
	Usage: "SX128X 2.4 GHz transceiver",
	Subcommands: []*cli.Command{
		&radioStatusCmd,
		&radioFreqCmd,
	},
}

var radioFlags = []cli.Flag{
	&cli.StringFlag{Name: "port", Value: "SPI0.0", Usage: "host spi port"},
	&cli.StringFlag{Name: "frequency", Value: "8MHz", Usage: "spi clock"},
	&cli.StringFlag{Name: "busy", Usage: "gpio connected to the BUSY line (e.g. GPIO24)"},
}

func sx128x(c *cli.Context) (*radio.SX128X, closer, error) {
	f, err := parseFrequency(c.String("frequency"))
	if err != nil {
		return nil, nil, console.Exit(1, "%s", console.Red(err))
	}
	port, err := spi.Open(c.String("port"), periphspi.Mode0)
	if err != nil {
		return nil, nil, console.Exit(1, "spi initialization error: %s", console.Red(err))
	}
	release := func() {
		if err := port.Close(); err != nil {
			console.Errorf("error closing port: %s", console.Red(err))
		}
	}
	var opts []radio.SX128XOpt
	if name := c.String("busy"); name != "" {
		pin := gpioreg.ByName(name)
		if pin == nil {
			release()
			return nil, nil, console.Exit(1, "unknown gpio %q", name)
		}
		if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			release()
			return nil, nil, console.Exit(1, "could not configure %s: %s", name, console.Red(err))
		}
		opts = append(opts, radio.WithSX128XBusy(func() bool {
			return pin.Read() == gpio.High
		}))
	}
	r := radio.NewSX128X(port, opts...)
	params := devices.TransportParams{Kind: devices.BusSPI, Bus: c.String("port"), Frequency: f}
	if err := r.Init(c.Context, params); err != nil {
		release()
		return nil, nil, console.Exit(1, "device initialization error: %s", console.Red(err))
	}
	return r, release, nil
}

var radioStatusCmd = cli.Command{
	Name:  "status",
	Flags: radioFlags,
	Action: func(c *cli.Context) error {
		r, release, err := sx128x(c)
		if err != nil {
			return err
		}
		defer release()

		status, err := r.GetStatus(c.Context)
		if err != nil {
			return console.Exit(1, "error reading status: %s", console.Red(err))
		}
		packet, err := r.GetPacketType(c.Context)
		if err != nil {
			return console.Exit(1, "error reading packet type: %s", console.Red(err))
		}
		irq, err := r.GetIrqStatus(c.Context)
		if err != nil {
			return console.Exit(1, "error reading irq status: %s", console.Red(err))
		}
		rssi, err := r.GetRssiInst(c.Context)
		if err != nil {
			return console.Exit(1, "error reading rssi: %s", console.Red(err))
		}
		console.Printf("status %s\npacket type %d\nirq %s\nrssi %s dBm\n",
			console.White(status), packet, console.White(hex16(irq)), console.White(rssi))
		return nil
	},
}

var radioFreqCmd = cli.Command{
	Name:      "freq",
	Usage:     "tune the synthesizer and enter FS mode",
	ArgsUsage: "frequency (e.g. 2.44GHz)",
	Flags:     radioFlags,
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		f, err := parseFrequency(c.Args().First())
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		steps, err := radio.FrequencySteps(f)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		r, release, err := sx128x(c)
		if err != nil {
			return err
		}
		defer release()

		if err := r.SetStandby(c.Context, radio.SX128XStandbyRCOscillator); err != nil {
			return console.Exit(1, "error entering standby: %s", console.Red(err))
		}
		if err := r.SetRfFrequency(c.Context, f); err != nil {
			return console.Exit(1, "error setting frequency: %s", console.Red(err))
		}
		if err := r.SetFs(c.Context); err != nil {
			return console.Exit(1, "error entering FS mode: %s", console.Red(err))
		}
		console.Printf("tuned to %s (%s steps)\n", console.White(radio.FrequencyOf(steps)), fmt.Sprintf("%#06x", steps))
		return nil
	},
}
