package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/environment"
)

var lightCmd = cli.Command{
	Name:  "light",
	Usage: "BH1750 ambient light sensor",
	Subcommands: []*cli.Command{
		&lightReadCmd,
	},
}

var lightReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: withI2CFlags(
		&cli.StringFlag{
			Name:  "addr",
			Value: "l",
			Usage: "address pin level: l (0x23) or h (0x5C)",
		},
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Value:   environment.BH1750OneTimeHigh.String(),
		},
		&cli.UintFlag{
			Name:  "sensitivity",
			Value: 69,
			Usage: "measurement time register (31..254)",
		},
	),
	Action: func(c *cli.Context) error {
		mode, err := environment.ParseBH1750Mode(c.String("mode"))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		var addr byte = environment.BH1750AddrLow
		if c.String("addr") == "h" {
			addr = environment.BH1750AddrHigh
		}
		sensor, release, err := device(c, addr, func(bus devices.I2CBus) *environment.BH1750 {
			return environment.NewBH1750(bus, addr)
		})
		if err != nil {
			return err
		}
		defer release()

		ctx := c.Context
		if mt := c.Uint("sensitivity"); mt != 69 {
			if err := sensor.SetSensitivity(ctx, byte(min(mt, 255))); err != nil {
				return console.Exit(1, "error setting sensitivity: %s", console.Red(err))
			}
		}
		m, err := sensor.TriggerMeasurement(ctx, mode)
		if err != nil {
			return console.Exit(1, "error triggering measurement: %s", console.Red(err))
		}
		if err := m.Wait(ctx); err != nil {
			return console.Exit(1, "error waiting for measurement: %s", console.Red(err))
		}
		lux, err := m.Result(ctx)
		if err != nil {
			return console.Exit(1, "error getting light sensor read: %s", console.Red(err))
		}
		console.Printf("%s lux (%s)\n", console.White(lux), mode)
		return nil
	},
}
