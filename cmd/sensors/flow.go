package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/flow"
)

var flowCmd = cli.Command{
	Name:  "flow",
	Usage: "SFM4100 mass flow meter",
	Subcommands: []*cli.Command{
		&flowReadCmd,
		&flowSerialCmd,
	},
}

var flowCalibrationFlags = []cli.Flag{
	&cli.IntFlag{Name: "offset", Usage: "raw value at zero flow"},
	&cli.Float64Flag{Name: "scale", Value: 1, Usage: "raw counts per sccm"},
}

func sfm4100(c *cli.Context) (*flow.SFM4100, closer, error) {
	offset := c.Int("offset")
	if offset < -32768 || offset > 32767 {
		return nil, nil, console.Exit(1, "offset %d does not fit 16 bits", offset)
	}
	return device(c, flow.SFM4100AddrAir, func(bus devices.I2CBus) *flow.SFM4100 {
		return flow.NewSFM4100(bus, flow.SFM4100AddrAir, flow.WithSFM4100Calibration(int16(offset), c.Float64("scale")))
	})
}

var flowReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: withI2CFlags(append(flowCalibrationFlags,
		&cli.BoolFlag{Name: "reset", Usage: "soft reset before measuring"},
	)...),
	Action: func(c *cli.Context) error {
		sensor, release, err := sfm4100(c)
		if err != nil {
			return err
		}
		defer release()

		if c.Bool("reset") {
			if err := sensor.SoftReset(c.Context); err != nil {
				return console.Exit(1, "error resetting sensor: %s", console.Red(err))
			}
		}
		m, err := sensor.TriggerNewFlow(c.Context)
		if err != nil {
			return console.Exit(1, "error triggering measurement: %s", console.Red(err))
		}
		if err := m.Wait(c.Context); err != nil {
			return console.Exit(1, "error waiting for measurement: %s", console.Red(err))
		}
		data, err := m.Result(c.Context)
		if err != nil {
			return console.Exit(1, "error reading flow: %s", console.Red(err))
		}
		console.Printf("%s sccm (raw %d)\n", console.White(data.Flow), data.Raw)
		return nil
	},
}

var flowSerialCmd = cli.Command{
	Name:  "serial",
	Flags: withI2CFlags(flowCalibrationFlags...),
	Action: func(c *cli.Context) error {
		sensor, release, err := sfm4100(c)
		if err != nil {
			return err
		}
		defer release()

		sn, err := sensor.GetSerialNumber(c.Context)
		if err != nil {
			return console.Exit(1, "error reading serial number: %s", console.Red(err))
		}
		console.Printf("%s\n", console.White(sn))
		return nil
	},
}
