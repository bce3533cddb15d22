package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/environment"
)

var tempCmd = cli.Command{
	Name:    "temperature",
	Aliases: []string{"temp"},
	Usage:   "HDC2080 temperature and humidity sensor",
	Subcommands: []*cli.Command{
		&tempReadCmd,
		&tempIDCmd,
		&tempDumpCmd,
	},
}

var hdcAddrFlag = &cli.StringFlag{
	Name:  "addr",
	Value: "l",
	Usage: "address pin level: l (0x40) or h (0x41)",
}

func hdc2080(c *cli.Context) (*environment.HDC2080, closer, error) {
	var addr byte = environment.HDC2080AddrLow
	if c.String("addr") == "h" {
		addr = environment.HDC2080AddrHigh
	}
	return device(c, addr, func(bus devices.I2CBus) *environment.HDC2080 {
		return environment.NewHDC2080(bus, addr)
	})
}

var tempReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: withI2CFlags(hdcAddrFlag,
		&cli.BoolFlag{Name: "heater", Usage: "turn the heater on before reading"},
	),
	Action: func(c *cli.Context) error {
		sensor, release, err := hdc2080(c)
		if err != nil {
			return err
		}
		defer release()

		if c.Bool("heater") {
			if err := sensor.SetHeaterMode(c.Context, true); err != nil {
				return console.Exit(1, "error enabling heater: %s", console.Red(err))
			}
			defer func() {
				if err := sensor.SetHeaterMode(c.Context, false); err != nil {
					console.Errorf("error disabling heater: %s", console.Red(err))
				}
			}()
		}
		temp, hum, err := sensor.GetTempAndHum(c.Context)
		if err != nil {
			return console.Exit(1, "error getting temperature read: %s", console.Red(err))
		}
		console.Printf("%s  %.2f °C\n%s %.2f %%RH\n", console.PictoThermometer, temp, console.PictoHumidity, hum)
		return nil
	},
}

var tempIDCmd = cli.Command{
	Name:  "id",
	Flags: withI2CFlags(hdcAddrFlag),
	Action: func(c *cli.Context) error {
		sensor, release, err := hdc2080(c)
		if err != nil {
			return err
		}
		defer release()

		manufacturer, err := sensor.GetManufacturerID(c.Context)
		if err != nil {
			return console.Exit(1, "error reading manufacturer id: %s", console.Red(err))
		}
		dev, err := sensor.GetDeviceID(c.Context)
		if err != nil {
			return console.Exit(1, "error reading device id: %s", console.Red(err))
		}
		console.Printf("manufacturer %s device %s\n", console.White(hex16(manufacturer)), console.White(hex16(dev)))
		return nil
	},
}

var tempDumpCmd = cli.Command{
	Name:  "dump",
	Usage: "print every register field",
	Flags: withI2CFlags(hdcAddrFlag),
	Action: func(c *cli.Context) error {
		sensor, release, err := hdc2080(c)
		if err != nil {
			return err
		}
		defer release()

		fields, err := sensor.Dump(c.Context)
		if err != nil {
			return console.Exit(1, "error reading registers: %s", console.Red(err))
		}
		return encodeYAML(fields)
	},
}

func encodeYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
