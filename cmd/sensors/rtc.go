package main

import (
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/rtc"
)

var rtcCmd = cli.Command{
	Name:  "rtc",
	Usage: "PCF85063 real time clock",
	Subcommands: []*cli.Command{
		&rtcGetCmd,
		&rtcSetCmd,
		&rtcResetCmd,
		&rtcDumpCmd,
	},
}

func pcf85063(c *cli.Context) (*rtc.PCF85063, closer, error) {
	return device(c, rtc.PCF85063Addr, func(bus devices.I2CBus) *rtc.PCF85063 {
		return rtc.NewPCF85063(bus)
	})
}

var rtcGetCmd = cli.Command{
	Name:  "get",
	Flags: withI2CFlags(),
	Action: func(c *cli.Context) error {
		clock, release, err := pcf85063(c)
		if err != nil {
			return err
		}
		defer release()

		t, err := clock.GetDateTime(c.Context)
		if errors.Is(err, devices.ErrNotReady) {
			console.Warnf("oscillator stopped since the time was last set, run rtc set")
			return nil
		}
		if err != nil {
			return console.Exit(1, "error reading clock: %s", console.Red(err))
		}
		console.PInfof(console.PictoCalendar, "%s (drift %s)", console.White(t.Format(time.RFC3339)), time.Until(t).Round(time.Second))
		return nil
	},
}

var rtcSetCmd = cli.Command{
	Name:      "set",
	Usage:     "set the clock to the given RFC3339 time, or to the host time",
	ArgsUsage: "[time]",
	Flags: withI2CFlags(
		&cli.BoolFlag{Name: "12h", Usage: "keep hours in 12 hour format"},
	),
	Action: func(c *cli.Context) error {
		t := time.Now().UTC()
		if c.NArg() > 0 {
			var err error
			t, err = time.Parse(time.RFC3339, c.Args().First())
			if err != nil {
				return console.Exit(1, "could not parse time: %s", console.Red(err))
			}
		}
		clock, release, err := pcf85063(c)
		if err != nil {
			return err
		}
		defer release()

		mode := rtc.PCF85063Mode24Hour
		if c.Bool("12h") {
			mode = rtc.PCF85063Mode12Hour
		}
		if err := clock.Set12_24HourMode(c.Context, mode); err != nil {
			return console.Exit(1, "error setting hour mode: %s", console.Red(err))
		}
		if err := clock.SetDateTime(c.Context, t); err != nil {
			return console.Exit(1, "error setting clock: %s", console.Red(err))
		}
		console.PInfof(console.PictoCalendar, "clock set to %s (%s)", console.White(t.UTC().Format(time.RFC3339)), mode)
		return nil
	},
}

var rtcResetCmd = cli.Command{
	Name:  "reset",
	Usage: "software reset, clears the time",
	Flags: withI2CFlags(
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	),
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			ok, err := console.Confirm("reset the clock?")
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			if !ok {
				return nil
			}
		}
		clock, release, err := pcf85063(c)
		if err != nil {
			return err
		}
		defer release()

		if err := clock.SoftwareReset(c.Context); err != nil {
			return console.Exit(1, "error resetting clock: %s", console.Red(err))
		}
		console.Info("clock reset")
		return nil
	},
}

var rtcDumpCmd = cli.Command{
	Name:  "dump",
	Usage: "print every register field",
	Flags: withI2CFlags(),
	Action: func(c *cli.Context) error {
		clock, release, err := pcf85063(c)
		if err != nil {
			return err
		}
		defer release()

		fields, err := clock.Dump(c.Context)
		if err != nil {
			return console.Exit(1, "error reading registers: %s", console.Red(err))
		}
		return encodeYAML(fields)
	},
}
