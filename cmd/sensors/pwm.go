package main

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/pwm"
)

var pwmCmd = cli.Command{
	Name:  "pwm",
	Usage: "PCA9685 16 channel PWM controller",
	Subcommands: []*cli.Command{
		&pwmFreqCmd,
		&pwmDutyCmd,
		&pwmResetCmd,
		&pwmDumpCmd,
	},
}

var pwmAddrFlag = &cli.UintFlag{
	Name:  "addr",
	Value: pwm.PCA9685Addr,
	Usage: "7-bit controller address",
}

func pca9685(c *cli.Context) (*pwm.PCA9685, closer, error) {
	addr := byte(c.Uint("addr"))
	return device(c, addr, func(bus devices.I2CBus) *pwm.PCA9685 {
		return pwm.NewPCA9685(bus, addr)
	})
}

var pwmFreqCmd = cli.Command{
	Name:      "freq",
	Usage:     "get or set the PWM frequency",
	ArgsUsage: "[frequency, e.g. 50Hz]",
	Flags:     withI2CFlags(pwmAddrFlag),
	Action: func(c *cli.Context) error {
		ctrl, release, err := pca9685(c)
		if err != nil {
			return err
		}
		defer release()

		if c.NArg() > 0 {
			f, err := parseFrequency(c.Args().First())
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			if err := ctrl.SetPWMFrequency(c.Context, f); err != nil {
				return console.Exit(1, "error setting frequency: %s", console.Red(err))
			}
		}
		f, err := ctrl.GetPWMFrequency(c.Context)
		if err != nil {
			return console.Exit(1, "error reading frequency: %s", console.Red(err))
		}
		console.Printf("%s\n", console.White(f))
		return nil
	},
}

var pwmDutyCmd = cli.Command{
	Name:      "duty",
	Usage:     "get or set the duty cycle of a channel (0..4095, 4096 is full on)",
	ArgsUsage: "channel [duty]",
	Flags:     withI2CFlags(pwmAddrFlag),
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return console.Exit(1, "expected at least 1 argument, got %d", c.NArg())
		}
		ch, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not parse channel: %s", console.Red(err))
		}
		ctrl, release, err := pca9685(c)
		if err != nil {
			return err
		}
		defer release()

		if c.NArg() > 1 {
			duty, err := strconv.ParseUint(c.Args().Get(1), 10, 16)
			if err != nil {
				return console.Exit(1, "could not parse duty: %s", console.Red(err))
			}
			if duty == pwm.PCA9685Full {
				err = ctrl.SetFullOn(c.Context, ch)
			} else {
				err = ctrl.SetDuty(c.Context, ch, uint16(duty))
			}
			if err != nil {
				return console.Exit(1, "error setting duty: %s", console.Red(err))
			}
		}
		channel, err := ctrl.GetChannel(c.Context, ch)
		if err != nil {
			return console.Exit(1, "error reading channel: %s", console.Red(err))
		}
		console.Printf("channel %d: on %d off %d duty %s\n", ch, channel.On, channel.Off, console.White(channel.Duty()))
		return nil
	},
}

var pwmResetCmd = cli.Command{
	Name:  "reset",
	Usage: "software reset of every PCA9685 on the bus (general call)",
	Flags: withI2CFlags(pwmAddrFlag,
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	),
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			ok, err := console.Confirm("reset all controllers on the bus?")
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			if !ok {
				return nil
			}
		}
		ctrl, release, err := pca9685(c)
		if err != nil {
			return err
		}
		defer release()

		if err := ctrl.SoftReset(c.Context); err != nil {
			return console.Exit(1, "error resetting: %s", console.Red(err))
		}
		console.Info("controllers reset")
		return nil
	},
}

var pwmDumpCmd = cli.Command{
	Name:  "dump",
	Usage: "print the mode and prescale fields",
	Flags: withI2CFlags(pwmAddrFlag),
	Action: func(c *cli.Context) error {
		ctrl, release, err := pca9685(c)
		if err != nil {
			return err
		}
		defer release()

		fields, err := ctrl.Dump(c.Context)
		if err != nil {
			return console.Exit(1, "error reading registers: %s", console.Red(err))
		}
		return encodeYAML(fields)
	},
}
