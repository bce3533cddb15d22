package main

import (
	"context"
	"math/rand/v2"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/cmd/sensors/console"
	"github.com/mklimuk/devices/config"
	"github.com/mklimuk/devices/environment"
	"github.com/mklimuk/devices/flow"
	"github.com/mklimuk/devices/rtc"
	"github.com/mklimuk/devices/sampling"
)

var sampleCmd = cli.Command{
	Name:      "sample",
	Usage:     "read the devices of a sampling plan until interrupted",
	ArgsUsage: "plan.yaml",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "once", Usage: "take a single sample and exit"},
		&cli.BoolFlag{Name: "yaml", Usage: "print readings as yaml"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		cfg, err := config.Load(c.Args().First())
		if err != nil {
			return console.Exit(1, "invalid sampling plan: %s", console.Red(err))
		}
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var sources []sampling.Source
		if cfg.Adapter == config.AdapterMock {
			console.Warnf("using simulated sensors")
			sources = mockSources(cfg)
		} else {
			bus, release, err := openI2C(cfg.Adapter, cfg.Bus)
			if err != nil {
				return console.Exit(1, "adapter initialization error: %s", console.Red(err))
			}
			defer release()
			sources, err = buildSources(ctx, cfg, bus)
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
		}
		s, err := sampling.New(sampling.Config{Interval: cfg.Interval, Sources: sources})
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}

		show := printReadings
		if c.Bool("yaml") {
			show = func(readings []sampling.Reading) {
				_ = encodeYAML(readings)
			}
		}
		if c.Bool("once") {
			show(s.SampleOnce(ctx))
			return nil
		}

		out := make(chan []sampling.Reading)
		go s.Run(ctx, out)
		for {
			select {
			case <-ctx.Done():
				console.Info("sampling stopped")
				return nil
			case readings := <-out:
				show(readings)
			}
		}
	},
}

// buildSources initializes the drivers of the plan. A device that fails to
// initialize stops the command, later read failures do not.
func buildSources(ctx context.Context, cfg *config.Config, bus devices.I2CBus) ([]sampling.Source, error) {
	sources := make([]sampling.Source, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		params := devices.DefaultI2CParams(cfg.Bus, d.Address)
		params.Frequency = cfg.BusFrequency()

		var dev initializer
		var probe sampling.Probe
		switch d.Kind {
		case config.KindBH1750:
			mode, err := environment.ParseBH1750Mode(d.Mode)
			if err != nil {
				return nil, err
			}
			sensor := environment.NewBH1750(bus, d.Address, environment.WithBH1750Mode(mode))
			dev, probe = sensor, sampling.LightProbe(sensor)
		case config.KindHDC2080:
			sensor := environment.NewHDC2080(bus, d.Address)
			dev, probe = sensor, sampling.ClimateProbe(sensor)
		case config.KindPCF85063:
			clock := rtc.NewPCF85063(bus)
			dev, probe = clock, sampling.ClockProbe(clock, nil)
		case config.KindSFM4100:
			sensor := flow.NewSFM4100(bus, d.Address, flow.WithSFM4100Calibration(d.Offset, d.Scale))
			dev, probe = sensor, sampling.FlowProbe(sensor)
		}
		if err := dev.Init(ctx, params); err != nil {
			return nil, console.Exit(1, "could not initialize %s: %s", d.Name, console.Red(err))
		}
		sources = append(sources, sampling.Source{Name: d.Name, Kind: d.Kind, Probe: probe})
	}
	return sources, nil
}

// mockSources simulates the light and climate sensors of a validated mock plan.
func mockSources(cfg *config.Config) []sampling.Source {
	sources := make([]sampling.Source, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		var probe sampling.Probe
		switch d.Kind {
		case config.KindBH1750:
			probe = sampling.LightProbe(environment.NewMockBH1750(func(ctx context.Context) (int, error) {
				return 300 + rand.IntN(50), nil
			}))
		case config.KindHDC2080:
			probe = sampling.ClimateProbe(environment.NewMockHDC2080(
				func(ctx context.Context) (float32, error) {
					return 21 + rand.Float32(), nil
				},
				func(ctx context.Context) (float32, error) {
					return 45 + 2*rand.Float32(), nil
				},
			))
		}
		sources = append(sources, sampling.Source{Name: d.Name, Kind: d.Kind, Probe: probe})
	}
	return sources
}

func printReadings(readings []sampling.Reading) {
	for _, r := range readings {
		if r.Err != nil {
			console.Errorf("%s (%s): %s", r.Device, r.Kind, console.Red(r.Err))
			continue
		}
		values := make([]string, 0, len(r.Values))
		for _, v := range r.Values {
			values = append(values, console.White(v.String()))
		}
		console.Printf("%s %s %s\n", r.At.Format(time.TimeOnly), console.Bold(r.Device), strings.Join(values, " "))
	}
}
