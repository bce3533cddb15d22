package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/devices"
)

const plan = `
adapter: mcp2221
frequency: 400kHz
interval: 2s
devices:
  - kind: bh1750
    name: desk
    address: 0x5C
    mode: continuous-h2
  - kind: hdc2080
  - kind: pcf85063
    name: clock
  - kind: sfm4100
    offset: -16000
    scale: 768
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(plan))
	require.NoError(t, err)

	expected := &Config{
		Adapter:   AdapterMCP2221,
		Frequency: "400kHz",
		Interval:  2 * time.Second,
		Devices: []Device{
			{Kind: KindBH1750, Name: "desk", Address: 0x5C, Mode: "continuous-h2"},
			{Kind: KindHDC2080, Name: "hdc2080-1", Address: 0x40},
			{Kind: KindPCF85063, Name: "clock", Address: 0x51},
			{Kind: KindSFM4100, Name: "sfm4100-3", Address: 0x01, Offset: -16000, Scale: 768},
		},
	}
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Errorf("unexpected config (-want +got):\n%s", diff)
	}
	assert.Equal(t, 400*physic.KiloHertz, cfg.BusFrequency())
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("devices:\n  - kind: bh1750\n"))
	require.NoError(t, err)

	expected := &Config{
		Adapter:   AdapterPeriph,
		Bus:       DefaultBus,
		Frequency: DefaultFrequency,
		Interval:  DefaultInterval,
		Devices: []Device{
			{Kind: KindBH1750, Name: "bh1750-0", Address: 0x23, Mode: DefaultMode},
		},
	}
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Errorf("unexpected config (-want +got):\n%s", diff)
	}
	assert.Equal(t, 100*physic.KiloHertz, cfg.BusFrequency())
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("devices:\n  - kind: bh1750\n    gain: 2\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(plan), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Devices, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_BenchPlan(t *testing.T) {
	cfg, err := Load("testdata/plan.yaml")
	require.NoError(t, err)
	assert.Equal(t, AdapterNanoPi, cfg.Adapter)
	assert.Equal(t, "0", cfg.Bus)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	names := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"enclosure", "window", "clock", "intake"}, names)
	assert.Equal(t, uint8(0x40), cfg.Devices[0].Address)
	assert.Equal(t, 768.0, cfg.Devices[3].Scale)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown adapter", Config{Adapter: "ftdi", Devices: []Device{{Kind: KindBH1750}}}},
		{"bad frequency", Config{Frequency: "fast", Devices: []Device{{Kind: KindBH1750}}}},
		{"frequency too high", Config{Frequency: "5MHz", Devices: []Device{{Kind: KindBH1750}}}},
		{"negative interval", Config{Interval: -time.Second, Devices: []Device{{Kind: KindBH1750}}}},
		{"no devices", Config{}},
		{"unknown kind", Config{Devices: []Device{{Kind: "tc74"}}}},
		{"bad bh1750 address", Config{Devices: []Device{{Kind: KindBH1750, Address: 0x40}}}},
		{"bad bh1750 mode", Config{Devices: []Device{{Kind: KindBH1750, Mode: "turbo"}}}},
		{"bad hdc2080 address", Config{Devices: []Device{{Kind: KindHDC2080, Address: 0x23}}}},
		{"8-bit address", Config{Devices: []Device{{Kind: KindPCF85063, Address: 0xA2}}}},
		{"mode on hdc2080", Config{Devices: []Device{{Kind: KindHDC2080, Mode: "one-time-l"}}}},
		{"calibration on bh1750", Config{Devices: []Device{{Kind: KindBH1750, Scale: 2}}}},
		{"negative scale", Config{Devices: []Device{{Kind: KindSFM4100, Scale: -1}}}},
		{"clock on mock adapter", Config{Adapter: AdapterMock, Devices: []Device{{Kind: KindPCF85063}}}},
		{"duplicate name", Config{Devices: []Device{
			{Kind: KindBH1750, Name: "a"},
			{Kind: KindHDC2080, Name: "a"},
		}}},
		{"address collision", Config{Devices: []Device{
			{Kind: KindBH1750},
			{Kind: KindBH1750},
		}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Validate(&test.cfg)
			assert.ErrorIs(t, err, devices.ErrInvalidArgument)
		})
	}
}

func TestParse_MockAdapter(t *testing.T) {
	cfg, err := Parse([]byte("adapter: mock\ndevices:\n  - kind: bh1750\n  - kind: hdc2080\n"))
	require.NoError(t, err)
	assert.Equal(t, AdapterMock, cfg.Adapter)
	assert.Empty(t, cfg.Bus)
	assert.Len(t, cfg.Devices, 2)
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := Config{Devices: []Device{{Kind: KindBH1750}, {Kind: KindBH1750, Address: 0x5C}}}
	before := cfg
	before.Devices = append([]Device(nil), cfg.Devices...)
	require.NoError(t, Validate(&cfg))
	if diff := cmp.Diff(before, cfg); diff != "" {
		t.Errorf("Validate mutated config (-want +got):\n%s", diff)
	}
}

func TestNormalize_Nil(t *testing.T) {
	assert.NotPanics(t, func() { Normalize(nil) })
}
