package environment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
	"github.com/mklimuk/devices/regmap/regtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantBH1750(bus devices.I2CBus) *BH1750 {
	return NewBH1750(bus, BH1750AddrLow, WithBH1750MeasurementOpts(
		regmap.WithConversionTime(0),
		regmap.WithPollInterval(time.Millisecond),
	))
}

func TestConvertLux(t *testing.T) {
	tests := []struct {
		raw      uint16
		mode     BH1750Mode
		expected float64
	}{
		{0x0000, BH1750OneTimeHigh, 0},
		{0x0174, BH1750OneTimeHigh, 310},
		{0x0174, BH1750ContinuousLow, 310},
		{0xFFFF, BH1750ContinuousHigh, 54612},
		{0x0174, BH1750OneTimeHigh2, 155},
		{0x0175, BH1750ContinuousHigh2, 155.5},
		{0x0001, BH1750OneTimeHigh2, 0.5},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s/%#04x", test.mode, test.raw), func(t *testing.T) {
			assert.Equal(t, test.expected, ConvertLux(test.raw, test.mode))
		})
	}
}

func TestBH1750_SensitivityFrames(t *testing.T) {
	tests := []struct {
		mt       byte
		expected []byte
	}{
		{31, []byte{0x40, 0x7F}},
		{69, []byte{0x42, 0x65}},
		{254, []byte{0x47, 0x7E}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.mt), func(t *testing.T) {
			bus := regtest.New()
			sensor := NewBH1750(bus, BH1750AddrLow)
			require.NoError(t, sensor.SetSensitivity(context.Background(), test.mt))
			assert.Equal(t, [][]byte{test.expected}, bus.Writes())
			assert.Equal(t, test.mt, sensor.Sensitivity())
		})
	}
}

func TestBH1750_SensitivityOutOfRange(t *testing.T) {
	for _, mt := range []byte{0, 30, 255} {
		bus := regtest.New()
		sensor := NewBH1750(bus, BH1750AddrLow)
		err := sensor.SetSensitivity(context.Background(), mt)
		assert.ErrorIs(t, err, devices.ErrInvalidArgument)
		assert.Zero(t, bus.Calls())
		assert.Equal(t, byte(69), sensor.Sensitivity())
	}
}

func TestBH1750_MeasurementCycle(t *testing.T) {
	bus := regtest.New()
	bus.Queue([]byte{0x01, 0x74})
	sensor := instantBH1750(bus)
	ctx := context.Background()

	m, err := sensor.TriggerMeasurement(ctx, BH1750OneTimeHigh)
	require.NoError(t, err)
	assert.Equal(t, BH1750OneTimeHigh, sensor.Mode())

	_, err = m.Result(ctx)
	assert.ErrorIs(t, err, devices.ErrNotReady)

	require.NoError(t, m.Wait(ctx))
	lux, err := m.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 310.0, lux)

	_, err = m.Result(ctx)
	assert.ErrorIs(t, err, devices.ErrNotReady)

	assert.Equal(t, []regtest.Tx{
		{Addr: BH1750AddrLow, Write: []byte{0x20}},
		{Addr: BH1750AddrLow, Read: 2},
	}, bus.Log())
}

func TestBH1750_ReadLuxFollowsLatestMode(t *testing.T) {
	bus := regtest.New()
	sensor := instantBH1750(bus)
	ctx := context.Background()

	_, err := sensor.ReadLux(ctx)
	assert.ErrorIs(t, err, devices.ErrNotReady)

	_, err = sensor.TriggerMeasurement(ctx, BH1750ContinuousHigh)
	require.NoError(t, err)
	bus.Queue([]byte{0x01, 0x75})
	lux, err := sensor.ReadLux(ctx)
	require.NoError(t, err)
	assert.Equal(t, 310.0, lux)

	_, err = sensor.TriggerMeasurement(ctx, BH1750ContinuousHigh2)
	require.NoError(t, err)
	bus.Queue([]byte{0x01, 0x75})
	lux, err = sensor.ReadLux(ctx)
	require.NoError(t, err)
	assert.Equal(t, 155.5, lux)
}

func TestBH1750_FailedTriggerKeepsMode(t *testing.T) {
	bus := regtest.New()
	sensor := instantBH1750(bus)
	ctx := context.Background()

	_, err := sensor.TriggerMeasurement(ctx, BH1750ContinuousLow)
	require.NoError(t, err)
	bus.SetFail(regtest.ErrInjected)
	_, err = sensor.TriggerMeasurement(ctx, BH1750ContinuousHigh2)
	assert.ErrorIs(t, err, devices.ErrBus)
	assert.Equal(t, BH1750ContinuousLow, sensor.Mode())

	_, err = sensor.TriggerMeasurement(ctx, BH1750Mode(0x42))
	assert.ErrorIs(t, err, devices.ErrInvalidArgument)
}

func TestBH1750_SensitivityScalesLux(t *testing.T) {
	bus := regtest.New()
	sensor := instantBH1750(bus)
	ctx := context.Background()
	require.NoError(t, sensor.SetSensitivity(ctx, 138))
	_, err := sensor.TriggerMeasurement(ctx, BH1750ContinuousHigh)
	require.NoError(t, err)
	bus.Queue([]byte{0x01, 0x74})
	lux, err := sensor.ReadLux(ctx)
	require.NoError(t, err)
	assert.Equal(t, 155.0, lux)
}

func TestBH1750_GetLux(t *testing.T) {
	bus := regtest.New()
	bus.Queue([]byte{0x00, 0x78})
	sensor := instantBH1750(bus)
	lux, err := sensor.GetLux(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, lux)
	assert.Equal(t, [][]byte{{0x23}}, bus.Writes())
}

func TestBH1750_GetLuxMode(t *testing.T) {
	bus := regtest.New()
	bus.Queue([]byte{0x01, 0x74})
	sensor := NewBH1750(bus, BH1750AddrLow, WithBH1750Mode(BH1750OneTimeHigh2), WithBH1750MeasurementOpts(
		regmap.WithConversionTime(0),
		regmap.WithPollInterval(time.Millisecond),
	))
	lux, err := sensor.GetLux(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 155, lux)
	assert.Equal(t, [][]byte{{0x21}}, bus.Writes())
}

func TestBH1750_Commands(t *testing.T) {
	bus := regtest.New()
	sensor := NewBH1750(bus, BH1750AddrHigh)
	ctx := context.Background()
	require.NoError(t, sensor.PowerOn(ctx))
	require.NoError(t, sensor.ResetDataRegister(ctx))
	require.NoError(t, sensor.PowerDown(ctx))
	assert.Equal(t, [][]byte{{0x01}, {0x07}, {0x00}}, bus.Writes())
	for _, tx := range bus.Log() {
		assert.Equal(t, byte(BH1750AddrHigh), tx.Addr)
	}
}

func TestBH1750_Init(t *testing.T) {
	sensor := NewBH1750(regtest.New(), BH1750AddrLow)
	ctx := context.Background()
	assert.NoError(t, sensor.Init(ctx, devices.DefaultI2CParams("/dev/i2c-1", BH1750AddrLow)))
	assert.ErrorIs(t, sensor.Init(ctx, devices.DefaultI2CParams("/dev/i2c-1", BH1750AddrHigh)), devices.ErrInvalidArgument)
}

func TestConversionTime(t *testing.T) {
	assert.Equal(t, 180*time.Millisecond, ConversionTime(BH1750OneTimeHigh, 69))
	assert.Equal(t, 24*time.Millisecond, ConversionTime(BH1750ContinuousLow, 69))
	assert.Equal(t, 360*time.Millisecond, ConversionTime(BH1750OneTimeHigh2, 138))
}

func TestParseBH1750Mode(t *testing.T) {
	m, err := ParseBH1750Mode("one-time-h2")
	require.NoError(t, err)
	assert.Equal(t, BH1750OneTimeHigh2, m)
	_, err = ParseBH1750Mode("fast")
	assert.ErrorIs(t, err, devices.ErrInvalidArgument)
}
