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

func newTestHDC2080(bus devices.I2CBus) *HDC2080 {
	return NewHDC2080(bus, HDC2080AddrLow,
		WithHDC2080ResetDelay(0),
		WithHDC2080MeasurementOpts(regmap.WithConversionTime(0), regmap.WithPollInterval(time.Millisecond)),
	)
}

func TestHDC2080_ConvertTemperature(t *testing.T) {
	tests := []struct {
		raw      uint16
		expected float32
	}{
		{0x0000, -40},
		{0x8000, 42.5},
		{0x4000, 1.25},
		{0xFFFF, 124.99748},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#04x", test.raw), func(t *testing.T) {
			assert.InDelta(t, test.expected, HDC2080Temperature(test.raw), 1e-4)
		})
	}
}

func TestHDC2080_ConvertHumidity(t *testing.T) {
	assert.Equal(t, float32(0), HDC2080Humidity(0))
	assert.Equal(t, float32(50), HDC2080Humidity(0x8000))
	assert.InDelta(t, 99.99847, HDC2080Humidity(0xFFFF), 1e-4)
}

func TestHDC2080_ConversionRoundTrip(t *testing.T) {
	const tempStep = 165.0 / 65536
	for c := float32(-40); c <= 124.99; c += 0.37 {
		assert.InDelta(t, c, HDC2080Temperature(HDC2080RawTemperature(c)), tempStep, "%.2f", c)
	}
	const humStep = 100.0 / 65536
	for rh := float32(0); rh < 100; rh += 0.29 {
		assert.InDelta(t, rh, HDC2080Humidity(HDC2080RawHumidity(rh)), humStep, "%.2f", rh)
	}
	assert.Equal(t, uint16(0), HDC2080RawTemperature(-60))
	assert.Equal(t, uint16(0xFFFF), HDC2080RawTemperature(125))
}

func TestHDC2080_Init(t *testing.T) {
	bus := regtest.New()
	bus.Set(0xFC, 0x49, 0x54, 0xD0, 0x07)
	sensor := newTestHDC2080(bus)
	ctx := context.Background()
	require.NoError(t, sensor.Init(ctx, devices.DefaultI2CParams("/dev/i2c-1", HDC2080AddrLow)))

	id, err := sensor.GetManufacturerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x5449), id)
	id, err = sensor.GetDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x07D0), id)

	bus.Set(0xFE, 0xD0, 0x08)
	err = sensor.Init(ctx, devices.DefaultI2CParams("/dev/i2c-1", HDC2080AddrLow))
	assert.ErrorIs(t, err, devices.ErrUnexpectedDeviceID)
	assert.NotErrorIs(t, err, devices.ErrBus)

	bus.SetFail(regtest.ErrInjected)
	err = sensor.Init(ctx, devices.DefaultI2CParams("/dev/i2c-1", HDC2080AddrLow))
	assert.ErrorIs(t, err, devices.ErrBus)
}

func TestHDC2080_ReadChannels(t *testing.T) {
	bus := regtest.New()
	bus.Set(0x00, 0x00, 0x80, 0x00, 0x40)
	sensor := newTestHDC2080(bus)
	ctx := context.Background()

	temp, err := sensor.GetTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(42.5), temp)
	hum, err := sensor.GetHumidity(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(25), hum)

	data, err := sensor.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, HDC2080Data{RawTemperature: 0x8000, RawHumidity: 0x4000, Temperature: 42.5, Humidity: 25}, data)
}

func TestHDC2080_TriggeredMeasurement(t *testing.T) {
	bus := regtest.New()
	bus.Set(0x0F, 0b0101_0000)
	bus.OnWrite = func(b *regtest.Bus, frame []byte) {
		if len(frame) == 2 && frame[0] == 0x0F && frame[1]&0x01 != 0 {
			b.Regs[0x00], b.Regs[0x01] = 0x00, 0x80
			b.Regs[0x02], b.Regs[0x03] = 0x00, 0x80
		}
	}
	sensor := newTestHDC2080(bus)
	ctx := context.Background()

	m, err := sensor.StartMeasurementTrigger(ctx)
	require.NoError(t, err)
	// the trigger preserves the measurement configuration
	assert.Equal(t, byte(0b0101_0001), bus.Get(0x0F))

	ready, err := m.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, ready)
	_, err = m.Result(ctx)
	assert.ErrorIs(t, err, devices.ErrNotReady)

	bus.Set(0x04, 0x80)
	require.NoError(t, m.Wait(ctx))
	data, err := m.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(42.5), data.Temperature)
	assert.Equal(t, float32(50), data.Humidity)
}

func TestHDC2080_GetTempAndHum(t *testing.T) {
	bus := regtest.New()
	bus.Set(0x00, 0x00, 0x40, 0x00, 0xC0)
	bus.Set(0x04, 0x80)
	sensor := newTestHDC2080(bus)
	temp, hum, err := sensor.GetTempAndHum(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float32(1.25), temp)
	assert.Equal(t, float32(75), hum)
}

func TestHDC2080_ConfigurationFields(t *testing.T) {
	bus := regtest.New()
	bus.Set(0x0E, 0x00)
	sensor := newTestHDC2080(bus)
	ctx := context.Background()

	require.NoError(t, sensor.SetAutoMeasurementMode(ctx, HDC2080AMM5Hz))
	require.NoError(t, sensor.SetHeaterMode(ctx, true))
	require.NoError(t, sensor.SetPinConfiguration(ctx, true))
	require.NoError(t, sensor.SetInterruptPolarity(ctx, HDC2080ActiveHigh))
	require.NoError(t, sensor.SetInterruptMode(ctx, HDC2080Comparator))
	assert.Equal(t, byte(0b0111_1111), bus.Get(0x0E))

	amm, err := sensor.GetAutoMeasurementMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, HDC2080AMM5Hz, amm)

	require.NoError(t, sensor.SetHeaterMode(ctx, false))
	heater, err := sensor.GetHeaterMode(ctx)
	require.NoError(t, err)
	assert.False(t, heater)
	pin, err := sensor.GetPinConfiguration(ctx)
	require.NoError(t, err)
	assert.True(t, pin)
	pol, err := sensor.GetInterruptPolarity(ctx)
	require.NoError(t, err)
	assert.Equal(t, HDC2080ActiveHigh, pol)
	mode, err := sensor.GetInterruptMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, HDC2080Comparator, mode)

	bus.Reset()
	assert.ErrorIs(t, sensor.SetAutoMeasurementMode(ctx, HDC2080AutoMeasurementMode(8)), devices.ErrInvalidArgument)
	assert.Zero(t, bus.Calls())
}

func TestHDC2080_MeasurementConf(t *testing.T) {
	bus := regtest.New()
	bus.Set(0x0F, 0x01)
	sensor := newTestHDC2080(bus)
	ctx := context.Background()

	conf := HDC2080MeasurementConf{
		TemperatureResolution: HDC2080Resolution11Bit,
		HumidityResolution:    HDC2080Resolution9Bit,
		Mode:                  HDC2080TemperatureOnly,
	}
	require.NoError(t, sensor.SetMeasurementConf(ctx, conf))
	assert.Equal(t, byte(0x63), bus.Get(0x0F))
	got, err := sensor.GetMeasurementConf(ctx)
	require.NoError(t, err)
	assert.Equal(t, conf, got)
	trig, err := sensor.GetMeasurementTrigger(ctx)
	require.NoError(t, err)
	assert.True(t, trig)

	bus.Reset()
	conf.HumidityResolution = 3
	assert.ErrorIs(t, sensor.SetMeasurementConf(ctx, conf), devices.ErrInvalidArgument)
	assert.Zero(t, bus.Calls())
}

func TestHDC2080_Interrupts(t *testing.T) {
	bus := regtest.New()
	sensor := newTestHDC2080(bus)
	ctx := context.Background()

	enable := HDC2080Interrupts{DataReady: true, TemperatureLow: true, HumidityLow: true}
	require.NoError(t, sensor.SetInterruptConfiguration(ctx, enable))
	assert.Equal(t, byte(0b1010_1000), bus.Get(0x07))
	got, err := sensor.GetInterruptConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, enable, got)

	bus.Set(0x04, 0b0101_0000)
	status, err := sensor.GetInterruptDRDYStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, HDC2080Interrupts{TemperatureHigh: true, HumidityHigh: true}, status)
}

func TestHDC2080_Offsets(t *testing.T) {
	bus := regtest.New()
	sensor := newTestHDC2080(bus)
	ctx := context.Background()

	require.NoError(t, sensor.SetTemperatureOffset(ctx, 1.0))
	assert.Equal(t, byte(0x06), bus.Get(0x08))
	off, err := sensor.GetTemperatureOffset(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.96, off, 1e-6)

	require.NoError(t, sensor.SetTemperatureOffset(ctx, -0.32))
	assert.Equal(t, byte(0xFE), bus.Get(0x08))

	require.NoError(t, sensor.SetHumidityOffset(ctx, 25.4))
	assert.Equal(t, byte(0x7F), bus.Get(0x09))
	hoff, err := sensor.GetHumidityOffset(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.4, hoff, 1e-5)

	bus.Reset()
	assert.ErrorIs(t, sensor.SetHumidityOffset(ctx, 25.6), devices.ErrInvalidArgument)
	assert.ErrorIs(t, sensor.SetTemperatureOffset(ctx, -21), devices.ErrInvalidArgument)
	assert.Zero(t, bus.Calls())
}

func TestHDC2080_Thresholds(t *testing.T) {
	bus := regtest.New()
	sensor := newTestHDC2080(bus)
	ctx := context.Background()
	const tempStep = 165.0 / 256

	require.NoError(t, sensor.SetTemperatureThresLow(ctx, 25))
	assert.Equal(t, byte(100), bus.Get(0x0A))
	low, err := sensor.GetTemperatureThresLow(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25, low, tempStep)

	require.NoError(t, sensor.SetTemperatureThresHigh(ctx, 60))
	high, err := sensor.GetTemperatureThresHigh(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 60, high, tempStep)

	require.NoError(t, sensor.SetHumidityThresLow(ctx, 30))
	hl, err := sensor.GetHumidityThresLow(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 30, hl, 100.0/256)

	require.NoError(t, sensor.SetHumidityThresHigh(ctx, 100))
	assert.Equal(t, byte(0xFF), bus.Get(0x0D))
	hh, err := sensor.GetHumidityThresHigh(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100, hh, 0.4)

	bus.Reset()
	assert.ErrorIs(t, sensor.SetTemperatureThresHigh(ctx, 126), devices.ErrInvalidArgument)
	assert.ErrorIs(t, sensor.SetHumidityThresLow(ctx, -1), devices.ErrInvalidArgument)
	assert.Zero(t, bus.Calls())
}

func TestHDC2080_PeakRegisters(t *testing.T) {
	bus := regtest.New()
	sensor := newTestHDC2080(bus)
	ctx := context.Background()
	require.NoError(t, sensor.ConfTemperatureMax(ctx, 0x80))
	require.NoError(t, sensor.ConfHumidityMax(ctx, 0x40))
	tmax, err := sensor.GetTemperatureMax(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(42.5), tmax)
	hmax, err := sensor.GetHumidityMax(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(25), hmax)
}

func TestHDC2080_SoftReset(t *testing.T) {
	bus := regtest.New()
	bus.Set(0x0E, 0x50)
	sensor := newTestHDC2080(bus)
	ctx := context.Background()
	require.NoError(t, sensor.SoftReset(ctx))
	assert.Equal(t, byte(0xD0), bus.Get(0x0E))
	busy, err := sensor.GetSoftReset(ctx)
	require.NoError(t, err)
	assert.True(t, busy)
}

func TestHDC2080_Dump(t *testing.T) {
	bus := regtest.New()
	bus.Set(0x0E, 0x57)
	sensor := newTestHDC2080(bus)
	res, err := sensor.Dump(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(5), res["amm"])
	assert.Equal(t, byte(1), res["drdy_int_en"])
	assert.Equal(t, byte(1), res["int_pol"])
	assert.Equal(t, byte(1), res["int_mode"])
	assert.Len(t, res, len(HDC2080Registers))
}
