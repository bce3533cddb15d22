package i2c

import (
	"context"
	"testing"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestGenericBus_RegisterRead(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x40, W: []byte{0xFC}, R: []byte{0x49, 0x54}},
			{Addr: 0x40, W: []byte{0x0E, 0x50}},
			{Addr: 0x40, R: []byte{0xAA}},
		},
		DontPanic: true,
	}
	bus := NewGenericBusFrom(playback)
	ctx := context.Background()

	dev := regmap.New("hdc2080", regmap.NewI2C(bus, 0x40))
	require.NoError(t, dev.CheckID(ctx, 0xFC, []byte{0x49, 0x54}))
	require.NoError(t, dev.WriteReg(ctx, 0x0E, 0x50))
	buf := make([]byte, 1)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x40, buf))
	assert.Equal(t, byte(0xAA), buf[0])
	assert.NoError(t, bus.Close())
}

func TestGenericBus_Errors(t *testing.T) {
	playback := &i2ctest.Playback{DontPanic: true}
	bus := NewGenericBusFrom(playback)
	err := bus.WriteToAddr(context.Background(), 0x23, []byte{0x01})
	assert.Error(t, err)
	assert.ErrorIs(t, devices.BusError(err), devices.ErrBus)
}

func TestGenericBus_Init(t *testing.T) {
	bus := NewGenericBusFrom(&i2ctest.Playback{})
	ctx := context.Background()
	params := devices.DefaultI2CParams("/dev/i2c-1", 0x23)
	assert.NoError(t, bus.Init(ctx, params))
	assert.NoError(t, bus.Init(ctx, params))

	params.Frequency = 5 * physic.MegaHertz
	assert.ErrorIs(t, bus.Init(ctx, params), devices.ErrInvalidArgument)
}
