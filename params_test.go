package devices

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestTransportParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		params TransportParams
		valid  bool
	}{
		{"standard mode", DefaultI2CParams("/dev/i2c-1", 0x23), true},
		{"fast mode plus", TransportParams{Kind: BusI2C, Address: 0x40, Frequency: physic.MegaHertz}, true},
		{"high speed limit", TransportParams{Kind: BusI2C, Address: 0x40, Frequency: MaxI2CFrequency}, true},
		{"too slow", TransportParams{Kind: BusI2C, Address: 0x40, Frequency: 5 * physic.KiloHertz}, false},
		{"too fast", TransportParams{Kind: BusI2C, Address: 0x40, Frequency: 4 * physic.MegaHertz}, false},
		{"zero address", TransportParams{Kind: BusI2C, Frequency: 100 * physic.KiloHertz}, false},
		{"10 bit address", TransportParams{Kind: BusI2C, Address: 0x80, Frequency: 100 * physic.KiloHertz}, false},
		{"spi", TransportParams{Kind: BusSPI, Bus: "SPI0.0", Frequency: 8 * physic.MegaHertz}, true},
		{"spi too fast", TransportParams{Kind: BusSPI, Frequency: 20 * physic.MegaHertz}, false},
		{"slow peripheral clock", TransportParams{Kind: BusSPI, Frequency: 8 * physic.MegaHertz, PeripheralClock: physic.MegaHertz}, false},
		{"unknown kind", TransportParams{Kind: BusKind(7), Frequency: physic.MegaHertz}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.params.Validate()
			if test.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

type recordingInit struct {
	calls []TransportParams
	err   error
}

func (r *recordingInit) Init(ctx context.Context, params TransportParams) error {
	r.calls = append(r.calls, params)
	return r.err
}

func TestInitBus(t *testing.T) {
	ctx := context.Background()
	params := DefaultI2CParams("I2C1", 0x51)

	bus := &recordingInit{}
	require.NoError(t, InitBus(ctx, bus, params))
	require.NoError(t, InitBus(ctx, bus, params))
	assert.Equal(t, []TransportParams{params, params}, bus.calls)

	// transports without configurable parameters are accepted as they are
	assert.NoError(t, InitBus(ctx, struct{}{}, params))

	bad := params
	bad.Frequency = physic.Hertz
	bus = &recordingInit{}
	assert.ErrorIs(t, InitBus(ctx, bus, bad), ErrInvalidArgument)
	assert.Empty(t, bus.calls)

	bus = &recordingInit{err: errors.New("no ack")}
	assert.ErrorIs(t, InitBus(ctx, bus, params), ErrBus)
}

func TestCheckAddress(t *testing.T) {
	assert.NoError(t, CheckAddress(DefaultI2CParams("", 0x40), 0x40))
	assert.NoError(t, CheckAddress(TransportParams{Kind: BusI2C}, 0x40))
	assert.ErrorIs(t, CheckAddress(DefaultI2CParams("", 0x41), 0x40), ErrInvalidArgument)
	assert.NoError(t, CheckAddress(TransportParams{Kind: BusSPI, Address: 3}, 0x40))
}

func TestBusKind_String(t *testing.T) {
	assert.Equal(t, "i2c", BusI2C.String())
	assert.Equal(t, "spi", BusSPI.String())
	assert.Equal(t, "bus(9)", BusKind(9).String())
}
