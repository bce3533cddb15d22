package radio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

// fakeRadio answers SPI frames like a transceiver in standby: the status byte is
// clocked out during the opcode, registers and buffer are plain memories.
type fakeRadio struct {
	status  byte
	regs    map[uint16]byte
	buffer  [256]byte
	answers map[byte][]byte
	frames  [][]byte
	err     error
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{
		status:  0x2<<5 | 0x1<<2,
		regs:    map[uint16]byte{},
		answers: map[byte][]byte{},
	}
}

func (f *fakeRadio) Tx(ctx context.Context, w, r []byte) error {
	f.frames = append(f.frames, append([]byte(nil), w...))
	if f.err != nil {
		return f.err
	}
	if len(r) > 0 {
		r[0] = f.status
	}
	switch w[0] {
	case opWriteRegister:
		addr := uint16(w[1])<<8 | uint16(w[2])
		for i, v := range w[3:] {
			f.regs[addr+uint16(i)] = v
		}
	case opReadRegister:
		addr := uint16(w[1])<<8 | uint16(w[2])
		for i := range r[4:] {
			r[4+i] = f.regs[addr+uint16(i)]
		}
	case opWriteBuffer:
		copy(f.buffer[w[1]:], w[2:])
	case opReadBuffer:
		copy(r[3:], f.buffer[w[1]:])
	default:
		if len(r) > 2 {
			copy(r[2:], f.answers[w[0]])
		}
	}
	return nil
}

func TestDecodeStatus(t *testing.T) {
	s := DecodeStatus(0b10101000)
	assert.Equal(t, SX128XModeRx, s.CircuitMode)
	assert.Equal(t, SX128XCmdDataAvailable, s.CommandStatus)
	assert.Equal(t, "mode=RX command=data available", s.String())

	s = DecodeStatus(0b11011000)
	assert.Equal(t, SX128XModeTx, s.CircuitMode)
	assert.Equal(t, SX128XCmdTxDone, s.CommandStatus)
}

func TestSX128X_GetStatus(t *testing.T) {
	conn := newFakeRadio()
	r := NewSX128X(conn)
	status, err := r.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SX128XStandbyRC, status.CircuitMode)
	assert.Equal(t, SX128XCmdSuccess, status.CommandStatus)
	assert.Equal(t, [][]byte{{0xC0}}, conn.frames)
}

func TestSX128X_Init(t *testing.T) {
	params := devices.TransportParams{Kind: devices.BusSPI, Bus: "SPI0.0", Frequency: 8 * physic.MegaHertz}
	ctx := context.Background()

	r := NewSX128X(newFakeRadio())
	assert.NoError(t, r.Init(ctx, params))

	for _, floating := range []byte{0x00, 0xFF} {
		conn := newFakeRadio()
		conn.status = floating
		err := NewSX128X(conn).Init(ctx, params)
		assert.ErrorIs(t, err, devices.ErrUnexpectedDeviceID)
	}

	params.Frequency = 20 * physic.MegaHertz
	assert.ErrorIs(t, r.Init(ctx, params), devices.ErrInvalidArgument)
}

func TestSX128X_Registers(t *testing.T) {
	conn := newFakeRadio()
	r := NewSX128X(conn)
	ctx := context.Background()

	require.NoError(t, r.WriteRegister(ctx, 0x0891, 0xC0, 0x01))
	assert.Equal(t, []byte{0x18, 0x08, 0x91, 0xC0, 0x01}, conn.frames[0])

	data, err := r.ReadRegister(ctx, 0x0891, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x01}, data)
	assert.Equal(t, []byte{0x19, 0x08, 0x91, 0x00, 0x00, 0x00}, conn.frames[1])
}

func TestSX128X_Fields(t *testing.T) {
	conn := newFakeRadio()
	conn.regs[0x0925] = 0b10100101
	r := NewSX128X(conn)
	ctx := context.Background()
	field := regmap.Bits("test", 0x0925, 3, 2)

	v, err := r.GetField(ctx, field)
	require.NoError(t, err)
	assert.Equal(t, byte(0b01), v)

	require.NoError(t, r.SetField(ctx, field, 0b10))
	assert.Equal(t, byte(0b10101001), conn.regs[0x0925])

	conn.frames = nil
	assert.ErrorIs(t, r.SetField(ctx, field, 4), devices.ErrInvalidArgument)
	assert.Empty(t, conn.frames)
}

func TestSX128X_Buffer(t *testing.T) {
	conn := newFakeRadio()
	r := NewSX128X(conn)
	ctx := context.Background()

	require.NoError(t, r.WriteBuffer(ctx, 0x80, []byte("hello")))
	assert.Equal(t, append([]byte{0x1A, 0x80}, "hello"...), conn.frames[0])

	data, err := r.ReadBuffer(ctx, 0x81, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("ello"), data)
	assert.Equal(t, []byte{0x1B, 0x81, 0x00, 0, 0, 0, 0}, conn.frames[1])
}

func TestFrequencySteps(t *testing.T) {
	steps, err := FrequencySteps(2400 * physic.MegaHertz)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xB89D89), steps)

	for _, f := range []physic.Frequency{2400 * physic.MegaHertz, 2441 * physic.MegaHertz, 2479*physic.MegaHertz + 123*physic.KiloHertz, 2500 * physic.MegaHertz} {
		steps, err := FrequencySteps(f)
		require.NoError(t, err)
		back := FrequencyOf(steps)
		assert.LessOrEqual(t, back, f)
		assert.Less(t, int64(f-back), int64(200*physic.Hertz), f.String())
	}

	for _, f := range []physic.Frequency{2399 * physic.MegaHertz, 2501 * physic.MegaHertz, 868 * physic.MegaHertz} {
		_, err := FrequencySteps(f)
		assert.ErrorIs(t, err, devices.ErrInvalidArgument)
	}
}

func TestSX128X_Commands(t *testing.T) {
	conn := newFakeRadio()
	r := NewSX128X(conn)
	ctx := context.Background()

	require.NoError(t, r.SetStandby(ctx, SX128XStandbyCrystal))
	require.NoError(t, r.SetPacketType(ctx, SX128XPacketLoRa))
	require.NoError(t, r.SetRfFrequency(ctx, 2400*physic.MegaHertz))
	require.NoError(t, r.SetTxParams(ctx, 13, SX128XRamp20us))
	require.NoError(t, r.SetTxParams(ctx, -18, SX128XRamp2us))
	require.NoError(t, r.SetBufferBaseAddress(ctx, 0x00, 0x80))
	require.NoError(t, r.SetDioIrqParams(ctx, SX128XIrqTxDone|SX128XIrqRxDone, SX128XIrqTxDone, SX128XIrqRxDone, 0))
	require.NoError(t, r.SetTx(ctx, SX128XPeriod1ms, 500))
	require.NoError(t, r.SetRx(ctx, SX128XPeriod62us5, SX128XRxContinuous))
	require.NoError(t, r.SetFs(ctx))
	require.NoError(t, r.ClearIrqStatus(ctx, SX128XIrqAll))
	require.NoError(t, r.SetRegulatorMode(ctx, SX128XRegulatorDCDC))
	require.NoError(t, r.SetSleep(ctx, SX128XRetainDataRAM|SX128XRetainDataBuffer))

	assert.Equal(t, [][]byte{
		{0x80, 0x01},
		{0x8A, 0x01},
		{0x86, 0xB8, 0x9D, 0x89},
		{0x8E, 31, 0xE0},
		{0x8E, 0, 0x00},
		{0x8F, 0x00, 0x80},
		{0x8D, 0x00, 0x03, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00},
		{0x83, 0x02, 0x01, 0xF4},
		{0x82, 0x01, 0xFF, 0xFF},
		{0xC1},
		{0x97, 0xFF, 0xFF},
		{0x96, 0x01},
		{0x84, 0x03},
	}, conn.frames)
}

func TestSX128X_InvalidArguments(t *testing.T) {
	conn := newFakeRadio()
	r := NewSX128X(conn)
	ctx := context.Background()

	assert.ErrorIs(t, r.SetTxParams(ctx, 14, SX128XRamp2us), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetTxParams(ctx, -19, SX128XRamp2us), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetTxParams(ctx, 0, SX128XRampTime(0x21)), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetRfFrequency(ctx, 915*physic.MegaHertz), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetPacketType(ctx, SX128XPacketType(5)), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetStandby(ctx, SX128XStandbyMode(2)), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetTx(ctx, SX128XPeriodBase(4), 0), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetSleep(ctx, SX128XSleepConfig(0x04)), devices.ErrInvalidArgument)
	assert.ErrorIs(t, r.SetRegulatorMode(ctx, SX128XRegulatorMode(2)), devices.ErrInvalidArgument)
	assert.Empty(t, conn.frames)
}

func TestSX128X_Queries(t *testing.T) {
	conn := newFakeRadio()
	conn.answers[opGetPacketType] = []byte{byte(SX128XPacketFLRC)}
	conn.answers[opGetIrqStatus] = []byte{0x40, 0x02}
	conn.answers[opGetRssiInst] = []byte{0xA5}
	conn.answers[opGetRxBufferStatus] = []byte{0x10, 0x80}
	r := NewSX128X(conn)
	ctx := context.Background()

	pt, err := r.GetPacketType(ctx)
	require.NoError(t, err)
	assert.Equal(t, SX128XPacketFLRC, pt)

	irq, err := r.GetIrqStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SX128XIrqRxTxTimeout|SX128XIrqRxDone, irq)

	rssi, err := r.GetRssiInst(ctx)
	require.NoError(t, err)
	assert.Equal(t, -82.5, rssi)

	length, offset, err := r.GetRxBufferStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), length)
	assert.Equal(t, byte(0x80), offset)

	assert.Equal(t, []byte{0x15, 0x00, 0x00, 0x00}, conn.frames[1])
}

func TestSX128X_Busy(t *testing.T) {
	conn := newFakeRadio()
	polls := 0
	r := NewSX128X(conn, WithSX128XBusy(func() bool {
		polls++
		return polls < 3
	}))
	require.NoError(t, r.SetFs(context.Background()))
	assert.Equal(t, 3, polls)

	stuck := NewSX128X(conn, WithSX128XBusy(func() bool { return true }), WithSX128XBusyTimeout(time.Millisecond))
	err := stuck.SetFs(context.Background())
	assert.ErrorIs(t, err, devices.ErrBusBusy)
}

func TestSX128X_BusFailure(t *testing.T) {
	conn := newFakeRadio()
	conn.err = errors.New("spi: transfer failed")
	r := NewSX128X(conn)
	_, err := r.GetStatus(context.Background())
	assert.ErrorIs(t, err, devices.ErrBus)
	assert.ErrorIs(t, r.SetFs(context.Background()), devices.ErrBus)
}
