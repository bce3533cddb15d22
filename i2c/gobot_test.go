package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobotio "gobot.io/x/gobot/v2/drivers/i2c"
)

type fakeGobotConn struct {
	gobotio.Connection
	written [][]byte
	data    []byte
	short   bool
	closed  bool
}

func (c *fakeGobotConn) Read(b []byte) (int, error) {
	n := copy(b, c.data)
	if c.short {
		n--
	}
	return n, nil
}

func (c *fakeGobotConn) Write(b []byte) (int, error) {
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeGobotConn) Close() error {
	c.closed = true
	return nil
}

type fakeConnector struct {
	opened map[int]*fakeGobotConn
	bus    int
	err    error
}

func (f *fakeConnector) GetI2cConnection(address int, busNr int) (gobotio.Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bus = busNr
	c := &fakeGobotConn{data: []byte{0x12, 0x34}}
	f.opened[address] = c
	return c, nil
}

func (f *fakeConnector) DefaultI2cBus() int {
	return 2
}

func TestGobotBus(t *testing.T) {
	connector := &fakeConnector{opened: map[int]*fakeGobotConn{}}
	bus := NewDefaultGobotBus(connector)
	ctx := context.Background()

	require.NoError(t, bus.WriteToAddr(ctx, 0x51, []byte{0x04}))
	buf := make([]byte, 2)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x51, buf))
	assert.Equal(t, []byte{0x12, 0x34}, buf)
	require.NoError(t, bus.WriteToAddr(ctx, 0x40, []byte{0x00, 0x20}))

	assert.Equal(t, 2, connector.bus)
	require.Len(t, connector.opened, 2)
	assert.Equal(t, [][]byte{{0x04}}, connector.opened[0x51].written)

	require.NoError(t, bus.Close())
	assert.True(t, connector.opened[0x51].closed)
	assert.True(t, connector.opened[0x40].closed)
}

func TestGobotBus_Errors(t *testing.T) {
	ctx := context.Background()
	refused := errors.New("no such device")
	bus := NewGobotBus(&fakeConnector{err: refused}, 1)
	assert.ErrorIs(t, bus.WriteToAddr(ctx, 0x51, []byte{0x00}), refused)

	connector := &fakeConnector{opened: map[int]*fakeGobotConn{}}
	bus = NewGobotBus(connector, 1)
	require.NoError(t, bus.WriteToAddr(ctx, 0x51, []byte{0x00}))
	connector.opened[0x51].short = true
	assert.Error(t, bus.ReadFromAddr(ctx, 0x51, make([]byte, 2)))
}
