package regmap

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/snsctx"
)

// Transport moves register contents between the host and a device.
type Transport interface {
	ReadRegs(ctx context.Context, reg Addr, buf []byte) error
	WriteRegs(ctx context.Context, reg Addr, data []byte) error
}

// CommandTransport is implemented by transports that can also send and receive
// raw frames, for devices driven by command bytes rather than registers.
type CommandTransport interface {
	Transport
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, buf []byte) error
}

var _ CommandTransport = &I2C{}

// I2C addresses registers by writing a one byte pointer followed by the data.
type I2C struct {
	bus  devices.I2CBus
	addr byte
}

func NewI2C(bus devices.I2CBus, addr byte) *I2C {
	return &I2C{bus: bus, addr: addr}
}

func (t *I2C) Address() byte {
	return t.addr
}

func (t *I2C) ReadRegs(ctx context.Context, reg Addr, buf []byte) error {
	pointer := []byte{byte(reg)}
	if tx, ok := t.bus.(devices.I2CTxBus); ok {
		if err := tx.Tx(ctx, t.addr, pointer, buf); err != nil {
			return fmt.Errorf("combined read of %#02x failed: %w", reg, err)
		}
		return nil
	}
	if err := t.bus.WriteToAddr(ctx, t.addr, pointer); err != nil {
		return fmt.Errorf("could not set register pointer %#02x: %w", reg, err)
	}
	if err := t.bus.ReadFromAddr(ctx, t.addr, buf); err != nil {
		return fmt.Errorf("could not read register %#02x: %w", reg, err)
	}
	return nil
}

func (t *I2C) WriteRegs(ctx context.Context, reg Addr, data []byte) error {
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, byte(reg))
	frame = append(frame, data...)
	return t.Write(ctx, frame)
}

func (t *I2C) Write(ctx context.Context, data []byte) error {
	snsctx.Logger(ctx).Debug("i2c write", "addr", t.addr, "data", data)
	if err := t.bus.WriteToAddr(ctx, t.addr, data); err != nil {
		return fmt.Errorf("could not write to %#02x: %w", t.addr, err)
	}
	return nil
}

func (t *I2C) Read(ctx context.Context, buf []byte) error {
	if err := t.bus.ReadFromAddr(ctx, t.addr, buf); err != nil {
		return fmt.Errorf("could not read from %#02x: %w", t.addr, err)
	}
	snsctx.Logger(ctx).Debug("i2c read", "addr", t.addr, "data", buf)
	return nil
}

var _ CommandTransport = &SPI{}

// SPI implements the common "opcode, address, [dummy], data" register protocol.
type SPI struct {
	conn      devices.SPIConn
	readOp    byte
	writeOp   byte
	addrBytes int
	dummy     int
}

type SPIOpt func(*SPI)

// WithAddrBytes sets the register address width on the wire (1 or 2, big endian).
func WithAddrBytes(n int) SPIOpt {
	return func(s *SPI) {
		s.addrBytes = n
	}
}

// WithDummyBytes sets the number of bytes clocked between address and data on reads.
func WithDummyBytes(n int) SPIOpt {
	return func(s *SPI) {
		s.dummy = n
	}
}

func NewSPI(conn devices.SPIConn, readOp, writeOp byte, opts ...SPIOpt) *SPI {
	s := &SPI{conn: conn, readOp: readOp, writeOp: writeOp, addrBytes: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (t *SPI) header(op byte, reg Addr) []byte {
	h := []byte{op}
	if t.addrBytes == 2 {
		return binary.BigEndian.AppendUint16(h, uint16(reg))
	}
	return append(h, byte(reg))
}

func (t *SPI) ReadRegs(ctx context.Context, reg Addr, buf []byte) error {
	h := t.header(t.readOp, reg)
	skip := len(h) + t.dummy
	w := make([]byte, skip+len(buf))
	copy(w, h)
	r := make([]byte, len(w))
	if err := t.conn.Tx(ctx, w, r); err != nil {
		return fmt.Errorf("could not read register %#04x: %w", reg, err)
	}
	copy(buf, r[skip:])
	return nil
}

func (t *SPI) WriteRegs(ctx context.Context, reg Addr, data []byte) error {
	w := append(t.header(t.writeOp, reg), data...)
	if err := t.conn.Tx(ctx, w, nil); err != nil {
		return fmt.Errorf("could not write register %#04x: %w", reg, err)
	}
	return nil
}

func (t *SPI) Write(ctx context.Context, data []byte) error {
	snsctx.Logger(ctx).Debug("spi write", "data", data)
	if err := t.conn.Tx(ctx, data, nil); err != nil {
		return fmt.Errorf("could not write frame: %w", err)
	}
	return nil
}

// Read performs a full duplex exchange: buf is clocked out and overwritten with the response.
func (t *SPI) Read(ctx context.Context, buf []byte) error {
	w := make([]byte, len(buf))
	copy(w, buf)
	if err := t.conn.Tx(ctx, w, buf); err != nil {
		return fmt.Errorf("could not exchange frame: %w", err)
	}
	snsctx.Logger(ctx).Debug("spi exchange", "out", w, "in", buf)
	return nil
}
