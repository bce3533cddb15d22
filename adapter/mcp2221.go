package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/snsctx"
	"periph.io/x/conn/v3/physic"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// The MCP2221 derives the I2C clock from a 12MHz reference: divider = 12MHz/f - 3.
const (
	clockReference = 12 * physic.MegaHertz
	minSpeed       = 47 * physic.KiloHertz
	maxSpeed       = 400 * physic.KiloHertz
	reportSize     = 64
	maxTransfer    = 60
)

// HID report opcodes.
const (
	cmdStatus            = 0x10
	cmdGetI2CData        = 0x40
	cmdI2CWrite          = 0x90
	cmdI2CRead           = 0x91
	cmdI2CReadRepStart   = 0x93
	cmdI2CWriteNoStop    = 0x94
	statusCancelTransfer = 0x10
	statusSetSpeed       = 0x20
	speedAccepted        = 0x20
)

var ErrCommandFailed = errors.New("command failed")

var (
	_ devices.I2CTxBus    = &MCP2221{}
	_ devices.Initializer = &MCP2221{}
)

// Port is an open HID handle.
type Port interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Opener opens the adapter for a single exchange.
type Opener func() (Port, error)

// MCP2221 is a USB to I2C bridge. Every exchange opens the HID device, writes
// a 64 byte report and reads the 64 byte response.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	open         Opener
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Opt func(*MCP2221)

// WithResponseWait sets the delay between a request and reading its response.
func WithResponseWait(d time.Duration) MCP2221Opt {
	return func(m *MCP2221) {
		m.responseWait = d
	}
}

// WithOpener replaces USB enumeration, e.g. to pick a device or to test.
func WithOpener(o Opener) MCP2221Opt {
	return func(m *MCP2221) {
		m.open = o
	}
}

// WithDeviceIndex selects the n-th enumerated adapter when several are plugged in.
func WithDeviceIndex(n int) MCP2221Opt {
	return WithOpener(func() (Port, error) {
		return openHID(n)
	})
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	m := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		open: func() (Port, error) {
			return openHID(-1)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func openHID(index int) (Port, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification: %d adapters found", len(devs))
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// SpeedDivider returns the divider the adapter needs for bus frequency f.
func SpeedDivider(f physic.Frequency) (byte, error) {
	if f < minSpeed || f > maxSpeed {
		return 0, fmt.Errorf("MCP2221 supports %s to %s, got %s: %w", minSpeed, maxSpeed, f, devices.ErrInvalidArgument)
	}
	return byte(clockReference/f - 3), nil
}

// Init sets the I2C clock from params.Frequency.
func (d *MCP2221) Init(ctx context.Context, params devices.TransportParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	div, err := SpeedDivider(params.Frequency)
	if err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = statusSetSpeed
	d.request[4] = div
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] != speedAccepted {
		snsctx.Logger(ctx).Debug("speed change rejected", "response", d.response[3])
		return fmt.Errorf("speed change rejected, transfer in progress: %w", devices.ErrBusBusy)
	}
	return nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdI2CWrite, address, buffer); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.read(ctx, cmdI2CRead, address, buffer); err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	return nil
}

// Tx writes w without a stop condition and reads r after a repeated start.
func (d *MCP2221) Tx(ctx context.Context, address byte, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdI2CWriteNoStop, address, w); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if err := d.read(ctx, cmdI2CReadRepStart, address, r); err != nil {
		return fmt.Errorf("repeated start read from %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("%d bytes exceed a single report: %w", len(buffer), devices.ErrInvalidArgument)
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return err
	}
	if d.response[1] != 0x00 {
		snsctx.Logger(ctx).Debug("adapter busy")
		return devices.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("%d bytes exceed a single report: %w", len(buffer), devices.ErrInvalidArgument)
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return err
	}
	if d.response[1] != 0x00 {
		return devices.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetI2CData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine: %w", ErrCommandFailed)
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	// 9-10 requested transfer length, 11-12 transferred, 13 buffer counter,
	// 14 speed divider, 15 timeout, 16-17 address, 25 read pending
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

// Release cancels any pending transfer and frees the bus.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = statusCancelTransfer
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			snsctx.Logger(ctx).Debug("could not close adapter", "error", err)
		}
	}()
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		snsctx.Logger(ctx).Debug("sending message to adapter", "request", hex.EncodeToString(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if err := sleep(ctx, d.responseWait); err != nil {
		return err
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		snsctx.Logger(ctx).Debug("read message from adapter", "response", hex.EncodeToString(d.response))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
