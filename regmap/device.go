package regmap

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/devices"
)

// Device binds a Transport to a device name used in error messages.
// It holds no register cache: every Get/Set goes to the bus.
type Device struct {
	name string
	t    Transport
}

func New(name string, t Transport) *Device {
	return &Device{name: name, t: t}
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Transport() Transport {
	return d.t
}

func (d *Device) ReadReg(ctx context.Context, reg Addr) (byte, error) {
	var buf [1]byte
	if err := d.t.ReadRegs(ctx, reg, buf[:]); err != nil {
		return 0, fmt.Errorf("%s: %w", d.name, devices.BusError(err))
	}
	return buf[0], nil
}

func (d *Device) ReadRegs(ctx context.Context, reg Addr, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := d.t.ReadRegs(ctx, reg, buf); err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, devices.BusError(err))
	}
	return buf, nil
}

func (d *Device) WriteReg(ctx context.Context, reg Addr, v byte) error {
	return d.WriteRegs(ctx, reg, []byte{v})
}

func (d *Device) WriteRegs(ctx context.Context, reg Addr, data []byte) error {
	if err := d.t.WriteRegs(ctx, reg, data); err != nil {
		return fmt.Errorf("%s: %w", d.name, devices.BusError(err))
	}
	return nil
}

// Get reads the register holding f and returns the field value.
func (d *Device) Get(ctx context.Context, f Field) (byte, error) {
	reg, err := d.ReadReg(ctx, f.Reg)
	if err != nil {
		return 0, fmt.Errorf("could not get %s: %w", f.Name, err)
	}
	return f.Extract(reg), nil
}

// Set validates v, then writes it into f. Sibling fields of the same register are
// preserved with a read-modify-write unless f spans the whole register.
// Invalid values never reach the bus.
func (d *Device) Set(ctx context.Context, f Field, v byte) error {
	if err := f.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}
	if f.Whole() {
		return d.WriteReg(ctx, f.Reg, v)
	}
	reg, err := d.ReadReg(ctx, f.Reg)
	if err != nil {
		return fmt.Errorf("could not set %s: %w", f.Name, err)
	}
	return d.WriteReg(ctx, f.Reg, f.Insert(reg, v))
}

// FieldValue pairs a field with the value to store in it.
type FieldValue struct {
	Field Field
	Value byte
}

// Update stores several fields of one register with a single read-modify-write.
// All values are validated before any bus traffic.
func (d *Device) Update(ctx context.Context, values ...FieldValue) error {
	if len(values) == 0 {
		return nil
	}
	reg := values[0].Field.Reg
	for _, fv := range values {
		if fv.Field.Reg != reg {
			return fmt.Errorf("%s: %s is not in register %#02x: %w", d.name, fv.Field.Name, reg, devices.ErrInvalidArgument)
		}
		if err := fv.Field.Validate(fv.Value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	v, err := d.ReadReg(ctx, reg)
	if err != nil {
		return fmt.Errorf("could not update register %#02x: %w", reg, err)
	}
	for _, fv := range values {
		v = fv.Field.Insert(v, fv.Value)
	}
	return d.WriteReg(ctx, reg, v)
}

// SetFlag is Set for single bit fields.
func (d *Device) SetFlag(ctx context.Context, f Field, on bool) error {
	var v byte
	if on {
		v = 1
	}
	return d.Set(ctx, f, v)
}

func (d *Device) Flag(ctx context.Context, f Field) (bool, error) {
	v, err := d.Get(ctx, f)
	return v != 0, err
}

// CheckID reads len(expected) bytes starting at reg and compares them with expected.
func (d *Device) CheckID(ctx context.Context, reg Addr, expected []byte) error {
	got, err := d.ReadRegs(ctx, reg, len(expected))
	if err != nil {
		return fmt.Errorf("could not read id: %w", err)
	}
	if !bytes.Equal(got, expected) {
		return fmt.Errorf("%s: id register %#02x: expected %#x, got %#x: %w", d.name, reg, expected, got, devices.ErrUnexpectedDeviceID)
	}
	return nil
}

// Command writes a raw frame. Only valid for command capable transports.
func (d *Device) Command(ctx context.Context, frame ...byte) error {
	ct, ok := d.t.(CommandTransport)
	if !ok {
		return fmt.Errorf("%s: transport does not support raw commands: %w", d.name, devices.ErrInvalidArgument)
	}
	if err := ct.Write(ctx, frame); err != nil {
		return fmt.Errorf("%s: %w", d.name, devices.BusError(err))
	}
	return nil
}

// ReadRaw reads a raw frame of len(buf) bytes (I2C) or exchanges buf (SPI).
func (d *Device) ReadRaw(ctx context.Context, buf []byte) error {
	ct, ok := d.t.(CommandTransport)
	if !ok {
		return fmt.Errorf("%s: transport does not support raw reads: %w", d.name, devices.ErrInvalidArgument)
	}
	if err := ct.Read(ctx, buf); err != nil {
		return fmt.Errorf("%s: %w", d.name, devices.BusError(err))
	}
	return nil
}

// Dump reads every field of m.
func (d *Device) Dump(ctx context.Context, m Map) (map[string]byte, error) {
	regs := make(map[Addr]byte)
	for _, addr := range m.Registers() {
		v, err := d.ReadReg(ctx, addr)
		if err != nil {
			return nil, err
		}
		regs[addr] = v
	}
	res := make(map[string]byte, len(m))
	for _, f := range m {
		res[f.Name] = f.Extract(regs[f.Reg])
	}
	return res, nil
}

// Settle blocks for d or until ctx is done. Drivers use it for explicit post-reset delays.
func Settle(ctx context.Context, d time.Duration) error {
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
