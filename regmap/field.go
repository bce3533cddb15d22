package regmap

import (
	"fmt"
	"slices"

	"github.com/mklimuk/devices"
)

// Addr is a register address or command code. 8-bit devices only use the low byte.
type Addr uint16

// Field is a masked sub-range of a register.
type Field struct {
	Name  string
	Reg   Addr
	Mask  byte
	Shift uint8
	// Valid optionally restricts the field to an enumerated set of (unshifted) values.
	Valid []byte
}

// Max returns the largest value the field can hold.
func (f Field) Max() byte {
	return f.Mask >> f.Shift
}

// Whole reports whether the field spans the entire register.
func (f Field) Whole() bool {
	return f.Mask == 0xFF
}

func (f Field) Validate(v byte) error {
	if v > f.Max() {
		return fmt.Errorf("%s: value %d exceeds maximum %d: %w", f.Name, v, f.Max(), devices.ErrInvalidArgument)
	}
	if len(f.Valid) > 0 && !slices.Contains(f.Valid, v) {
		return fmt.Errorf("%s: value %#x is not one of %#x: %w", f.Name, v, f.Valid, devices.ErrInvalidArgument)
	}
	return nil
}

// Insert replaces the field bits in reg with v, preserving all other bits.
func (f Field) Insert(reg, v byte) byte {
	return reg&^f.Mask | (v<<f.Shift)&f.Mask
}

// Extract isolates the field value from reg.
func (f Field) Extract(reg byte) byte {
	return (reg & f.Mask) >> f.Shift
}

// Bit describes a single bit field.
func Bit(name string, reg Addr, bit uint8) Field {
	return Field{Name: name, Reg: reg, Mask: 1 << bit, Shift: bit}
}

// Bits describes a contiguous field spanning bits [lo, hi].
func Bits(name string, reg Addr, hi, lo uint8) Field {
	width := hi - lo + 1
	return Field{Name: name, Reg: reg, Mask: byte((1<<width)-1) << lo, Shift: lo}
}

// Register describes a field occupying the full register.
func Register(name string, reg Addr) Field {
	return Field{Name: name, Reg: reg, Mask: 0xFF}
}

// OneOf returns a copy of f restricted to the given values.
func (f Field) OneOf(values ...byte) Field {
	f.Valid = values
	return f
}

// Map is an ordered register map description.
type Map []Field

func (m Map) Lookup(name string) (Field, bool) {
	for _, f := range m {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Registers returns the distinct register addresses of the map in order of appearance.
func (m Map) Registers() []Addr {
	var regs []Addr
	for _, f := range m {
		if !slices.Contains(regs, f.Reg) {
			regs = append(regs, f.Reg)
		}
	}
	return regs
}
