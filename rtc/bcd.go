package rtc

import (
	"fmt"

	"github.com/mklimuk/devices"
)

const bcdUnits = 0b1111

// BCDField describes a packed decimal register field: the units digit lives in
// the low nibble, the tens digit in the bits of Tens.
type BCDField struct {
	Name string
	Tens byte
	Min  int
	Max  int
}

var (
	BCDSeconds = BCDField{Name: "seconds", Tens: 0b111 << 4, Min: 0, Max: 59}
	BCDMinutes = BCDField{Name: "minutes", Tens: 0b111 << 4, Min: 0, Max: 59}
	BCDHours24 = BCDField{Name: "hours", Tens: 0b11 << 4, Min: 0, Max: 23}
	BCDHours12 = BCDField{Name: "hours", Tens: 0b1 << 4, Min: 1, Max: 12}
	BCDDays    = BCDField{Name: "days", Tens: 0b11 << 4, Min: 1, Max: 31}
	BCDMonths  = BCDField{Name: "months", Tens: 0b1 << 4, Min: 1, Max: 12}
	BCDYears   = BCDField{Name: "years", Tens: 0b1111 << 4, Min: 0, Max: 99}
)

// Mask covers both digits of the field. Bits outside it belong to other fields.
func (f BCDField) Mask() byte {
	return f.Tens | bcdUnits
}

// ToBCD encodes v. Values outside [f.Min, f.Max] are rejected.
func ToBCD(f BCDField, v int) (byte, error) {
	if v < f.Min || v > f.Max {
		return 0, fmt.Errorf("%s: %d outside [%d, %d]: %w", f.Name, v, f.Min, f.Max, devices.ErrInvalidArgument)
	}
	return byte(v/10)<<4&f.Tens | byte(v%10), nil
}

// FromBCD decodes the digits of f found in b, ignoring all other bits.
// Nibbles above 9 or values outside the field range are rejected.
func FromBCD(f BCDField, b byte) (int, error) {
	tens := (b & f.Tens) >> 4
	units := b & bcdUnits
	if units > 9 {
		return 0, fmt.Errorf("%s: %#02x is not a bcd value: %w", f.Name, b&f.Mask(), devices.ErrInvalidArgument)
	}
	v := int(tens)*10 + int(units)
	if v < f.Min || v > f.Max {
		return 0, fmt.Errorf("%s: decoded %d outside [%d, %d]: %w", f.Name, v, f.Min, f.Max, devices.ErrInvalidArgument)
	}
	return v, nil
}
