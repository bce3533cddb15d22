// Package regmap implements the register-map driver skeleton shared by every
// device in this module: register transports over I2C and SPI, bit-field
// read-modify-write and a guarded trigger/wait/read measurement handle.
//
// A driver describes its datasheet as a set of Field values and delegates
// bus traffic to a Device:
//
//	d := regmap.New("hdc2080", regmap.NewI2C(bus, 0x40))
//	err := d.Set(ctx, fieldAMM, 0b101)
//	v, err := d.Get(ctx, fieldAMM)
package regmap
