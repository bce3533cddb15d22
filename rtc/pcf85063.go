// Package rtc contains real time clock drivers.
package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
)

const PCF85063Addr = 0b1010001

const (
	pcf85063Control1 regmap.Addr = 0x00
	pcf85063Control2 regmap.Addr = 0x01
	pcf85063Offset   regmap.Addr = 0x02
	pcf85063RAMByte  regmap.Addr = 0x03
	pcf85063Seconds  regmap.Addr = 0x04
	pcf85063Minutes  regmap.Addr = 0x05
	pcf85063Hours    regmap.Addr = 0x06
	pcf85063Days     regmap.Addr = 0x07
	pcf85063Weekdays regmap.Addr = 0x08
	pcf85063Months   regmap.Addr = 0x09
	pcf85063Years    regmap.Addr = 0x0A

	// writing this pattern to Control_1 starts the reset sequence
	pcf85063ResetPattern = 0x58
	pcf85063Century      = 2000
)

var (
	PCF85063ExtTest       = regmap.Bit("ext_test", pcf85063Control1, 7)
	PCF85063Stop          = regmap.Bit("stop", pcf85063Control1, 5)
	PCF85063CorrectionIE  = regmap.Bit("cie", pcf85063Control1, 2)
	PCF85063HourFormat    = regmap.Bit("12_24", pcf85063Control1, 1)
	PCF85063CapSel        = regmap.Bit("cap_sel", pcf85063Control1, 0)
	PCF85063MinuteInt     = regmap.Bit("mi", pcf85063Control2, 5)
	PCF85063HalfMinInt    = regmap.Bit("hmi", pcf85063Control2, 4)
	PCF85063TimerFlag     = regmap.Bit("tf", pcf85063Control2, 3)
	PCF85063ClockOut      = regmap.Bits("cof", pcf85063Control2, 2, 0)
	PCF85063OffsetModeBit = regmap.Bit("mode", pcf85063Offset, 7)
	PCF85063OffsetValue   = regmap.Bits("offset", pcf85063Offset, 6, 0)
	PCF85063RAM           = regmap.Register("ram_byte", pcf85063RAMByte)
	PCF85063OscStop       = regmap.Bit("os", pcf85063Seconds, 7)
	PCF85063AMPM          = regmap.Bit("ampm", pcf85063Hours, 5)
	PCF85063Weekday       = regmap.Bits("weekdays", pcf85063Weekdays, 2, 0).OneOf(0, 1, 2, 3, 4, 5, 6)

	PCF85063Registers = regmap.Map{
		PCF85063ExtTest, PCF85063Stop, PCF85063CorrectionIE, PCF85063HourFormat, PCF85063CapSel,
		PCF85063MinuteInt, PCF85063HalfMinInt, PCF85063TimerFlag, PCF85063ClockOut,
		PCF85063OffsetModeBit, PCF85063OffsetValue, PCF85063RAM,
		PCF85063OscStop,
		regmap.Register("minutes", pcf85063Minutes),
		regmap.Register("hours", pcf85063Hours),
		regmap.Register("days", pcf85063Days),
		PCF85063Weekday,
		regmap.Register("months", pcf85063Months),
		regmap.Register("years", pcf85063Years),
	}
)

type PCF85063HourMode byte

const (
	PCF85063Mode24Hour PCF85063HourMode = iota
	PCF85063Mode12Hour
)

func (m PCF85063HourMode) String() string {
	if m == PCF85063Mode12Hour {
		return "12h"
	}
	return "24h"
}

type PCF85063RTCMode byte

const (
	PCF85063ClockRuns PCF85063RTCMode = iota
	PCF85063ClockStopped
)

type PCF85063Capacitor byte

const (
	PCF85063Cap7pF PCF85063Capacitor = iota
	PCF85063Cap12_5pF
)

// PCF85063ClockOutput selects the CLKOUT pin frequency.
type PCF85063ClockOutput byte

const (
	PCF85063ClkOut32768Hz PCF85063ClockOutput = iota
	PCF85063ClkOut16384Hz
	PCF85063ClkOut8192Hz
	PCF85063ClkOut4096Hz
	PCF85063ClkOut2048Hz
	PCF85063ClkOut1024Hz
	PCF85063ClkOut1Hz
	PCF85063ClkOutLow
)

type PCF85063OffsetMode byte

const (
	// correction every two hours
	PCF85063OffsetNormal PCF85063OffsetMode = iota
	// correction every four minutes
	PCF85063OffsetCoarse
)

const (
	PCF85063OffsetMin = -64
	PCF85063OffsetMax = 63
)

// PCF85063Time is the content of the seconds, minutes and hours registers.
// In 12 hour mode Hours is 1..12 and PM carries the AM/PM indicator.
type PCF85063Time struct {
	Mode              PCF85063HourMode `yaml:"mode"`
	PM                bool             `yaml:"pm"`
	Hours             int              `yaml:"hours"`
	Minutes           int              `yaml:"minutes"`
	Seconds           int              `yaml:"seconds"`
	OscillatorStopped bool             `yaml:"oscillator_stopped"`
}

// Hour24 returns the hour in 0..23 regardless of the mode.
func (t PCF85063Time) Hour24() int {
	if t.Mode == PCF85063Mode24Hour {
		return t.Hours
	}
	h := t.Hours % 12
	if t.PM {
		h += 12
	}
	return h
}

func (t PCF85063Time) String() string {
	if t.Mode == PCF85063Mode12Hour {
		suffix := "AM"
		if t.PM {
			suffix = "PM"
		}
		return fmt.Sprintf("%02d:%02d:%02d %s", t.Hours, t.Minutes, t.Seconds, suffix)
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds)
}

type PCF85063Opt func(*PCF85063)

// WithPCF85063ResetDelay waits d after a software reset.
func WithPCF85063ResetDelay(d time.Duration) PCF85063Opt {
	return func(c *PCF85063) {
		c.resetDelay = d
	}
}

// PCF85063 is a real time clock and calendar with one byte of RAM.
type PCF85063 struct {
	transport  devices.I2CBus
	dev        *regmap.Device
	resetDelay time.Duration
}

func NewPCF85063(transport devices.I2CBus, opts ...PCF85063Opt) *PCF85063 {
	c := &PCF85063{
		transport: transport,
		dev:       regmap.New("pcf85063", regmap.NewI2C(transport, PCF85063Addr)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init configures the transport. The clock has no identification register.
func (clock *PCF85063) Init(ctx context.Context, params devices.TransportParams) error {
	if err := devices.CheckAddress(params, PCF85063Addr); err != nil {
		return fmt.Errorf("pcf85063: %w", err)
	}
	if err := devices.InitBus(ctx, clock.transport, params); err != nil {
		return fmt.Errorf("pcf85063: could not init transport: %w", err)
	}
	return nil
}

// SetTestMode selects the external clock test mode.
func (clock *PCF85063) SetTestMode(ctx context.Context, external bool) error {
	return clock.dev.SetFlag(ctx, PCF85063ExtTest, external)
}

func (clock *PCF85063) SetRTCMode(ctx context.Context, mode PCF85063RTCMode) error {
	return clock.dev.Set(ctx, PCF85063Stop, byte(mode))
}

func (clock *PCF85063) SoftwareReset(ctx context.Context) error {
	if err := clock.dev.WriteReg(ctx, pcf85063Control1, pcf85063ResetPattern); err != nil {
		return fmt.Errorf("could not reset: %w", err)
	}
	return regmap.Settle(ctx, clock.resetDelay)
}

func (clock *PCF85063) SetCorrectionInterruptMode(ctx context.Context, enabled bool) error {
	return clock.dev.SetFlag(ctx, PCF85063CorrectionIE, enabled)
}

func (clock *PCF85063) Set12_24HourMode(ctx context.Context, mode PCF85063HourMode) error {
	return clock.dev.Set(ctx, PCF85063HourFormat, byte(mode))
}

func (clock *PCF85063) Get12_24HourMode(ctx context.Context) (PCF85063HourMode, error) {
	v, err := clock.dev.Get(ctx, PCF85063HourFormat)
	return PCF85063HourMode(v), err
}

func (clock *PCF85063) SetInternalOscillatorCapacitor(ctx context.Context, c PCF85063Capacitor) error {
	return clock.dev.Set(ctx, PCF85063CapSel, byte(c))
}

// SetMinuteInterrupts enables or disables the minute and half minute interrupts.
func (clock *PCF85063) SetMinuteInterrupts(ctx context.Context, minute, halfMinute bool) error {
	return clock.dev.Update(ctx,
		regmap.FieldValue{Field: PCF85063MinuteInt, Value: boolBit(minute)},
		regmap.FieldValue{Field: PCF85063HalfMinInt, Value: boolBit(halfMinute)},
	)
}

func (clock *PCF85063) GetTimerFlag(ctx context.Context) (bool, error) {
	return clock.dev.Flag(ctx, PCF85063TimerFlag)
}

func (clock *PCF85063) ClearTimerFlag(ctx context.Context) error {
	return clock.dev.SetFlag(ctx, PCF85063TimerFlag, false)
}

func (clock *PCF85063) SetClockOutputFrequency(ctx context.Context, f PCF85063ClockOutput) error {
	return clock.dev.Set(ctx, PCF85063ClockOut, byte(f))
}

// SetOffset programs the aging offset, a 7 bit two's complement value.
func (clock *PCF85063) SetOffset(ctx context.Context, mode PCF85063OffsetMode, offset int8) error {
	if offset < PCF85063OffsetMin || offset > PCF85063OffsetMax {
		return fmt.Errorf("pcf85063: offset %d outside [%d, %d]: %w", offset, PCF85063OffsetMin, PCF85063OffsetMax, devices.ErrInvalidArgument)
	}
	if mode > PCF85063OffsetCoarse {
		return fmt.Errorf("pcf85063: offset mode %d: %w", mode, devices.ErrInvalidArgument)
	}
	v := PCF85063OffsetModeBit.Insert(0, byte(mode))
	v = PCF85063OffsetValue.Insert(v, byte(offset)&PCF85063OffsetValue.Mask)
	return clock.dev.WriteReg(ctx, pcf85063Offset, v)
}

func (clock *PCF85063) GetOffset(ctx context.Context) (PCF85063OffsetMode, int8, error) {
	v, err := clock.dev.ReadReg(ctx, pcf85063Offset)
	if err != nil {
		return 0, 0, err
	}
	// sign extend bit 6
	offset := int8(PCF85063OffsetValue.Extract(v)<<1) >> 1
	return PCF85063OffsetMode(PCF85063OffsetModeBit.Extract(v)), offset, nil
}

func (clock *PCF85063) WriteByteRAM(ctx context.Context, b byte) error {
	return clock.dev.Set(ctx, PCF85063RAM, b)
}

func (clock *PCF85063) ReadByteRAM(ctx context.Context) (byte, error) {
	return clock.dev.Get(ctx, PCF85063RAM)
}

// CheckOscillatorClockIntegrityFlag reports true when the oscillator has stopped
// since the flag was last cleared and the time can not be trusted.
func (clock *PCF85063) CheckOscillatorClockIntegrityFlag(ctx context.Context) (bool, error) {
	return clock.dev.Flag(ctx, PCF85063OscStop)
}

func (clock *PCF85063) ClearOscillatorClockIntegrityFlag(ctx context.Context) error {
	return clock.dev.SetFlag(ctx, PCF85063OscStop, false)
}

// SetAMPMIndicator is only meaningful in 12 hour mode.
func (clock *PCF85063) SetAMPMIndicator(ctx context.Context, pm bool) error {
	return clock.dev.SetFlag(ctx, PCF85063AMPM, pm)
}

func (clock *PCF85063) GetAMPMIndicator(ctx context.Context) (bool, error) {
	return clock.dev.Flag(ctx, PCF85063AMPM)
}

func (clock *PCF85063) getBCD(ctx context.Context, reg regmap.Addr, f BCDField) (int, error) {
	v, err := clock.dev.ReadReg(ctx, reg)
	if err != nil {
		return 0, err
	}
	return FromBCD(f, v)
}

func (clock *PCF85063) setBCD(ctx context.Context, reg regmap.Addr, f BCDField, v int) error {
	b, err := ToBCD(f, v)
	if err != nil {
		return fmt.Errorf("pcf85063: %w", err)
	}
	return clock.dev.WriteReg(ctx, reg, b)
}

func (clock *PCF85063) GetDay(ctx context.Context) (int, error) {
	return clock.getBCD(ctx, pcf85063Days, BCDDays)
}

func (clock *PCF85063) SetDay(ctx context.Context, day int) error {
	return clock.setBCD(ctx, pcf85063Days, BCDDays, day)
}

// GetWeekday returns the weekday counter, 0 is Sunday.
func (clock *PCF85063) GetWeekday(ctx context.Context) (time.Weekday, error) {
	v, err := clock.dev.Get(ctx, PCF85063Weekday)
	if err != nil {
		return 0, err
	}
	if PCF85063Weekday.Validate(v) != nil {
		return 0, fmt.Errorf("pcf85063: weekday register holds %d: %w", v, devices.ErrInvalidArgument)
	}
	return time.Weekday(v), nil
}

func (clock *PCF85063) SetWeekday(ctx context.Context, day time.Weekday) error {
	if day < time.Sunday || day > time.Saturday {
		return fmt.Errorf("pcf85063: weekday %d: %w", day, devices.ErrInvalidArgument)
	}
	return clock.dev.Set(ctx, PCF85063Weekday, byte(day))
}

func (clock *PCF85063) GetMonth(ctx context.Context) (time.Month, error) {
	v, err := clock.getBCD(ctx, pcf85063Months, BCDMonths)
	return time.Month(v), err
}

func (clock *PCF85063) SetMonth(ctx context.Context, month time.Month) error {
	return clock.setBCD(ctx, pcf85063Months, BCDMonths, int(month))
}

// GetYear returns the two digit year, 0..99.
func (clock *PCF85063) GetYear(ctx context.Context) (int, error) {
	return clock.getBCD(ctx, pcf85063Years, BCDYears)
}

func (clock *PCF85063) SetYear(ctx context.Context, year int) error {
	return clock.setBCD(ctx, pcf85063Years, BCDYears, year)
}

// GetTime reads Control_1 through the hours register in one transaction so the
// hour mode and the time are consistent.
func (clock *PCF85063) GetTime(ctx context.Context) (PCF85063Time, error) {
	regs, err := clock.dev.ReadRegs(ctx, pcf85063Control1, int(pcf85063Hours-pcf85063Control1)+1)
	if err != nil {
		return PCF85063Time{}, fmt.Errorf("could not read time: %w", err)
	}
	mode := PCF85063HourMode(PCF85063HourFormat.Extract(regs[pcf85063Control1]))
	return decodeTime(mode, regs[pcf85063Seconds:])
}

// SetTime writes seconds, minutes and hours in one transaction, which also
// clears the oscillator stop flag. t.Mode must match the mode set with
// Set12_24HourMode.
func (clock *PCF85063) SetTime(ctx context.Context, t PCF85063Time) error {
	regs, err := encodeTime(t)
	if err != nil {
		return fmt.Errorf("pcf85063: %w", err)
	}
	return clock.dev.WriteRegs(ctx, pcf85063Seconds, regs)
}

// GetDateTime reads the whole calendar in one transaction. The result is in UTC.
func (clock *PCF85063) GetDateTime(ctx context.Context) (time.Time, error) {
	regs, err := clock.dev.ReadRegs(ctx, pcf85063Control1, int(pcf85063Years-pcf85063Control1)+1)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not read date: %w", err)
	}
	mode := PCF85063HourMode(PCF85063HourFormat.Extract(regs[pcf85063Control1]))
	t, err := decodeTime(mode, regs[pcf85063Seconds:])
	if err != nil {
		return time.Time{}, err
	}
	if t.OscillatorStopped {
		return time.Time{}, fmt.Errorf("pcf85063: oscillator stopped, clock integrity not guaranteed: %w", devices.ErrNotReady)
	}
	day, err := FromBCD(BCDDays, regs[pcf85063Days])
	if err != nil {
		return time.Time{}, fmt.Errorf("pcf85063: %w", err)
	}
	month, err := FromBCD(BCDMonths, regs[pcf85063Months])
	if err != nil {
		return time.Time{}, fmt.Errorf("pcf85063: %w", err)
	}
	year, err := FromBCD(BCDYears, regs[pcf85063Years])
	if err != nil {
		return time.Time{}, fmt.Errorf("pcf85063: %w", err)
	}
	return time.Date(pcf85063Century+year, time.Month(month), day, t.Hour24(), t.Minutes, t.Seconds, 0, time.UTC), nil
}

// SetDateTime writes t (converted to UTC) in the current hour mode. Only years
// 2000..2099 are representable.
func (clock *PCF85063) SetDateTime(ctx context.Context, t time.Time) error {
	t = t.UTC()
	if t.Year() < pcf85063Century || t.Year() > pcf85063Century+BCDYears.Max {
		return fmt.Errorf("pcf85063: year %d not representable: %w", t.Year(), devices.ErrInvalidArgument)
	}
	mode, err := clock.Get12_24HourMode(ctx)
	if err != nil {
		return err
	}
	regs, err := encodeTime(TimeOf(t, mode))
	if err != nil {
		return fmt.Errorf("pcf85063: %w", err)
	}
	// BCD encoding of values taken from a valid time.Time can not fail
	day, _ := ToBCD(BCDDays, t.Day())
	month, _ := ToBCD(BCDMonths, int(t.Month()))
	year, _ := ToBCD(BCDYears, t.Year()-pcf85063Century)
	regs = append(regs, day, byte(t.Weekday()), month, year)
	return clock.dev.WriteRegs(ctx, pcf85063Seconds, regs)
}

// Dump reads every field of the register map.
func (clock *PCF85063) Dump(ctx context.Context) (map[string]byte, error) {
	return clock.dev.Dump(ctx, PCF85063Registers)
}

// TimeOf returns the time of day of t expressed in mode.
func TimeOf(t time.Time, mode PCF85063HourMode) PCF85063Time {
	res := PCF85063Time{Mode: mode, Hours: t.Hour(), Minutes: t.Minute(), Seconds: t.Second()}
	if mode == PCF85063Mode12Hour {
		res.PM = t.Hour() >= 12
		res.Hours = t.Hour() % 12
		if res.Hours == 0 {
			res.Hours = 12
		}
	}
	return res
}

func hoursField(mode PCF85063HourMode) BCDField {
	if mode == PCF85063Mode12Hour {
		return BCDHours12
	}
	return BCDHours24
}

func decodeTime(mode PCF85063HourMode, regs []byte) (PCF85063Time, error) {
	t := PCF85063Time{Mode: mode, OscillatorStopped: PCF85063OscStop.Extract(regs[0]) != 0}
	var err error
	if t.Seconds, err = FromBCD(BCDSeconds, regs[0]); err != nil {
		return PCF85063Time{}, fmt.Errorf("pcf85063: %w", err)
	}
	if t.Minutes, err = FromBCD(BCDMinutes, regs[1]); err != nil {
		return PCF85063Time{}, fmt.Errorf("pcf85063: %w", err)
	}
	if t.Hours, err = FromBCD(hoursField(mode), regs[2]); err != nil {
		return PCF85063Time{}, fmt.Errorf("pcf85063: %w", err)
	}
	if mode == PCF85063Mode12Hour {
		t.PM = PCF85063AMPM.Extract(regs[2]) != 0
	}
	return t, nil
}

func encodeTime(t PCF85063Time) ([]byte, error) {
	if t.Mode > PCF85063Mode12Hour {
		return nil, fmt.Errorf("hour mode %d: %w", t.Mode, devices.ErrInvalidArgument)
	}
	sec, err := ToBCD(BCDSeconds, t.Seconds)
	if err != nil {
		return nil, err
	}
	minutes, err := ToBCD(BCDMinutes, t.Minutes)
	if err != nil {
		return nil, err
	}
	hours, err := ToBCD(hoursField(t.Mode), t.Hours)
	if err != nil {
		return nil, err
	}
	if t.Mode == PCF85063Mode12Hour && t.PM {
		hours = PCF85063AMPM.Insert(hours, 1)
	}
	return []byte{sec, minutes, hours}, nil
}

func boolBit(on bool) byte {
	if on {
		return 1
	}
	return 0
}
