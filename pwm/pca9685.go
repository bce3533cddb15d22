// Package pwm contains PWM and LED controller drivers.
package pwm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
	"periph.io/x/conn/v3/physic"
)

const (
	PCA9685Addr = 0x40
	// all call address enabled at power up
	PCA9685AllCallAddr = 0x70

	generalCallAddr = 0x00
	swrst           = 0x06
)

const (
	pca9685Mode1    regmap.Addr = 0x00
	pca9685Mode2    regmap.Addr = 0x01
	pca9685Led0     regmap.Addr = 0x06
	pca9685AllLed   regmap.Addr = 0xFA
	pca9685Prescale regmap.Addr = 0xFE
)

const (
	PCA9685Channels = 16
	// a count of 4096 sets the full on or full off bit
	PCA9685Full     = 4096
	PCA9685MaxDuty  = 4095
	PCA9685Internal = 25 * physic.MegaHertz

	prescaleMin = 3
	prescaleMax = 255
	fullBit     = 1 << 4
)

var (
	PCA9685Restart   = regmap.Bit("restart", pca9685Mode1, 7)
	PCA9685ExtClk    = regmap.Bit("extclk", pca9685Mode1, 6)
	PCA9685AutoInc   = regmap.Bit("ai", pca9685Mode1, 5)
	PCA9685Sleep     = regmap.Bit("sleep", pca9685Mode1, 4)
	PCA9685Sub1      = regmap.Bit("sub1", pca9685Mode1, 3)
	PCA9685Sub2      = regmap.Bit("sub2", pca9685Mode1, 2)
	PCA9685Sub3      = regmap.Bit("sub3", pca9685Mode1, 1)
	PCA9685AllCall   = regmap.Bit("allcall", pca9685Mode1, 0)
	PCA9685Invert    = regmap.Bit("invrt", pca9685Mode2, 4)
	PCA9685OutChange = regmap.Bit("och", pca9685Mode2, 3)
	PCA9685OutDriver = regmap.Bit("outdrv", pca9685Mode2, 2)
	PCA9685OutNotEn  = regmap.Bits("outne", pca9685Mode2, 1, 0).OneOf(0, 1, 2)
	PCA9685PreScale  = regmap.Register("pre_scale", pca9685Prescale)

	PCA9685Registers = regmap.Map{
		PCA9685Restart, PCA9685ExtClk, PCA9685AutoInc, PCA9685Sleep, PCA9685Sub1, PCA9685Sub2, PCA9685Sub3, PCA9685AllCall,
		PCA9685Invert, PCA9685OutChange, PCA9685OutDriver, PCA9685OutNotEn,
		PCA9685PreScale,
	}
)

type PCA9685OutputChange byte

const (
	PCA9685ChangeOnStop PCA9685OutputChange = iota
	PCA9685ChangeOnAck
)

type PCA9685OutputDriver byte

const (
	PCA9685OpenDrain PCA9685OutputDriver = iota
	PCA9685TotemPole
)

// PCA9685OutputNotEnabled selects the output level while OE is high.
type PCA9685OutputNotEnabled byte

const (
	PCA9685OutLow PCA9685OutputNotEnabled = iota
	PCA9685OutHigh
	PCA9685OutHighImpedance
)

type PCA9685Mode1 struct {
	Restart       bool `yaml:"restart"`
	ExternalClock bool `yaml:"external_clock"`
	AutoIncrement bool `yaml:"auto_increment"`
	Sleep         bool `yaml:"sleep"`
	Sub1          bool `yaml:"sub1"`
	Sub2          bool `yaml:"sub2"`
	Sub3          bool `yaml:"sub3"`
	AllCall       bool `yaml:"all_call"`
}

type PCA9685Mode2 struct {
	Invert           bool                    `yaml:"invert"`
	OutputChange     PCA9685OutputChange     `yaml:"output_change"`
	OutputDriver     PCA9685OutputDriver     `yaml:"output_driver"`
	OutputNotEnabled PCA9685OutputNotEnabled `yaml:"output_not_enabled"`
}

// PCA9685Channel holds the on and off counts of a channel, 0..4095 or
// PCA9685Full for the full on or full off state.
type PCA9685Channel struct {
	On  uint16 `yaml:"on"`
	Off uint16 `yaml:"off"`
}

// Duty returns the share of the period the output is high.
func (c PCA9685Channel) Duty() float64 {
	switch {
	case c.Off == PCA9685Full:
		return 0
	case c.On == PCA9685Full:
		return 1
	}
	return float64((int(c.Off)-int(c.On)+PCA9685Full)%PCA9685Full) / PCA9685Full
}

func (c PCA9685Channel) bytes() ([]byte, error) {
	if c.On > PCA9685Full || c.Off > PCA9685Full {
		return nil, fmt.Errorf("pca9685: counts %d/%d exceed %d: %w", c.On, c.Off, PCA9685Full, devices.ErrInvalidArgument)
	}
	return []byte{byte(c.On), countHigh(c.On), byte(c.Off), countHigh(c.Off)}, nil
}

func countHigh(count uint16) byte {
	if count == PCA9685Full {
		return fullBit
	}
	return byte(count>>8) & 0x0F
}

func countFrom(low, high byte) uint16 {
	if high&fullBit != 0 {
		return PCA9685Full
	}
	return uint16(high&0x0F)<<8 | uint16(low)
}

type PCA9685Opt func(*PCA9685)

// WithPCA9685Oscillator sets the clock frequency used for prescale computations,
// needed when EXTCLK is used.
func WithPCA9685Oscillator(f physic.Frequency) PCA9685Opt {
	return func(c *PCA9685) {
		c.oscillator = f
	}
}

// WithPCA9685WakeDelay sets the oscillator start up time waited before a restart.
func WithPCA9685WakeDelay(d time.Duration) PCA9685Opt {
	return func(c *PCA9685) {
		c.wakeDelay = d
	}
}

// PCA9685 is a 16 channel, 12 bit PWM controller.
type PCA9685 struct {
	transport  devices.I2CBus
	addr       byte
	dev        *regmap.Device
	oscillator physic.Frequency
	wakeDelay  time.Duration
}

func NewPCA9685(transport devices.I2CBus, addr byte, opts ...PCA9685Opt) *PCA9685 {
	c := &PCA9685{
		transport:  transport,
		addr:       addr,
		dev:        regmap.New("pca9685", regmap.NewI2C(transport, addr)),
		oscillator: PCA9685Internal,
		wakeDelay:  500 * time.Microsecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init configures the transport and enables register auto increment, which
// channel writes rely on.
func (ctrl *PCA9685) Init(ctx context.Context, params devices.TransportParams) error {
	if err := devices.CheckAddress(params, ctrl.addr); err != nil {
		return fmt.Errorf("pca9685: %w", err)
	}
	if err := devices.InitBus(ctx, ctrl.transport, params); err != nil {
		return fmt.Errorf("pca9685: could not init transport: %w", err)
	}
	return ctrl.SetAutoIncrement(ctx, true)
}

// SoftReset sends SWRST through the general call address. Every device on the
// bus supporting it is reset.
func (ctrl *PCA9685) SoftReset(ctx context.Context) error {
	gc := regmap.New("pca9685", regmap.NewI2C(ctrl.transport, generalCallAddr))
	if err := gc.Command(ctx, swrst); err != nil {
		return fmt.Errorf("could not reset: %w", err)
	}
	return nil
}

func (ctrl *PCA9685) GetMode1(ctx context.Context) (PCA9685Mode1, error) {
	v, err := ctrl.dev.ReadReg(ctx, pca9685Mode1)
	if err != nil {
		return PCA9685Mode1{}, err
	}
	return PCA9685Mode1{
		Restart:       PCA9685Restart.Extract(v) != 0,
		ExternalClock: PCA9685ExtClk.Extract(v) != 0,
		AutoIncrement: PCA9685AutoInc.Extract(v) != 0,
		Sleep:         PCA9685Sleep.Extract(v) != 0,
		Sub1:          PCA9685Sub1.Extract(v) != 0,
		Sub2:          PCA9685Sub2.Extract(v) != 0,
		Sub3:          PCA9685Sub3.Extract(v) != 0,
		AllCall:       PCA9685AllCall.Extract(v) != 0,
	}, nil
}

// SetExternalClock switches to the EXTCLK pin. The device only accepts it in sleep mode
// and it can only be cleared by a reset.
func (ctrl *PCA9685) SetExternalClock(ctx context.Context, on bool) error {
	return ctrl.dev.SetFlag(ctx, PCA9685ExtClk, on)
}

func (ctrl *PCA9685) SetAutoIncrement(ctx context.Context, on bool) error {
	return ctrl.dev.SetFlag(ctx, PCA9685AutoInc, on)
}

func (ctrl *PCA9685) SetSleep(ctx context.Context, on bool) error {
	return ctrl.dev.SetFlag(ctx, PCA9685Sleep, on)
}

// SetSubaddress enables response to I2C subaddress n (1..3).
func (ctrl *PCA9685) SetSubaddress(ctx context.Context, n int, on bool) error {
	fields := []regmap.Field{PCA9685Sub1, PCA9685Sub2, PCA9685Sub3}
	if n < 1 || n > len(fields) {
		return fmt.Errorf("pca9685: subaddress %d: %w", n, devices.ErrInvalidArgument)
	}
	return ctrl.dev.SetFlag(ctx, fields[n-1], on)
}

func (ctrl *PCA9685) SetAllCall(ctx context.Context, on bool) error {
	return ctrl.dev.SetFlag(ctx, PCA9685AllCall, on)
}

// Restart resumes the PWM channels after sleep. It is a no-op unless the
// restart flag is set, and the oscillator must have been running for wakeDelay.
func (ctrl *PCA9685) Restart(ctx context.Context) error {
	ok, err := ctrl.dev.Flag(ctx, PCA9685Restart)
	if err != nil || !ok {
		return err
	}
	return ctrl.dev.SetFlag(ctx, PCA9685Restart, true)
}

func (ctrl *PCA9685) GetMode2(ctx context.Context) (PCA9685Mode2, error) {
	v, err := ctrl.dev.ReadReg(ctx, pca9685Mode2)
	if err != nil {
		return PCA9685Mode2{}, err
	}
	return PCA9685Mode2{
		Invert:           PCA9685Invert.Extract(v) != 0,
		OutputChange:     PCA9685OutputChange(PCA9685OutChange.Extract(v)),
		OutputDriver:     PCA9685OutputDriver(PCA9685OutDriver.Extract(v)),
		OutputNotEnabled: PCA9685OutputNotEnabled(PCA9685OutNotEn.Extract(v)),
	}, nil
}

// SetMode2 writes all output configuration fields at once.
func (ctrl *PCA9685) SetMode2(ctx context.Context, m PCA9685Mode2) error {
	var invert byte
	if m.Invert {
		invert = 1
	}
	return ctrl.dev.Update(ctx,
		regmap.FieldValue{Field: PCA9685Invert, Value: invert},
		regmap.FieldValue{Field: PCA9685OutChange, Value: byte(m.OutputChange)},
		regmap.FieldValue{Field: PCA9685OutDriver, Value: byte(m.OutputDriver)},
		regmap.FieldValue{Field: PCA9685OutNotEn, Value: byte(m.OutputNotEnabled)},
	)
}

func (ctrl *PCA9685) SetInvert(ctx context.Context, on bool) error {
	return ctrl.dev.SetFlag(ctx, PCA9685Invert, on)
}

func (ctrl *PCA9685) SetOutputChange(ctx context.Context, och PCA9685OutputChange) error {
	return ctrl.dev.Set(ctx, PCA9685OutChange, byte(och))
}

func (ctrl *PCA9685) SetOutputDriver(ctx context.Context, drv PCA9685OutputDriver) error {
	return ctrl.dev.Set(ctx, PCA9685OutDriver, byte(drv))
}

func (ctrl *PCA9685) SetOutputNotEnabled(ctx context.Context, outne PCA9685OutputNotEnabled) error {
	return ctrl.dev.Set(ctx, PCA9685OutNotEn, byte(outne))
}

// Prescale computes the prescale register value for f with the given oscillator.
func Prescale(oscillator, f physic.Frequency) (byte, error) {
	if f <= 0 {
		return 0, fmt.Errorf("pca9685: frequency %s: %w", f, devices.ErrInvalidArgument)
	}
	p := math.Round(float64(oscillator)/(4096*float64(f))) - 1
	if p < prescaleMin || p > prescaleMax {
		return 0, fmt.Errorf("pca9685: frequency %s out of range (prescale %.0f): %w", f, p, devices.ErrInvalidArgument)
	}
	return byte(p), nil
}

// SetPWMFrequency changes the output frequency. The prescaler can only be
// written in sleep mode: the controller is put to sleep, reprogrammed, woken
// up and restarted so that channels resume their previous duty cycles.
func (ctrl *PCA9685) SetPWMFrequency(ctx context.Context, f physic.Frequency) error {
	prescale, err := Prescale(ctrl.oscillator, f)
	if err != nil {
		return err
	}
	mode, err := ctrl.dev.ReadReg(ctx, pca9685Mode1)
	if err != nil {
		return fmt.Errorf("could not set frequency: %w", err)
	}
	// writing 0 to restart has no effect, writing 1 would restart before we are ready
	awake := PCA9685Sleep.Insert(PCA9685Restart.Insert(mode, 0), 0)
	steps := []struct {
		reg regmap.Addr
		v   byte
	}{
		{pca9685Mode1, PCA9685Sleep.Insert(awake, 1)},
		{pca9685Prescale, prescale},
		{pca9685Mode1, awake},
	}
	for _, s := range steps {
		if err := ctrl.dev.WriteReg(ctx, s.reg, s.v); err != nil {
			return fmt.Errorf("could not set frequency: %w", err)
		}
	}
	if err := regmap.Settle(ctx, ctrl.wakeDelay); err != nil {
		return err
	}
	return ctrl.dev.WriteReg(ctx, pca9685Mode1, PCA9685Restart.Insert(awake, 1))
}

// GetPWMFrequency computes the output frequency from the prescale register.
func (ctrl *PCA9685) GetPWMFrequency(ctx context.Context) (physic.Frequency, error) {
	p, err := ctrl.dev.Get(ctx, PCA9685PreScale)
	if err != nil {
		return 0, err
	}
	return ctrl.oscillator / physic.Frequency(4096*(int64(p)+1)), nil
}

func channelReg(ch int) (regmap.Addr, error) {
	if ch < 0 || ch >= PCA9685Channels {
		return 0, fmt.Errorf("pca9685: channel %d: %w", ch, devices.ErrInvalidArgument)
	}
	return pca9685Led0 + regmap.Addr(4*ch), nil
}

// SetChannel programs the on and off counts of ch.
func (ctrl *PCA9685) SetChannel(ctx context.Context, ch int, on, off uint16) error {
	reg, err := channelReg(ch)
	if err != nil {
		return err
	}
	data, err := PCA9685Channel{On: on, Off: off}.bytes()
	if err != nil {
		return err
	}
	if err := ctrl.dev.WriteRegs(ctx, reg, data); err != nil {
		return fmt.Errorf("could not set channel %d: %w", ch, err)
	}
	return nil
}

// SetDuty sets the high time of ch to duty counts out of 4096, starting at count 0.
func (ctrl *PCA9685) SetDuty(ctx context.Context, ch int, duty uint16) error {
	if duty > PCA9685MaxDuty {
		return fmt.Errorf("pca9685: duty %d exceeds %d: %w", duty, PCA9685MaxDuty, devices.ErrInvalidArgument)
	}
	if duty == 0 {
		return ctrl.SetFullOff(ctx, ch)
	}
	return ctrl.SetChannel(ctx, ch, 0, duty)
}

func (ctrl *PCA9685) SetFullOn(ctx context.Context, ch int) error {
	return ctrl.SetChannel(ctx, ch, PCA9685Full, 0)
}

func (ctrl *PCA9685) SetFullOff(ctx context.Context, ch int) error {
	return ctrl.SetChannel(ctx, ch, 0, PCA9685Full)
}

func (ctrl *PCA9685) GetChannel(ctx context.Context, ch int) (PCA9685Channel, error) {
	reg, err := channelReg(ch)
	if err != nil {
		return PCA9685Channel{}, err
	}
	b, err := ctrl.dev.ReadRegs(ctx, reg, 4)
	if err != nil {
		return PCA9685Channel{}, fmt.Errorf("could not get channel %d: %w", ch, err)
	}
	return PCA9685Channel{On: countFrom(b[0], b[1]), Off: countFrom(b[2], b[3])}, nil
}

// SetAllChannels loads every channel through the ALL_LED registers.
func (ctrl *PCA9685) SetAllChannels(ctx context.Context, on, off uint16) error {
	data, err := PCA9685Channel{On: on, Off: off}.bytes()
	if err != nil {
		return err
	}
	if err := ctrl.dev.WriteRegs(ctx, pca9685AllLed, data); err != nil {
		return fmt.Errorf("could not set all channels: %w", err)
	}
	return nil
}

// Dump reads the mode and prescale registers.
func (ctrl *PCA9685) Dump(ctx context.Context) (map[string]byte, error) {
	return ctrl.dev.Dump(ctx, PCA9685Registers)
}
