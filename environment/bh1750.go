package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
)

const BH1750AddrHigh = 0b1011100
const BH1750AddrLow = 0b0100011

type BH1750Mode byte

const (
	BH1750ContinuousHigh  BH1750Mode = 0b00010000
	BH1750ContinuousHigh2 BH1750Mode = 0b00010001
	BH1750ContinuousLow   BH1750Mode = 0b00010011
	BH1750OneTimeHigh     BH1750Mode = 0b00100000
	BH1750OneTimeHigh2    BH1750Mode = 0b00100001
	BH1750OneTimeLow      BH1750Mode = 0b00100011
)

func (m BH1750Mode) Valid() bool {
	switch m {
	case BH1750ContinuousHigh, BH1750ContinuousHigh2, BH1750ContinuousLow,
		BH1750OneTimeHigh, BH1750OneTimeHigh2, BH1750OneTimeLow:
		return true
	}
	return false
}

// LowResolution reports 4 lx resolution modes.
func (m BH1750Mode) LowResolution() bool {
	return m == BH1750ContinuousLow || m == BH1750OneTimeLow
}

// HighResolution2 reports 0.5 lx resolution modes.
func (m BH1750Mode) HighResolution2() bool {
	return m == BH1750ContinuousHigh2 || m == BH1750OneTimeHigh2
}

func (m BH1750Mode) String() string {
	switch m {
	case BH1750ContinuousHigh:
		return "continuous-h"
	case BH1750ContinuousHigh2:
		return "continuous-h2"
	case BH1750ContinuousLow:
		return "continuous-l"
	case BH1750OneTimeHigh:
		return "one-time-h"
	case BH1750OneTimeHigh2:
		return "one-time-h2"
	case BH1750OneTimeLow:
		return "one-time-l"
	default:
		return fmt.Sprintf("mode(%#02x)", byte(m))
	}
}

// ParseBH1750Mode is the inverse of BH1750Mode.String.
func ParseBH1750Mode(s string) (BH1750Mode, error) {
	for _, m := range []BH1750Mode{BH1750ContinuousHigh, BH1750ContinuousHigh2, BH1750ContinuousLow,
		BH1750OneTimeHigh, BH1750OneTimeHigh2, BH1750OneTimeLow} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown bh1750 mode %q: %w", s, devices.ErrInvalidArgument)
}

const (
	bh1750PowerDown = 0b00000000
	bh1750PowerOn   = 0b00000001
	bh1750Reset     = 0b00000111

	// measurement time register (sensitivity) bounds and default
	bh1750MTregMin     = 31
	bh1750MTregMax     = 254
	bh1750MTregDefault = 69
)

// maximum conversion times at the default sensitivity
const (
	bh1750HighResTime = 180 * time.Millisecond
	bh1750LowResTime  = 24 * time.Millisecond
)

type BH1750Opt func(*BH1750)

// WithBH1750Mode sets the mode GetLux measures in (default one-time L).
func WithBH1750Mode(mode BH1750Mode) BH1750Opt {
	return func(s *BH1750) {
		s.lightMode = mode
	}
}

// WithBH1750MeasurementOpts passes options to every measurement handle (e.g. a shorter poll interval).
func WithBH1750MeasurementOpts(opts ...regmap.MeasurementOpt) BH1750Opt {
	return func(s *BH1750) {
		s.measurementOpts = append(s.measurementOpts, opts...)
	}
}

// BH1750 is an ambient light sensor. It has no registers: every operation is an
// opcode write, results are read back as a 2 byte big endian word.
type BH1750 struct {
	mx              sync.Mutex
	transport       devices.I2CBus
	dev             *regmap.Device
	addr            byte
	mode            BH1750Mode
	sensitivity     byte
	lightMode       BH1750Mode
	measurementOpts []regmap.MeasurementOpt
}

func NewBH1750(transport devices.I2CBus, addr byte, opts ...BH1750Opt) *BH1750 {
	s := &BH1750{
		addr:        addr,
		transport:   transport,
		dev:         regmap.New("bh1750", regmap.NewI2C(transport, addr)),
		sensitivity: bh1750MTregDefault,
		lightMode:   BH1750OneTimeLow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init configures the transport. The sensor has no identification register.
func (sensor *BH1750) Init(ctx context.Context, params devices.TransportParams) error {
	if err := devices.CheckAddress(params, sensor.addr); err != nil {
		return fmt.Errorf("bh1750: %w", err)
	}
	if err := devices.InitBus(ctx, sensor.transport, params); err != nil {
		return fmt.Errorf("bh1750: could not init transport: %w", err)
	}
	return nil
}

func (sensor *BH1750) PowerDown(ctx context.Context) error {
	return sensor.dev.Command(ctx, bh1750PowerDown)
}

func (sensor *BH1750) PowerOn(ctx context.Context) error {
	return sensor.dev.Command(ctx, bh1750PowerOn)
}

// ResetDataRegister clears the illuminance register. It is only accepted in power on state.
func (sensor *BH1750) ResetDataRegister(ctx context.Context) error {
	return sensor.dev.Command(ctx, bh1750Reset)
}

// SetSensitivity writes the measurement time register (MTreg, 31..254, default 69).
// Higher values lengthen the conversion and increase resolution.
func (sensor *BH1750) SetSensitivity(ctx context.Context, mt byte) error {
	if mt < bh1750MTregMin || mt > bh1750MTregMax {
		return fmt.Errorf("bh1750: sensitivity %d outside [%d, %d]: %w", mt, bh1750MTregMin, bh1750MTregMax, devices.ErrInvalidArgument)
	}
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	if err := sensor.dev.Command(ctx, sensitivityFrame(mt)...); err != nil {
		return fmt.Errorf("could not set sensitivity: %w", err)
	}
	sensor.sensitivity = mt
	return nil
}

func sensitivityFrame(mt byte) []byte {
	return []byte{0b01000000 | mt>>5, 0b01100000 | mt&0b00011111}
}

// Sensitivity returns the last successfully written MTreg value.
func (sensor *BH1750) Sensitivity() byte {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	return sensor.sensitivity
}

// Mode returns the mode of the last successful trigger, 0 if none.
func (sensor *BH1750) Mode() BH1750Mode {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	return sensor.mode
}

// ConversionTime is the maximum conversion time for mode at sensitivity mt.
func ConversionTime(mode BH1750Mode, mt byte) time.Duration {
	base := bh1750HighResTime
	if mode.LowResolution() {
		base = bh1750LowResTime
	}
	return base * time.Duration(mt) / bh1750MTregDefault
}

// TriggerMeasurement starts a conversion in mode. The mode is remembered by the
// instance and used by ReadLux to decode the result.
func (sensor *BH1750) TriggerMeasurement(ctx context.Context, mode BH1750Mode) (*regmap.Measurement[float64], error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("bh1750: %s: %w", mode, devices.ErrInvalidArgument)
	}
	sensor.mx.Lock()
	if err := sensor.dev.Command(ctx, byte(mode)); err != nil {
		sensor.mx.Unlock()
		return nil, fmt.Errorf("could not trigger measurement: %w", err)
	}
	sensor.mode = mode
	conversion := ConversionTime(mode, sensor.sensitivity)
	sensor.mx.Unlock()

	opts := append([]regmap.MeasurementOpt{regmap.WithConversionTime(conversion)}, sensor.measurementOpts...)
	return regmap.NewMeasurement(sensor.ReadLux, opts...), nil
}

// ReadRawData reads the 16-bit illuminance register.
func (sensor *BH1750) ReadRawData(ctx context.Context) (uint16, error) {
	buf := make([]byte, 2)
	if err := sensor.dev.ReadRaw(ctx, buf); err != nil {
		return 0, fmt.Errorf("could not read data: %w", err)
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadLux reads the data register and converts it using the mode of the most
// recent trigger on this instance.
func (sensor *BH1750) ReadLux(ctx context.Context) (float64, error) {
	sensor.mx.Lock()
	mode, mt := sensor.mode, sensor.sensitivity
	sensor.mx.Unlock()
	if mode == 0 {
		return 0, fmt.Errorf("bh1750: no measurement was triggered: %w", devices.ErrNotReady)
	}
	raw, err := sensor.ReadRawData(ctx)
	if err != nil {
		return 0, err
	}
	lux := ConvertLux(raw, mode)
	if mt != bh1750MTregDefault {
		lux = lux * bh1750MTregDefault / float64(mt)
	}
	return lux, nil
}

// GetLux performs a single measurement in the configured mode, one-time L by default.
func (sensor *BH1750) GetLux(ctx context.Context) (int, error) {
	m, err := sensor.TriggerMeasurement(ctx, sensor.lightMode)
	if err != nil {
		return 0, err
	}
	if err := m.Wait(ctx); err != nil {
		return 0, err
	}
	lux, err := m.Result(ctx)
	if err != nil {
		return 0, err
	}
	return int(lux), nil
}

// ConvertLux converts a raw reading at the default sensitivity. In H-resolution
// mode 2 the last bit carries 0.5 lx.
func ConvertLux(raw uint16, mode BH1750Mode) float64 {
	if mode.HighResolution2() {
		lux := float64(uint16(float64(raw>>1) / 1.2))
		if raw&0x01 != 0 {
			lux += 0.5
		}
		return lux
	}
	return float64(uint16(float64(raw) / 1.2))
}
