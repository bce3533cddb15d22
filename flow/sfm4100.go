// Package flow contains mass flow meter drivers.
package flow

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
	"github.com/sigurn/crc8"
)

// SFM4100AddrAir is the factory address of the air calibrated variant.
const SFM4100AddrAir = 0x01

const (
	sfm4100SoftReset   = 0xFE
	sfm4100TriggerFlow = 0xF1
	sfm4100SerialHigh  = 0x31
	sfm4100SerialLow   = 0xAE
)

// ErrChecksum reports a CRC mismatch between the received word and its checksum byte.
var ErrChecksum = fmt.Errorf("checksum mismatch: %w", devices.ErrBus)

// Sensirion SF04 checksum: x^8 + x^5 + x^4 + 1, init 0x00, no reflection.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly: 0x31,
	Init: 0x00,
	Name: "CRC-8/SF04",
})

// CRC computes the SF04 checksum of data.
func CRC(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// SFM4100Data is one flow sample.
type SFM4100Data struct {
	Raw           int16   `yaml:"raw"`
	Flow          float64 `yaml:"flow_sccm"`
	CRC           byte    `yaml:"crc"`
	CalculatedCRC byte    `yaml:"calculated_crc"`
}

type SFM4100Opt func(*SFM4100)

// WithSFM4100ResetDelay sets the settle time after a soft reset.
func WithSFM4100ResetDelay(d time.Duration) SFM4100Opt {
	return func(s *SFM4100) {
		s.resetDelay = d
	}
}

// WithSFM4100Calibration sets the offset and scale factor of the flow
// conversion: flow = (raw - offset) / scale.
func WithSFM4100Calibration(offset int16, scale float64) SFM4100Opt {
	return func(s *SFM4100) {
		s.offset = offset
		s.scale = scale
	}
}

func WithSFM4100MeasurementOpts(opts ...regmap.MeasurementOpt) SFM4100Opt {
	return func(s *SFM4100) {
		s.measurementOpts = append(s.measurementOpts, opts...)
	}
}

// SFM4100 is a digital mass flow meter. It is driven with command bytes, every
// data word is followed by a checksum byte.
type SFM4100 struct {
	transport       devices.I2CBus
	addr            byte
	dev             *regmap.Device
	resetDelay      time.Duration
	offset          int16
	scale           float64
	measurementOpts []regmap.MeasurementOpt
}

func NewSFM4100(transport devices.I2CBus, addr byte, opts ...SFM4100Opt) *SFM4100 {
	s := &SFM4100{
		transport:  transport,
		addr:       addr,
		dev:        regmap.New("sfm4100", regmap.NewI2C(transport, addr)),
		resetDelay: 50 * time.Millisecond,
		scale:      1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init configures the transport and validates the calibration.
func (sensor *SFM4100) Init(ctx context.Context, params devices.TransportParams) error {
	if sensor.scale == 0 {
		return fmt.Errorf("sfm4100: zero scale factor: %w", devices.ErrInvalidArgument)
	}
	if err := devices.CheckAddress(params, sensor.addr); err != nil {
		return fmt.Errorf("sfm4100: %w", err)
	}
	if err := devices.InitBus(ctx, sensor.transport, params); err != nil {
		return fmt.Errorf("sfm4100: could not init transport: %w", err)
	}
	return nil
}

// SoftReset restarts the sensor and waits for the configured settle time.
func (sensor *SFM4100) SoftReset(ctx context.Context) error {
	if err := sensor.dev.Command(ctx, sfm4100SoftReset); err != nil {
		return fmt.Errorf("could not reset: %w", err)
	}
	return regmap.Settle(ctx, sensor.resetDelay)
}

// TriggerNewFlow starts a flow conversion. The handle reads the result once the
// conversion time has elapsed.
func (sensor *SFM4100) TriggerNewFlow(ctx context.Context) (*regmap.Measurement[SFM4100Data], error) {
	if err := sensor.dev.Command(ctx, sfm4100TriggerFlow); err != nil {
		return nil, fmt.Errorf("could not trigger flow measurement: %w", err)
	}
	opts := append([]regmap.MeasurementOpt{regmap.WithConversionTime(10 * time.Millisecond)}, sensor.measurementOpts...)
	return regmap.NewMeasurement(sensor.GetFlow, opts...), nil
}

// GetFlow reads the last flow word, verifies its checksum and converts it to sccm.
func (sensor *SFM4100) GetFlow(ctx context.Context) (SFM4100Data, error) {
	buf := make([]byte, 3)
	if err := sensor.dev.ReadRaw(ctx, buf); err != nil {
		return SFM4100Data{}, fmt.Errorf("could not read flow: %w", err)
	}
	data := SFM4100Data{
		Raw:           int16(binary.BigEndian.Uint16(buf)),
		CRC:           buf[2],
		CalculatedCRC: CRC(buf[:2]),
	}
	if data.CRC != data.CalculatedCRC {
		return data, fmt.Errorf("sfm4100: flow word %#04x: got %#02x, calculated %#02x: %w", buf[:2], data.CRC, data.CalculatedCRC, ErrChecksum)
	}
	data.Flow = ConvertFlow(data.Raw, sensor.offset, sensor.scale)
	return data, nil
}

// MeasureFlow triggers a conversion, waits for it and returns the flow in sccm.
func (sensor *SFM4100) MeasureFlow(ctx context.Context) (float64, error) {
	m, err := sensor.TriggerNewFlow(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.Wait(ctx); err != nil {
		return 0, err
	}
	data, err := m.Result(ctx)
	if err != nil {
		return 0, err
	}
	return data.Flow, nil
}

// GetSerialNumber reads the 32-bit serial number, sent as two checksummed words.
func (sensor *SFM4100) GetSerialNumber(ctx context.Context) (uint32, error) {
	if err := sensor.dev.Command(ctx, sfm4100SerialHigh, sfm4100SerialLow); err != nil {
		return 0, fmt.Errorf("could not request serial number: %w", err)
	}
	buf := make([]byte, 6)
	if err := sensor.dev.ReadRaw(ctx, buf); err != nil {
		return 0, fmt.Errorf("could not read serial number: %w", err)
	}
	for _, word := range [][]byte{buf[0:3], buf[3:6]} {
		if crc := CRC(word[:2]); crc != word[2] {
			return 0, fmt.Errorf("sfm4100: serial word %#04x: got %#02x, calculated %#02x: %w", word[:2], word[2], crc, ErrChecksum)
		}
	}
	return uint32(binary.BigEndian.Uint16(buf[0:2]))<<16 | uint32(binary.BigEndian.Uint16(buf[3:5])), nil
}

// ConvertFlow converts a signed raw flow word to sccm.
func ConvertFlow(raw, offset int16, scale float64) float64 {
	return (float64(raw) - float64(offset)) / scale
}
