package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
)

const HDC2080AddrLow = 0x40
const HDC2080AddrHigh = 0x41

const (
	hdc2080TempLow        regmap.Addr = 0x00
	hdc2080HumLow         regmap.Addr = 0x02
	hdc2080Status         regmap.Addr = 0x04
	hdc2080TempMax        regmap.Addr = 0x05
	hdc2080HumMax         regmap.Addr = 0x06
	hdc2080IntEnable      regmap.Addr = 0x07
	hdc2080TempOffset     regmap.Addr = 0x08
	hdc2080HumOffset      regmap.Addr = 0x09
	hdc2080TempThresLow   regmap.Addr = 0x0A
	hdc2080TempThresHigh  regmap.Addr = 0x0B
	hdc2080HumThresLow    regmap.Addr = 0x0C
	hdc2080HumThresHigh   regmap.Addr = 0x0D
	hdc2080Config         regmap.Addr = 0x0E
	hdc2080MeasConfig     regmap.Addr = 0x0F
	hdc2080ManufacturerID regmap.Addr = 0xFC
	hdc2080DeviceID       regmap.Addr = 0xFE
)

var (
	hdc2080ManufacturerIDBytes = []byte{0x49, 0x54}
	hdc2080DeviceIDBytes       = []byte{0xD0, 0x07}
)

// Register map of the HDC2080. Exported for register dumps.
var (
	HDC2080DataReady       = regmap.Bit("drdy_status", hdc2080Status, 7)
	HDC2080TempHighStatus  = regmap.Bit("th_status", hdc2080Status, 6)
	HDC2080TempLowStatus   = regmap.Bit("tl_status", hdc2080Status, 5)
	HDC2080HumHighStatus   = regmap.Bit("hh_status", hdc2080Status, 4)
	HDC2080HumLowStatus    = regmap.Bit("hl_status", hdc2080Status, 3)
	HDC2080SoftReset       = regmap.Bit("soft_res", hdc2080Config, 7)
	HDC2080AutoMeasurement = regmap.Bits("amm", hdc2080Config, 6, 4)
	HDC2080Heater          = regmap.Bit("heat_en", hdc2080Config, 3)
	HDC2080PinEnable       = regmap.Bit("drdy_int_en", hdc2080Config, 2)
	HDC2080IntPolarity     = regmap.Bit("int_pol", hdc2080Config, 1)
	HDC2080IntMode         = regmap.Bit("int_mode", hdc2080Config, 0)
	HDC2080TempResolution  = regmap.Bits("tres", hdc2080MeasConfig, 7, 6).OneOf(0, 1, 2)
	HDC2080HumResolution   = regmap.Bits("hres", hdc2080MeasConfig, 5, 4).OneOf(0, 1, 2)
	HDC2080MeasConf        = regmap.Bits("meas_conf", hdc2080MeasConfig, 2, 1).OneOf(0, 1)
	HDC2080MeasTrigger     = regmap.Bit("meas_trig", hdc2080MeasConfig, 0)

	HDC2080Registers = regmap.Map{
		HDC2080DataReady, HDC2080TempHighStatus, HDC2080TempLowStatus, HDC2080HumHighStatus, HDC2080HumLowStatus,
		regmap.Register("temperature_max", hdc2080TempMax),
		regmap.Register("humidity_max", hdc2080HumMax),
		regmap.Register("interrupt_enable", hdc2080IntEnable),
		regmap.Register("temp_offset_adjust", hdc2080TempOffset),
		regmap.Register("hum_offset_adjust", hdc2080HumOffset),
		regmap.Register("temp_thr_l", hdc2080TempThresLow),
		regmap.Register("temp_thr_h", hdc2080TempThresHigh),
		regmap.Register("rh_thr_l", hdc2080HumThresLow),
		regmap.Register("rh_thr_h", hdc2080HumThresHigh),
		HDC2080SoftReset, HDC2080AutoMeasurement, HDC2080Heater, HDC2080PinEnable, HDC2080IntPolarity, HDC2080IntMode,
		HDC2080TempResolution, HDC2080HumResolution, HDC2080MeasConf, HDC2080MeasTrigger,
	}
)

// HDC2080AutoMeasurementMode selects the sampling rate of the auto measurement mode.
type HDC2080AutoMeasurementMode byte

const (
	HDC2080AMMDisabled HDC2080AutoMeasurementMode = iota
	HDC2080AMM1Per120s
	HDC2080AMM1Per60s
	HDC2080AMM1Per10s
	HDC2080AMM1Per5s
	HDC2080AMM1Hz
	HDC2080AMM2Hz
	HDC2080AMM5Hz
)

type HDC2080Resolution byte

const (
	HDC2080Resolution14Bit HDC2080Resolution = iota
	HDC2080Resolution11Bit
	HDC2080Resolution9Bit
)

type HDC2080MeasurementMode byte

const (
	HDC2080HumidityAndTemperature HDC2080MeasurementMode = iota
	HDC2080TemperatureOnly
)

type HDC2080InterruptPolarity byte

const (
	HDC2080ActiveLow HDC2080InterruptPolarity = iota
	HDC2080ActiveHigh
)

type HDC2080InterruptMode byte

const (
	HDC2080LevelSensitive HDC2080InterruptMode = iota
	HDC2080Comparator
)

// HDC2080MeasurementConf is the content of the measurement configuration register.
type HDC2080MeasurementConf struct {
	TemperatureResolution HDC2080Resolution      `yaml:"temperature_resolution"`
	HumidityResolution    HDC2080Resolution      `yaml:"humidity_resolution"`
	Mode                  HDC2080MeasurementMode `yaml:"mode"`
}

// HDC2080Interrupts maps the interrupt enable (and status) register bits.
type HDC2080Interrupts struct {
	DataReady       bool `yaml:"data_ready"`
	TemperatureHigh bool `yaml:"temperature_high"`
	TemperatureLow  bool `yaml:"temperature_low"`
	HumidityHigh    bool `yaml:"humidity_high"`
	HumidityLow     bool `yaml:"humidity_low"`
}

func (i HDC2080Interrupts) bits() byte {
	var v byte
	for bit, on := range [...]bool{7: i.DataReady, 6: i.TemperatureHigh, 5: i.TemperatureLow, 4: i.HumidityHigh, 3: i.HumidityLow} {
		if on {
			v |= 1 << bit
		}
	}
	return v
}

func interruptsFromByte(v byte) HDC2080Interrupts {
	return HDC2080Interrupts{
		DataReady:       v&(1<<7) != 0,
		TemperatureHigh: v&(1<<6) != 0,
		TemperatureLow:  v&(1<<5) != 0,
		HumidityHigh:    v&(1<<4) != 0,
		HumidityLow:     v&(1<<3) != 0,
	}
}

// HDC2080Data holds one temperature and humidity sample.
type HDC2080Data struct {
	RawTemperature uint16  `yaml:"raw_temperature"`
	RawHumidity    uint16  `yaml:"raw_humidity"`
	Temperature    float32 `yaml:"temperature"`
	Humidity       float32 `yaml:"humidity"`
}

type HDC2080Opt func(*HDC2080)

// WithHDC2080MeasurementOpts passes options to every measurement handle.
func WithHDC2080MeasurementOpts(opts ...regmap.MeasurementOpt) HDC2080Opt {
	return func(s *HDC2080) {
		s.measurementOpts = append(s.measurementOpts, opts...)
	}
}

// WithHDC2080ResetDelay sets the settle time after a soft reset.
func WithHDC2080ResetDelay(d time.Duration) HDC2080Opt {
	return func(s *HDC2080) {
		s.resetDelay = d
	}
}

// HDC2080 is a humidity and temperature sensor with a data ready interrupt.
type HDC2080 struct {
	transport       devices.I2CBus
	addr            byte
	dev             *regmap.Device
	resetDelay      time.Duration
	measurementOpts []regmap.MeasurementOpt
}

func NewHDC2080(transport devices.I2CBus, addr byte, opts ...HDC2080Opt) *HDC2080 {
	s := &HDC2080{
		transport:  transport,
		addr:       addr,
		dev:        regmap.New("hdc2080", regmap.NewI2C(transport, addr)),
		resetDelay: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init configures the transport and verifies the manufacturer and device IDs.
func (sensor *HDC2080) Init(ctx context.Context, params devices.TransportParams) error {
	if err := devices.CheckAddress(params, sensor.addr); err != nil {
		return fmt.Errorf("hdc2080: %w", err)
	}
	if err := devices.InitBus(ctx, sensor.transport, params); err != nil {
		return fmt.Errorf("hdc2080: could not init transport: %w", err)
	}
	if err := sensor.dev.CheckID(ctx, hdc2080ManufacturerID, hdc2080ManufacturerIDBytes); err != nil {
		return err
	}
	return sensor.dev.CheckID(ctx, hdc2080DeviceID, hdc2080DeviceIDBytes)
}

func (sensor *HDC2080) readWord(ctx context.Context, reg regmap.Addr) (uint16, error) {
	buf, err := sensor.dev.ReadRegs(ctx, reg, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (sensor *HDC2080) GetManufacturerID(ctx context.Context) (uint16, error) {
	return sensor.readWord(ctx, hdc2080ManufacturerID)
}

func (sensor *HDC2080) GetDeviceID(ctx context.Context) (uint16, error) {
	return sensor.readWord(ctx, hdc2080DeviceID)
}

func (sensor *HDC2080) GetRawTemperature(ctx context.Context) (uint16, error) {
	return sensor.readWord(ctx, hdc2080TempLow)
}

func (sensor *HDC2080) GetTemperature(ctx context.Context) (float32, error) {
	raw, err := sensor.GetRawTemperature(ctx)
	if err != nil {
		return 0, err
	}
	return HDC2080Temperature(raw), nil
}

func (sensor *HDC2080) GetRawHumidity(ctx context.Context) (uint16, error) {
	return sensor.readWord(ctx, hdc2080HumLow)
}

func (sensor *HDC2080) GetHumidity(ctx context.Context) (float32, error) {
	raw, err := sensor.GetRawHumidity(ctx)
	if err != nil {
		return 0, err
	}
	return HDC2080Humidity(raw), nil
}

// GetData reads temperature and humidity in one transaction.
func (sensor *HDC2080) GetData(ctx context.Context) (HDC2080Data, error) {
	buf, err := sensor.dev.ReadRegs(ctx, hdc2080TempLow, 4)
	if err != nil {
		return HDC2080Data{}, err
	}
	d := HDC2080Data{
		RawTemperature: binary.LittleEndian.Uint16(buf[0:2]),
		RawHumidity:    binary.LittleEndian.Uint16(buf[2:4]),
	}
	d.Temperature = HDC2080Temperature(d.RawTemperature)
	d.Humidity = HDC2080Humidity(d.RawHumidity)
	return d, nil
}

// GetInterruptDRDYStatus reads the status register. Reading it clears the flags.
func (sensor *HDC2080) GetInterruptDRDYStatus(ctx context.Context) (HDC2080Interrupts, error) {
	v, err := sensor.dev.ReadReg(ctx, hdc2080Status)
	if err != nil {
		return HDC2080Interrupts{}, err
	}
	return interruptsFromByte(v), nil
}

// ConfTemperatureMax writes the peak temperature register (raw 8-bit value).
func (sensor *HDC2080) ConfTemperatureMax(ctx context.Context, raw byte) error {
	return sensor.dev.WriteReg(ctx, hdc2080TempMax, raw)
}

func (sensor *HDC2080) GetTemperatureMax(ctx context.Context) (float32, error) {
	v, err := sensor.dev.ReadReg(ctx, hdc2080TempMax)
	if err != nil {
		return 0, err
	}
	return HDC2080Temperature(uint16(v) << 8), nil
}

// ConfHumidityMax writes the peak humidity register (raw 8-bit value).
func (sensor *HDC2080) ConfHumidityMax(ctx context.Context, raw byte) error {
	return sensor.dev.WriteReg(ctx, hdc2080HumMax, raw)
}

func (sensor *HDC2080) GetHumidityMax(ctx context.Context) (float32, error) {
	v, err := sensor.dev.ReadReg(ctx, hdc2080HumMax)
	if err != nil {
		return 0, err
	}
	return HDC2080Humidity(uint16(v) << 8), nil
}

func (sensor *HDC2080) SetInterruptConfiguration(ctx context.Context, enable HDC2080Interrupts) error {
	return sensor.dev.WriteReg(ctx, hdc2080IntEnable, enable.bits())
}

func (sensor *HDC2080) GetInterruptConfiguration(ctx context.Context) (HDC2080Interrupts, error) {
	v, err := sensor.dev.ReadReg(ctx, hdc2080IntEnable)
	if err != nil {
		return HDC2080Interrupts{}, err
	}
	return interruptsFromByte(v), nil
}

// SetTemperatureOffset writes the temperature offset adjustment in degrees Celsius.
func (sensor *HDC2080) SetTemperatureOffset(ctx context.Context, offset float32) error {
	raw, err := encodeOffset(offset, hdc2080TempOffsetStep)
	if err != nil {
		return fmt.Errorf("hdc2080: temperature offset: %w", err)
	}
	return sensor.dev.WriteReg(ctx, hdc2080TempOffset, raw)
}

func (sensor *HDC2080) GetTemperatureOffset(ctx context.Context) (float32, error) {
	v, err := sensor.dev.ReadReg(ctx, hdc2080TempOffset)
	if err != nil {
		return 0, err
	}
	return decodeOffset(v, hdc2080TempOffsetStep), nil
}

// SetHumidityOffset writes the humidity offset adjustment in %RH.
func (sensor *HDC2080) SetHumidityOffset(ctx context.Context, offset float32) error {
	raw, err := encodeOffset(offset, hdc2080HumOffsetStep)
	if err != nil {
		return fmt.Errorf("hdc2080: humidity offset: %w", err)
	}
	return sensor.dev.WriteReg(ctx, hdc2080HumOffset, raw)
}

func (sensor *HDC2080) GetHumidityOffset(ctx context.Context) (float32, error) {
	v, err := sensor.dev.ReadReg(ctx, hdc2080HumOffset)
	if err != nil {
		return 0, err
	}
	return decodeOffset(v, hdc2080HumOffsetStep), nil
}

func (sensor *HDC2080) setThreshold(ctx context.Context, reg regmap.Addr, raw byte, err error) error {
	if err != nil {
		return fmt.Errorf("hdc2080: threshold: %w", err)
	}
	return sensor.dev.WriteReg(ctx, reg, raw)
}

func (sensor *HDC2080) SetTemperatureThresLow(ctx context.Context, celsius float32) error {
	raw, err := TemperatureThreshold(celsius)
	return sensor.setThreshold(ctx, hdc2080TempThresLow, raw, err)
}

func (sensor *HDC2080) SetTemperatureThresHigh(ctx context.Context, celsius float32) error {
	raw, err := TemperatureThreshold(celsius)
	return sensor.setThreshold(ctx, hdc2080TempThresHigh, raw, err)
}

func (sensor *HDC2080) SetHumidityThresLow(ctx context.Context, rh float32) error {
	raw, err := HumidityThreshold(rh)
	return sensor.setThreshold(ctx, hdc2080HumThresLow, raw, err)
}

func (sensor *HDC2080) SetHumidityThresHigh(ctx context.Context, rh float32) error {
	raw, err := HumidityThreshold(rh)
	return sensor.setThreshold(ctx, hdc2080HumThresHigh, raw, err)
}

func (sensor *HDC2080) getThreshold(ctx context.Context, reg regmap.Addr, convert func(uint16) float32) (float32, error) {
	v, err := sensor.dev.ReadReg(ctx, reg)
	if err != nil {
		return 0, err
	}
	return convert(uint16(v) << 8), nil
}

func (sensor *HDC2080) GetTemperatureThresLow(ctx context.Context) (float32, error) {
	return sensor.getThreshold(ctx, hdc2080TempThresLow, HDC2080Temperature)
}

func (sensor *HDC2080) GetTemperatureThresHigh(ctx context.Context) (float32, error) {
	return sensor.getThreshold(ctx, hdc2080TempThresHigh, HDC2080Temperature)
}

func (sensor *HDC2080) GetHumidityThresLow(ctx context.Context) (float32, error) {
	return sensor.getThreshold(ctx, hdc2080HumThresLow, HDC2080Humidity)
}

func (sensor *HDC2080) GetHumidityThresHigh(ctx context.Context) (float32, error) {
	return sensor.getThreshold(ctx, hdc2080HumThresHigh, HDC2080Humidity)
}

// SoftReset resets all registers to their defaults and waits for the sensor to come back.
func (sensor *HDC2080) SoftReset(ctx context.Context) error {
	if err := sensor.dev.SetFlag(ctx, HDC2080SoftReset, true); err != nil {
		return fmt.Errorf("could not reset: %w", err)
	}
	return regmap.Settle(ctx, sensor.resetDelay)
}

// GetSoftReset reports whether a reset is still in progress.
func (sensor *HDC2080) GetSoftReset(ctx context.Context) (bool, error) {
	return sensor.dev.Flag(ctx, HDC2080SoftReset)
}

func (sensor *HDC2080) SetAutoMeasurementMode(ctx context.Context, mode HDC2080AutoMeasurementMode) error {
	return sensor.dev.Set(ctx, HDC2080AutoMeasurement, byte(mode))
}

func (sensor *HDC2080) GetAutoMeasurementMode(ctx context.Context) (HDC2080AutoMeasurementMode, error) {
	v, err := sensor.dev.Get(ctx, HDC2080AutoMeasurement)
	return HDC2080AutoMeasurementMode(v), err
}

func (sensor *HDC2080) SetHeaterMode(ctx context.Context, on bool) error {
	return sensor.dev.SetFlag(ctx, HDC2080Heater, on)
}

func (sensor *HDC2080) GetHeaterMode(ctx context.Context) (bool, error) {
	return sensor.dev.Flag(ctx, HDC2080Heater)
}

// SetPinConfiguration enables or puts in high impedance the DRDY/INT pin.
func (sensor *HDC2080) SetPinConfiguration(ctx context.Context, enabled bool) error {
	return sensor.dev.SetFlag(ctx, HDC2080PinEnable, enabled)
}

func (sensor *HDC2080) GetPinConfiguration(ctx context.Context) (bool, error) {
	return sensor.dev.Flag(ctx, HDC2080PinEnable)
}

func (sensor *HDC2080) SetInterruptPolarity(ctx context.Context, p HDC2080InterruptPolarity) error {
	return sensor.dev.Set(ctx, HDC2080IntPolarity, byte(p))
}

func (sensor *HDC2080) GetInterruptPolarity(ctx context.Context) (HDC2080InterruptPolarity, error) {
	v, err := sensor.dev.Get(ctx, HDC2080IntPolarity)
	return HDC2080InterruptPolarity(v), err
}

func (sensor *HDC2080) SetInterruptMode(ctx context.Context, m HDC2080InterruptMode) error {
	return sensor.dev.Set(ctx, HDC2080IntMode, byte(m))
}

func (sensor *HDC2080) GetInterruptMode(ctx context.Context) (HDC2080InterruptMode, error) {
	v, err := sensor.dev.Get(ctx, HDC2080IntMode)
	return HDC2080InterruptMode(v), err
}

// SetMeasurementConf writes resolutions and measurement mode, leaving the trigger bit untouched.
func (sensor *HDC2080) SetMeasurementConf(ctx context.Context, conf HDC2080MeasurementConf) error {
	return sensor.dev.Update(ctx,
		regmap.FieldValue{Field: HDC2080TempResolution, Value: byte(conf.TemperatureResolution)},
		regmap.FieldValue{Field: HDC2080HumResolution, Value: byte(conf.HumidityResolution)},
		regmap.FieldValue{Field: HDC2080MeasConf, Value: byte(conf.Mode)},
	)
}

func (sensor *HDC2080) GetMeasurementConf(ctx context.Context) (HDC2080MeasurementConf, error) {
	v, err := sensor.dev.ReadReg(ctx, hdc2080MeasConfig)
	if err != nil {
		return HDC2080MeasurementConf{}, err
	}
	return HDC2080MeasurementConf{
		TemperatureResolution: HDC2080Resolution(HDC2080TempResolution.Extract(v)),
		HumidityResolution:    HDC2080Resolution(HDC2080HumResolution.Extract(v)),
		Mode:                  HDC2080MeasurementMode(HDC2080MeasConf.Extract(v)),
	}, nil
}

// StartMeasurementTrigger starts a conversion. The returned handle polls the
// data ready flag and reads both channels once it is set.
func (sensor *HDC2080) StartMeasurementTrigger(ctx context.Context) (*regmap.Measurement[HDC2080Data], error) {
	if err := sensor.dev.SetFlag(ctx, HDC2080MeasTrigger, true); err != nil {
		return nil, fmt.Errorf("could not trigger measurement: %w", err)
	}
	opts := append([]regmap.MeasurementOpt{
		regmap.WithConversionTime(time.Millisecond),
		regmap.WithReadyFunc(func(ctx context.Context) (bool, error) {
			return sensor.dev.Flag(ctx, HDC2080DataReady)
		}),
	}, sensor.measurementOpts...)
	return regmap.NewMeasurement(sensor.GetData, opts...), nil
}

// GetTempAndHum triggers an on-demand conversion and waits for the result.
func (sensor *HDC2080) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	m, err := sensor.StartMeasurementTrigger(ctx)
	if err != nil {
		return 0, 0, err
	}
	if err := m.Wait(ctx); err != nil {
		return 0, 0, err
	}
	data, err := m.Result(ctx)
	if err != nil {
		return 0, 0, err
	}
	return data.Temperature, data.Humidity, nil
}

// GetMeasurementTrigger reports whether a triggered conversion is still running.
func (sensor *HDC2080) GetMeasurementTrigger(ctx context.Context) (bool, error) {
	return sensor.dev.Flag(ctx, HDC2080MeasTrigger)
}

// Dump reads every field of the register map.
func (sensor *HDC2080) Dump(ctx context.Context) (map[string]byte, error) {
	return sensor.dev.Dump(ctx, HDC2080Registers)
}

const (
	hdc2080TempOffsetStep = 0.16
	hdc2080HumOffsetStep  = 0.2
)

// HDC2080Temperature converts a 16-bit raw temperature to degrees Celsius.
func HDC2080Temperature(raw uint16) float32 {
	return float32(float64(raw)/65536*165 - 40)
}

// HDC2080Humidity converts a 16-bit raw humidity to %RH.
func HDC2080Humidity(raw uint16) float32 {
	return float32(float64(raw) / 65536 * 100)
}

// HDC2080RawTemperature is the inverse of HDC2080Temperature, clamped to the register range.
func HDC2080RawTemperature(celsius float32) uint16 {
	return clampRaw((float64(celsius) + 40) / 165 * 65536)
}

// HDC2080RawHumidity is the inverse of HDC2080Humidity, clamped to the register range.
func HDC2080RawHumidity(rh float32) uint16 {
	return clampRaw(float64(rh) / 100 * 65536)
}

func clampRaw(v float64) uint16 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// TemperatureThreshold encodes a threshold for the 8-bit threshold registers
// (the most significant byte of the 16-bit value).
func TemperatureThreshold(celsius float32) (byte, error) {
	if celsius < -40 || celsius > 125 {
		return 0, fmt.Errorf("temperature %.2f outside [-40, 125]: %w", celsius, devices.ErrInvalidArgument)
	}
	return byte(HDC2080RawTemperature(celsius) >> 8), nil
}

func HumidityThreshold(rh float32) (byte, error) {
	if rh < 0 || rh > 100 {
		return 0, fmt.Errorf("humidity %.2f outside [0, 100]: %w", rh, devices.ErrInvalidArgument)
	}
	return byte(HDC2080RawHumidity(rh) >> 8), nil
}

// encodeOffset converts an offset into the signed 8-bit two's complement adjust value.
func encodeOffset(offset float32, step float64) (byte, error) {
	steps := math.Round(float64(offset) / step)
	if steps < math.MinInt8 || steps > math.MaxInt8 {
		return 0, fmt.Errorf("offset %.2f outside [%.2f, %.2f]: %w", offset, math.MinInt8*step, math.MaxInt8*step, devices.ErrInvalidArgument)
	}
	return byte(int8(steps)), nil
}

func decodeOffset(raw byte, step float64) float32 {
	return float32(float64(int8(raw)) * step)
}
