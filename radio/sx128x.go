// Package radio contains transceiver drivers.
package radio

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mklimuk/devices"
	"github.com/mklimuk/devices/regmap"
	"periph.io/x/conn/v3/physic"
)

// command opcodes
const (
	opGetStatus         = 0xC0
	opWriteRegister     = 0x18
	opReadRegister      = 0x19
	opWriteBuffer       = 0x1A
	opReadBuffer        = 0x1B
	opSetSleep          = 0x84
	opSetStandby        = 0x80
	opSetFs             = 0xC1
	opSetTx             = 0x83
	opSetRx             = 0x82
	opSetPacketType     = 0x8A
	opGetPacketType     = 0x03
	opSetRfFrequency    = 0x86
	opSetTxParams       = 0x8E
	opSetBufferBase     = 0x8F
	opGetRxBufferStatus = 0x17
	opGetRssiInst       = 0x1F
	opSetDioIrqParams   = 0x8D
	opGetIrqStatus      = 0x15
	opClearIrqStatus    = 0x97
	opSetRegulatorMode  = 0x96
)

const (
	// opcode and status byte precede the data of every query
	statusPrefix       = 2
	frequencyStepShift = 18
	crystal            = 52_000_000
	defaultBusyPoll    = 100 * time.Microsecond
	defaultBusyTimeout = 100 * time.Millisecond
)

const (
	SX128XMinPower     = -18
	SX128XMaxPower     = 13
	SX128XMinFrequency = 2400 * physic.MegaHertz
	SX128XMaxFrequency = 2500 * physic.MegaHertz
)

// The status byte returned by GetStatus and clocked out with every command.
var (
	SX128XCircuitMode   = regmap.Bits("circuit_mode", 0, 7, 5)
	SX128XCommandStatus = regmap.Bits("command_status", 0, 4, 2)
)

type SX128XCircuitModeValue byte

const (
	SX128XStandbyRC   SX128XCircuitModeValue = 0x2
	SX128XStandbyXOSC SX128XCircuitModeValue = 0x3
	SX128XModeFS      SX128XCircuitModeValue = 0x4
	SX128XModeRx      SX128XCircuitModeValue = 0x5
	SX128XModeTx      SX128XCircuitModeValue = 0x6
)

func (m SX128XCircuitModeValue) String() string {
	switch m {
	case SX128XStandbyRC:
		return "STDBY_RC"
	case SX128XStandbyXOSC:
		return "STDBY_XOSC"
	case SX128XModeFS:
		return "FS"
	case SX128XModeRx:
		return "RX"
	case SX128XModeTx:
		return "TX"
	}
	return fmt.Sprintf("unknown(%d)", byte(m))
}

type SX128XCommandStatusValue byte

const (
	SX128XCmdSuccess         SX128XCommandStatusValue = 0x1
	SX128XCmdDataAvailable   SX128XCommandStatusValue = 0x2
	SX128XCmdTimeout         SX128XCommandStatusValue = 0x3
	SX128XCmdProcessingError SX128XCommandStatusValue = 0x4
	SX128XCmdExecuteFailure  SX128XCommandStatusValue = 0x5
	SX128XCmdTxDone          SX128XCommandStatusValue = 0x6
)

func (s SX128XCommandStatusValue) String() string {
	switch s {
	case SX128XCmdSuccess:
		return "success"
	case SX128XCmdDataAvailable:
		return "data available"
	case SX128XCmdTimeout:
		return "timeout"
	case SX128XCmdProcessingError:
		return "processing error"
	case SX128XCmdExecuteFailure:
		return "failure to execute"
	case SX128XCmdTxDone:
		return "tx done"
	}
	return fmt.Sprintf("unknown(%d)", byte(s))
}

// SX128XStatus is the decoded status byte.
type SX128XStatus struct {
	Raw           byte                     `yaml:"raw"`
	CircuitMode   SX128XCircuitModeValue   `yaml:"circuit_mode"`
	CommandStatus SX128XCommandStatusValue `yaml:"command_status"`
}

func DecodeStatus(b byte) SX128XStatus {
	return SX128XStatus{
		Raw:           b,
		CircuitMode:   SX128XCircuitModeValue(SX128XCircuitMode.Extract(b)),
		CommandStatus: SX128XCommandStatusValue(SX128XCommandStatus.Extract(b)),
	}
}

func (s SX128XStatus) String() string {
	return fmt.Sprintf("mode=%s command=%s", s.CircuitMode, s.CommandStatus)
}

// SX128XSleepConfig flags select what is retained during sleep.
type SX128XSleepConfig byte

const (
	SX128XRetainDataRAM    SX128XSleepConfig = 1 << 0
	SX128XRetainDataBuffer SX128XSleepConfig = 1 << 1
)

type SX128XStandbyMode byte

const (
	SX128XStandbyRCOscillator SX128XStandbyMode = iota
	SX128XStandbyCrystal
)

// SX128XPeriodBase is the time step of the Tx/Rx timeouts.
type SX128XPeriodBase byte

const (
	SX128XPeriod15us625 SX128XPeriodBase = iota
	SX128XPeriod62us5
	SX128XPeriod1ms
	SX128XPeriod4ms
)

const (
	// SX128XNoTimeout disables the Tx/Rx timeout.
	SX128XNoTimeout = 0x0000
	// SX128XRxContinuous keeps the receiver on after each packet.
	SX128XRxContinuous = 0xFFFF
)

type SX128XPacketType byte

const (
	SX128XPacketGFSK SX128XPacketType = iota
	SX128XPacketLoRa
	SX128XPacketRanging
	SX128XPacketFLRC
	SX128XPacketBLE
)

type SX128XRampTime byte

const (
	SX128XRamp2us  SX128XRampTime = 0x00
	SX128XRamp4us  SX128XRampTime = 0x20
	SX128XRamp6us  SX128XRampTime = 0x40
	SX128XRamp8us  SX128XRampTime = 0x60
	SX128XRamp10us SX128XRampTime = 0x80
	SX128XRamp12us SX128XRampTime = 0xA0
	SX128XRamp16us SX128XRampTime = 0xC0
	SX128XRamp20us SX128XRampTime = 0xE0
)

type SX128XRegulatorMode byte

const (
	SX128XRegulatorLDO SX128XRegulatorMode = iota
	SX128XRegulatorDCDC
)

// IRQ flags of SetDioIrqParams, GetIrqStatus and ClearIrqStatus.
const (
	SX128XIrqTxDone           uint16 = 1 << 0
	SX128XIrqRxDone           uint16 = 1 << 1
	SX128XIrqSyncWordValid    uint16 = 1 << 2
	SX128XIrqSyncWordError    uint16 = 1 << 3
	SX128XIrqHeaderValid      uint16 = 1 << 4
	SX128XIrqHeaderError      uint16 = 1 << 5
	SX128XIrqCrcError         uint16 = 1 << 6
	SX128XIrqRxTxTimeout      uint16 = 1 << 14
	SX128XIrqPreambleDetected uint16 = 1 << 15
	SX128XIrqAll              uint16 = 0xFFFF
)

// BusyFunc reports the state of the BUSY line. Commands are only sent while it is low.
type BusyFunc func() bool

type SX128XOpt func(*SX128X)

// WithSX128XBusy makes every command wait for the BUSY line to go low.
func WithSX128XBusy(busy BusyFunc) SX128XOpt {
	return func(r *SX128X) {
		r.busy = busy
	}
}

// WithSX128XBusyTimeout bounds the wait for the BUSY line.
func WithSX128XBusyTimeout(d time.Duration) SX128XOpt {
	return func(r *SX128X) {
		r.busyTimeout = d
	}
}

// SX128X is a 2.4 GHz LoRa/FLRC/GFSK transceiver driven by SPI commands.
type SX128X struct {
	conn        devices.SPIConn
	regs        *regmap.Device
	buffer      *regmap.Device
	busy        BusyFunc
	busyTimeout time.Duration
}

func NewSX128X(conn devices.SPIConn, opts ...SX128XOpt) *SX128X {
	r := &SX128X{
		conn: conn,
		regs: regmap.New("sx128x", regmap.NewSPI(conn, opReadRegister, opWriteRegister,
			regmap.WithAddrBytes(2), regmap.WithDummyBytes(1))),
		buffer: regmap.New("sx128x", regmap.NewSPI(conn, opReadBuffer, opWriteBuffer,
			regmap.WithDummyBytes(1))),
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init configures the transport and checks that a transceiver answers with a
// plausible status byte. A floating MISO reads as 0x00 or 0xFF.
func (r *SX128X) Init(ctx context.Context, params devices.TransportParams) error {
	if err := devices.InitBus(ctx, r.conn, params); err != nil {
		return fmt.Errorf("sx128x: could not init transport: %w", err)
	}
	status, err := r.GetStatus(ctx)
	if err != nil {
		return err
	}
	switch status.CircuitMode {
	case SX128XStandbyRC, SX128XStandbyXOSC, SX128XModeFS, SX128XModeRx, SX128XModeTx:
		return nil
	}
	return fmt.Errorf("sx128x: status %#02x: %w", status.Raw, devices.ErrUnexpectedDeviceID)
}

func (r *SX128X) waitReady(ctx context.Context) error {
	if r.busy == nil {
		return nil
	}
	deadline := time.Now().Add(r.busyTimeout)
	for r.busy() {
		if time.Now().After(deadline) {
			return fmt.Errorf("sx128x: busy line stuck high: %w", devices.ErrBusBusy)
		}
		if err := regmap.Settle(ctx, defaultBusyPoll); err != nil {
			return err
		}
	}
	return nil
}

func (r *SX128X) command(ctx context.Context, op byte, params ...byte) error {
	if err := r.waitReady(ctx); err != nil {
		return err
	}
	if err := r.regs.Command(ctx, append([]byte{op}, params...)...); err != nil {
		return fmt.Errorf("could not send command %#02x: %w", op, err)
	}
	return nil
}

// query sends op followed by a status slot and n data slots and returns the data.
func (r *SX128X) query(ctx context.Context, op byte, n int) ([]byte, error) {
	if err := r.waitReady(ctx); err != nil {
		return nil, err
	}
	buf := make([]byte, statusPrefix+n)
	buf[0] = op
	if err := r.regs.ReadRaw(ctx, buf); err != nil {
		return nil, fmt.Errorf("could not query %#02x: %w", op, err)
	}
	return buf[statusPrefix:], nil
}

// GetStatus reads the status byte, clocked out while the opcode is sent.
func (r *SX128X) GetStatus(ctx context.Context) (SX128XStatus, error) {
	if err := r.waitReady(ctx); err != nil {
		return SX128XStatus{}, err
	}
	buf := []byte{opGetStatus}
	if err := r.regs.ReadRaw(ctx, buf); err != nil {
		return SX128XStatus{}, fmt.Errorf("could not get status: %w", err)
	}
	return DecodeStatus(buf[0]), nil
}

func (r *SX128X) ReadRegister(ctx context.Context, addr regmap.Addr, n int) ([]byte, error) {
	if err := r.waitReady(ctx); err != nil {
		return nil, err
	}
	return r.regs.ReadRegs(ctx, addr, n)
}

func (r *SX128X) WriteRegister(ctx context.Context, addr regmap.Addr, data ...byte) error {
	if err := r.waitReady(ctx); err != nil {
		return err
	}
	return r.regs.WriteRegs(ctx, addr, data)
}

// GetField reads a bit field of a register.
func (r *SX128X) GetField(ctx context.Context, f regmap.Field) (byte, error) {
	if err := r.waitReady(ctx); err != nil {
		return 0, err
	}
	return r.regs.Get(ctx, f)
}

// SetField updates a bit field of a register, preserving the other bits.
func (r *SX128X) SetField(ctx context.Context, f regmap.Field, v byte) error {
	if err := r.waitReady(ctx); err != nil {
		return err
	}
	return r.regs.Set(ctx, f, v)
}

func (r *SX128X) WriteBuffer(ctx context.Context, offset byte, data []byte) error {
	if err := r.waitReady(ctx); err != nil {
		return err
	}
	return r.buffer.WriteRegs(ctx, regmap.Addr(offset), data)
}

func (r *SX128X) ReadBuffer(ctx context.Context, offset byte, n int) ([]byte, error) {
	if err := r.waitReady(ctx); err != nil {
		return nil, err
	}
	return r.buffer.ReadRegs(ctx, regmap.Addr(offset), n)
}

func (r *SX128X) SetSleep(ctx context.Context, config SX128XSleepConfig) error {
	if config&^(SX128XRetainDataRAM|SX128XRetainDataBuffer) != 0 {
		return fmt.Errorf("sx128x: sleep config %#02x: %w", byte(config), devices.ErrInvalidArgument)
	}
	return r.command(ctx, opSetSleep, byte(config))
}

func (r *SX128X) SetStandby(ctx context.Context, mode SX128XStandbyMode) error {
	if mode > SX128XStandbyCrystal {
		return fmt.Errorf("sx128x: standby mode %d: %w", mode, devices.ErrInvalidArgument)
	}
	return r.command(ctx, opSetStandby, byte(mode))
}

func (r *SX128X) SetFs(ctx context.Context) error {
	return r.command(ctx, opSetFs)
}

func periodParams(base SX128XPeriodBase, count uint16) ([]byte, error) {
	if base > SX128XPeriod4ms {
		return nil, fmt.Errorf("sx128x: period base %d: %w", base, devices.ErrInvalidArgument)
	}
	return binary.BigEndian.AppendUint16([]byte{byte(base)}, count), nil
}

// SetTx starts a transmission with a timeout of count period base steps.
func (r *SX128X) SetTx(ctx context.Context, base SX128XPeriodBase, count uint16) error {
	params, err := periodParams(base, count)
	if err != nil {
		return err
	}
	return r.command(ctx, opSetTx, params...)
}

// SetRx starts reception. count SX128XRxContinuous keeps the receiver on.
func (r *SX128X) SetRx(ctx context.Context, base SX128XPeriodBase, count uint16) error {
	params, err := periodParams(base, count)
	if err != nil {
		return err
	}
	return r.command(ctx, opSetRx, params...)
}

func (r *SX128X) SetPacketType(ctx context.Context, t SX128XPacketType) error {
	if t > SX128XPacketBLE {
		return fmt.Errorf("sx128x: packet type %d: %w", t, devices.ErrInvalidArgument)
	}
	return r.command(ctx, opSetPacketType, byte(t))
}

func (r *SX128X) GetPacketType(ctx context.Context) (SX128XPacketType, error) {
	res, err := r.query(ctx, opGetPacketType, 1)
	if err != nil {
		return 0, err
	}
	return SX128XPacketType(res[0]), nil
}

// FrequencySteps converts f into PLL steps of 52 MHz / 2^18.
func FrequencySteps(f physic.Frequency) (uint32, error) {
	if f < SX128XMinFrequency || f > SX128XMaxFrequency {
		return 0, fmt.Errorf("sx128x: frequency %s outside [%s, %s]: %w", f, SX128XMinFrequency, SX128XMaxFrequency, devices.ErrInvalidArgument)
	}
	hz := uint64(f / physic.Hertz)
	return uint32(hz << frequencyStepShift / crystal), nil
}

// FrequencyOf is the inverse of FrequencySteps, exact to one step (about 198 Hz).
func FrequencyOf(steps uint32) physic.Frequency {
	return physic.Frequency(uint64(steps)*crystal>>frequencyStepShift) * physic.Hertz
}

func (r *SX128X) SetRfFrequency(ctx context.Context, f physic.Frequency) error {
	steps, err := FrequencySteps(f)
	if err != nil {
		return err
	}
	return r.command(ctx, opSetRfFrequency, byte(steps>>16), byte(steps>>8), byte(steps))
}

// SetTxParams sets the output power in dBm (-18..13) and the PA ramp time.
func (r *SX128X) SetTxParams(ctx context.Context, power int, ramp SX128XRampTime) error {
	if power < SX128XMinPower || power > SX128XMaxPower {
		return fmt.Errorf("sx128x: power %d dBm outside [%d, %d]: %w", power, SX128XMinPower, SX128XMaxPower, devices.ErrInvalidArgument)
	}
	if ramp&0x1F != 0 {
		return fmt.Errorf("sx128x: ramp time %#02x: %w", byte(ramp), devices.ErrInvalidArgument)
	}
	return r.command(ctx, opSetTxParams, byte(power-SX128XMinPower), byte(ramp))
}

func (r *SX128X) SetBufferBaseAddress(ctx context.Context, tx, rx byte) error {
	return r.command(ctx, opSetBufferBase, tx, rx)
}

// SetDioIrqParams enables the irq flags of irqMask and routes them to the DIO pins.
func (r *SX128X) SetDioIrqParams(ctx context.Context, irqMask, dio1, dio2, dio3 uint16) error {
	params := make([]byte, 0, 8)
	for _, m := range []uint16{irqMask, dio1, dio2, dio3} {
		params = binary.BigEndian.AppendUint16(params, m)
	}
	return r.command(ctx, opSetDioIrqParams, params...)
}

func (r *SX128X) GetIrqStatus(ctx context.Context) (uint16, error) {
	res, err := r.query(ctx, opGetIrqStatus, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(res), nil
}

func (r *SX128X) ClearIrqStatus(ctx context.Context, mask uint16) error {
	return r.command(ctx, opClearIrqStatus, byte(mask>>8), byte(mask))
}

func (r *SX128X) SetRegulatorMode(ctx context.Context, mode SX128XRegulatorMode) error {
	if mode > SX128XRegulatorDCDC {
		return fmt.Errorf("sx128x: regulator mode %d: %w", mode, devices.ErrInvalidArgument)
	}
	return r.command(ctx, opSetRegulatorMode, byte(mode))
}

// GetRssiInst returns the instantaneous RSSI in dBm.
func (r *SX128X) GetRssiInst(ctx context.Context) (float64, error) {
	res, err := r.query(ctx, opGetRssiInst, 1)
	if err != nil {
		return 0, err
	}
	return -float64(res[0]) / 2, nil
}

// GetRxBufferStatus returns the length of the last received payload and its
// offset in the data buffer.
func (r *SX128X) GetRxBufferStatus(ctx context.Context) (length, offset byte, err error) {
	res, err := r.query(ctx, opGetRxBufferStatus, 2)
	if err != nil {
		return 0, 0, err
	}
	return res[0], res[1], nil
}
