// Package regtest provides an in-memory I2C register file that behaves like a
// typical auto-incrementing register device. It records every transaction so
// tests can assert on bus traffic.
package regtest

import (
	"context"
	"errors"
	"sync"

	"github.com/mklimuk/devices"
)

var ErrInjected = errors.New("injected bus failure")

var _ devices.I2CBus = &Bus{}

type Tx struct {
	Addr  byte
	Write []byte
	Read  int
}

type Bus struct {
	mx      sync.Mutex
	Regs    [256]byte
	pointer byte
	// Responses, when non-empty, are served to reads in order instead of the register file.
	Responses [][]byte
	// Fail makes every transaction fail with the given error.
	Fail error
	// OnWrite is invoked after each successful write frame.
	OnWrite func(b *Bus, frame []byte)
	log     []Tx
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	frame := append([]byte(nil), buffer...)
	b.log = append(b.log, Tx{Addr: address, Write: frame})
	if b.Fail != nil {
		return b.Fail
	}
	b.write(frame)
	if b.OnWrite != nil {
		b.OnWrite(b, frame)
	}
	return nil
}

func (b *Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.log = append(b.log, Tx{Addr: address, Read: len(buffer)})
	if b.Fail != nil {
		return b.Fail
	}
	b.read(buffer)
	return nil
}

func (b *Bus) Release(ctx context.Context) error {
	return nil
}

func (b *Bus) write(frame []byte) {
	if len(frame) == 0 {
		return
	}
	b.pointer = frame[0]
	for _, v := range frame[1:] {
		b.Regs[b.pointer] = v
		b.pointer++
	}
}

func (b *Bus) read(buffer []byte) {
	if len(b.Responses) > 0 {
		copy(buffer, b.Responses[0])
		b.Responses = b.Responses[1:]
		return
	}
	for i := range buffer {
		buffer[i] = b.Regs[b.pointer]
		b.pointer++
	}
}

// Set stores a register value without recording a transaction.
func (b *Bus) Set(reg byte, values ...byte) {
	b.mx.Lock()
	defer b.mx.Unlock()
	copy(b.Regs[reg:], values)
}

func (b *Bus) Get(reg byte) byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.Regs[reg]
}

// Queue appends raw read responses.
func (b *Bus) Queue(responses ...[]byte) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.Responses = append(b.Responses, responses...)
}

func (b *Bus) SetFail(err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.Fail = err
}

// Log returns the recorded transactions.
func (b *Bus) Log() []Tx {
	b.mx.Lock()
	defer b.mx.Unlock()
	return append([]Tx(nil), b.log...)
}

// Calls returns the number of recorded transactions.
func (b *Bus) Calls() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return len(b.log)
}

// Writes returns all written frames.
func (b *Bus) Writes() [][]byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	var res [][]byte
	for _, tx := range b.log {
		if tx.Write != nil {
			res = append(res, tx.Write)
		}
	}
	return res
}

func (b *Bus) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.log = nil
}

var _ devices.I2CTxBus = &TxBus{}

// TxBus additionally supports combined write-then-read transactions.
type TxBus struct {
	*Bus
	combined int
}

func NewTx() *TxBus {
	return &TxBus{Bus: New()}
}

func (b *TxBus) Tx(ctx context.Context, address byte, w, r []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.combined++
	b.log = append(b.log, Tx{Addr: address, Write: append([]byte(nil), w...), Read: len(r)})
	if b.Fail != nil {
		return b.Fail
	}
	b.write(w)
	b.read(r)
	return nil
}

// Combined returns the number of repeated-start transactions issued.
func (b *TxBus) Combined() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.combined
}
