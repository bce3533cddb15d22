package devices

import (
	"context"
	"fmt"
)

// ErrBusBusy is returned when the bus or device stays busy past its timeout.
var ErrBusBusy = fmt.Errorf("bus is busy (command not completed): %w", ErrBus)

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus addresses 7-bit devices. Release frees the bus after an aborted transfer.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// I2CTxBus is implemented by buses able to chain a write and a read to the same
// device without a stop condition in between (repeated start).
type I2CTxBus interface {
	I2CBus
	Tx(ctx context.Context, address byte, w, r []byte) error
}

// SPIConn is a full duplex SPI connection to a single chip select.
// len(r) may be 0 for write-only transfers, otherwise len(r) == len(w).
type SPIConn interface {
	Tx(ctx context.Context, w, r []byte) error
}

// Initializer is implemented by transports whose electrical parameters
// can be configured from TransportParams. Init must be idempotent.
type Initializer interface {
	Init(ctx context.Context, params TransportParams) error
}
