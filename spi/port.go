package spi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/devices"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var (
	_ devices.SPIConn     = &Port{}
	_ devices.Initializer = &Port{}
)

// DefaultFrequency is used when the port is used before Init.
const DefaultFrequency = 1 * physic.MegaHertz

// Port is a host SPI port opened through periph.io. The connection is
// (re)established by Init with the clock from TransportParams.
type Port struct {
	mx   sync.Mutex
	port spi.PortCloser
	mode spi.Mode
	conn spi.Conn
	freq physic.Frequency
}

// Open opens a host SPI port by name (e.g. "SPI0.0", "" for the first one).
func Open(name string, mode spi.Mode) (*Port, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %q: %w", name, err)
	}
	return NewPort(port, mode), nil
}

// NewPort wraps an already opened periph port.
func NewPort(port spi.PortCloser, mode spi.Mode) *Port {
	return &Port{port: port, mode: mode}
}

// Init connects the port at params.Frequency. Calling it again with the same
// frequency keeps the existing connection.
func (p *Port) Init(ctx context.Context, params devices.TransportParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.connect(params.Frequency)
}

func (p *Port) connect(f physic.Frequency) error {
	if p.conn != nil {
		if p.freq == f {
			return nil
		}
		return fmt.Errorf("spi port already connected at %s: %w", p.freq, devices.ErrInvalidArgument)
	}
	conn, err := p.port.Connect(f, p.mode, 8)
	if err != nil {
		return fmt.Errorf("could not connect spi port at %s: %w", f, err)
	}
	p.conn = conn
	p.freq = f
	return nil
}

func (p *Port) Tx(ctx context.Context, w, r []byte) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.conn == nil {
		if err := p.connect(DefaultFrequency); err != nil {
			return err
		}
	}
	if len(r) == 0 {
		r = make([]byte, len(w))
	}
	if err := p.conn.Tx(w, r); err != nil {
		return fmt.Errorf("spi transfer failed: %w", err)
	}
	return nil
}

func (p *Port) Close() error {
	return p.port.Close()
}
