package regmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/devices"
)

type State int

const (
	Idle State = iota
	Triggered
	Ready
	Consumed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Triggered:
		return "TRIGGERED"
	case Ready:
		return "READY"
	case Consumed:
		return "CONSUMED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ReadyFunc reports whether the device finished a conversion, typically by reading a status bit.
type ReadyFunc func(ctx context.Context) (bool, error)

type MeasurementOpts struct {
	// Conversion is the minimum time between trigger and the first readiness check.
	Conversion time.Duration
	// PollInterval is the delay between readiness checks in Wait.
	PollInterval time.Duration
	// Ready is polled after Conversion elapsed. Nil means elapsed time alone is enough.
	Ready ReadyFunc
	Now   func() time.Time
}

type MeasurementOpt func(*MeasurementOpts)

func WithConversionTime(d time.Duration) MeasurementOpt {
	return func(o *MeasurementOpts) {
		o.Conversion = d
	}
}

func WithPollInterval(d time.Duration) MeasurementOpt {
	return func(o *MeasurementOpts) {
		o.PollInterval = d
	}
}

func WithReadyFunc(f ReadyFunc) MeasurementOpt {
	return func(o *MeasurementOpts) {
		o.Ready = f
	}
}

func WithClock(now func() time.Time) MeasurementOpt {
	return func(o *MeasurementOpts) {
		o.Now = now
	}
}

// Measurement is returned by driver Trigger operations. Its Result can only be
// fetched once, after Wait or Poll reported the conversion complete.
//
//	m, err := sensor.TriggerMeasurement(ctx, mode)
//	err = m.Wait(ctx)
//	lux, err := m.Result(ctx)
type Measurement[T any] struct {
	mx        sync.Mutex
	state     State
	triggered time.Time
	opts      MeasurementOpts
	read      func(ctx context.Context) (T, error)
}

// NewMeasurement creates a handle in Triggered state. read decodes the result once ready.
func NewMeasurement[T any](read func(ctx context.Context) (T, error), opts ...MeasurementOpt) *Measurement[T] {
	o := MeasurementOpts{
		PollInterval: 5 * time.Millisecond,
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Measurement[T]{
		state:     Triggered,
		triggered: o.Now(),
		opts:      o,
		read:      read,
	}
}

func (m *Measurement[T]) State() State {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.state
}

// Poll checks readiness once without blocking beyond the bus transaction.
func (m *Measurement[T]) Poll(ctx context.Context) (bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	switch m.state {
	case Ready:
		return true, nil
	case Triggered:
	default:
		return false, fmt.Errorf("measurement is %s: %w", m.state, devices.ErrNotReady)
	}
	if m.opts.Now().Sub(m.triggered) < m.opts.Conversion {
		return false, nil
	}
	if m.opts.Ready != nil {
		ok, err := m.opts.Ready(ctx)
		if err != nil {
			return false, fmt.Errorf("could not poll readiness: %w", err)
		}
		if !ok {
			return false, nil
		}
	}
	m.state = Ready
	return true, nil
}

// Wait polls until the measurement is ready or ctx is done.
func (m *Measurement[T]) Wait(ctx context.Context) error {
	for {
		ok, err := m.Poll(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		wait := m.opts.PollInterval
		m.mx.Lock()
		if remaining := m.opts.Conversion - m.opts.Now().Sub(m.triggered); remaining > wait {
			wait = remaining
		}
		m.mx.Unlock()
		if err := Settle(ctx, wait); err != nil {
			return fmt.Errorf("waiting for measurement: %w", err)
		}
	}
}

// Result reads and decodes the measurement. A failed read leaves the handle
// ready so the call can be retried.
func (m *Measurement[T]) Result(ctx context.Context) (T, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	var zero T
	if m.state != Ready {
		return zero, fmt.Errorf("measurement is %s: %w", m.state, devices.ErrNotReady)
	}
	v, err := m.read(ctx)
	if err != nil {
		return zero, err
	}
	m.state = Consumed
	return v, nil
}
