// Package sampling reads a fixed set of devices on a clock.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/devices/snsctx"
)

type Config struct {
	Interval time.Duration
	Sources  []Source
}

// Sampler reads every source once per interval. A failing device does not
// stop the others, its reading carries the error instead.
type Sampler struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) (*Sampler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("sampler: interval must be > 0")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("sampler: at least one source required")
	}
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("sampler: source %d has no name", i)
		}
		if src.Probe == nil {
			return nil, fmt.Errorf("sampler: source %q has no probe", src.Name)
		}
	}
	return &Sampler{cfg: cfg, now: time.Now}, nil
}

// SampleOnce reads all sources in order.
func (s *Sampler) SampleOnce(ctx context.Context) []Reading {
	res := make([]Reading, 0, len(s.cfg.Sources))
	for _, src := range s.cfg.Sources {
		r := Reading{Device: src.Name, Kind: src.Kind, At: s.now()}
		r.Values, r.Err = src.Probe.Sample(ctx)
		res = append(res, r)
	}
	return res
}

// Run samples on every tick and emits the readings on out until ctx is done.
// Failures are logged and sampling continues.
func (s *Sampler) Run(ctx context.Context, out chan<- []Reading) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		readings := s.SampleOnce(ctx)
		for _, r := range readings {
			if r.Err != nil {
				snsctx.Logger(ctx).Error("sampling failed", "device", r.Device, "kind", r.Kind, "err", r.Err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case out <- readings:
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
