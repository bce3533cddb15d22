package sampling

import (
	"context"
	"time"

	"github.com/mklimuk/devices/environment"
)

// Probe reads the current values of one device.
type Probe interface {
	Sample(ctx context.Context) ([]Value, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) ([]Value, error)

func (f ProbeFunc) Sample(ctx context.Context) ([]Value, error) {
	return f(ctx)
}

// LightProbe samples illuminance.
func LightProbe(sensor environment.LightSensor) Probe {
	return ProbeFunc(func(ctx context.Context) ([]Value, error) {
		lux, err := sensor.GetLux(ctx)
		if err != nil {
			return nil, err
		}
		return []Value{{Quantity: "illuminance", Value: float64(lux), Unit: "lx"}}, nil
	})
}

// ClimateProbe samples temperature and relative humidity.
func ClimateProbe(sensor environment.TemperatureHumiditySensor) Probe {
	return ProbeFunc(func(ctx context.Context) ([]Value, error) {
		temp, hum, err := sensor.GetTempAndHum(ctx)
		if err != nil {
			return nil, err
		}
		return []Value{
			{Quantity: "temperature", Value: float64(temp), Unit: "°C"},
			{Quantity: "humidity", Value: float64(hum), Unit: "%RH"},
		}, nil
	})
}

// Clock is a real time clock.
type Clock interface {
	GetDateTime(ctx context.Context) (time.Time, error)
}

// ClockProbe reports the offset of the clock from now in seconds.
func ClockProbe(clock Clock, now func() time.Time) Probe {
	if now == nil {
		now = time.Now
	}
	return ProbeFunc(func(ctx context.Context) ([]Value, error) {
		t, err := clock.GetDateTime(ctx)
		if err != nil {
			return nil, err
		}
		return []Value{{Quantity: "drift", Value: t.Sub(now()).Seconds(), Unit: "s"}}, nil
	})
}

// FlowMeter measures a mass flow in sccm.
type FlowMeter interface {
	MeasureFlow(ctx context.Context) (float64, error)
}

func FlowProbe(meter FlowMeter) Probe {
	return ProbeFunc(func(ctx context.Context) ([]Value, error) {
		flow, err := meter.MeasureFlow(ctx)
		if err != nil {
			return nil, err
		}
		return []Value{{Quantity: "flow", Value: flow, Unit: "sccm"}}, nil
	})
}
