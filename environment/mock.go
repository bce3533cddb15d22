package environment

import (
	"context"
)

// LightBehaviorFunc produces the lux value of a MockLightSensor.
type LightBehaviorFunc func(ctx context.Context) (int, error)

// MockLightSensor stands in for a BH1750 when no hardware is attached.
//
//	sensor := NewMockLightSensor(func(ctx context.Context) (int, error) {
//		return 500, nil
//	})
type MockLightSensor struct {
	behavior LightBehaviorFunc
}

func NewMockLightSensor(behavior LightBehaviorFunc) *MockLightSensor {
	return &MockLightSensor{
		behavior: behavior,
	}
}

func (m *MockLightSensor) GetLux(ctx context.Context) (int, error) {
	return m.behavior(ctx)
}

// NewMockBH1750 is NewMockLightSensor.
func NewMockBH1750(behavior LightBehaviorFunc) *MockLightSensor {
	return NewMockLightSensor(behavior)
}

// TemperatureBehaviorFunc produces a temperature in Celsius.
type TemperatureBehaviorFunc func(ctx context.Context) (float32, error)

// HumidityBehaviorFunc produces a relative humidity in %RH.
type HumidityBehaviorFunc func(ctx context.Context) (float32, error)

// MockTemperatureAndHumiditySensor stands in for an HDC2080. GetTempAndHum
// calls the temperature behavior first and stops at the first error.
type MockTemperatureAndHumiditySensor struct {
	tempBehavior TemperatureBehaviorFunc
	humBehavior  HumidityBehaviorFunc
}

func NewMockTemperatureAndHumiditySensor(tempBehavior TemperatureBehaviorFunc, humBehavior HumidityBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return &MockTemperatureAndHumiditySensor{
		tempBehavior: tempBehavior,
		humBehavior:  humBehavior,
	}
}

func (m *MockTemperatureAndHumiditySensor) GetTemperature(ctx context.Context) (float32, error) {
	return m.tempBehavior(ctx)
}

func (m *MockTemperatureAndHumiditySensor) GetHumidity(ctx context.Context) (float32, error) {
	return m.humBehavior(ctx)
}

func (m *MockTemperatureAndHumiditySensor) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	temp, err := m.tempBehavior(ctx)
	if err != nil {
		return 0, 0, err
	}
	hum, err := m.humBehavior(ctx)
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

// NewMockHDC2080 is NewMockTemperatureAndHumiditySensor.
func NewMockHDC2080(tempBehavior TemperatureBehaviorFunc, humBehavior HumidityBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return NewMockTemperatureAndHumiditySensor(tempBehavior, humBehavior)
}
