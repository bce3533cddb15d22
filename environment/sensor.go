package environment

import "context"

// LightSensor reports illuminance in lux.
type LightSensor interface {
	GetLux(ctx context.Context) (int, error)
}

// TemperatureHumiditySensor reports temperature in Celsius and relative humidity in %RH.
type TemperatureHumiditySensor interface {
	GetTemperature(ctx context.Context) (float32, error)
	GetHumidity(ctx context.Context) (float32, error)
	GetTempAndHum(ctx context.Context) (float32, float32, error)
}

var (
	_ LightSensor               = &BH1750{}
	_ TemperatureHumiditySensor = &HDC2080{}
)
