package environment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLightSensor(t *testing.T) {
	calls := 0
	var sensor LightSensor = NewMockBH1750(func(ctx context.Context) (int, error) {
		calls++
		return calls * 100, nil
	})
	ctx := context.Background()
	for _, expected := range []int{100, 200, 300} {
		lux, err := sensor.GetLux(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, lux)
	}
}

func TestMockLightSensor_ContextUsage(t *testing.T) {
	sensor := NewMockLightSensor(func(ctx context.Context) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 500, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	lux, err := sensor.GetLux(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, lux)
	cancel()
	_, err = sensor.GetLux(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockTemperatureAndHumiditySensor(t *testing.T) {
	temp := float32(20)
	var sensor TemperatureHumiditySensor = NewMockHDC2080(
		func(ctx context.Context) (float32, error) { return temp, nil },
		func(ctx context.Context) (float32, error) { return 45, nil },
	)
	ctx := context.Background()

	tv, hv, err := sensor.GetTempAndHum(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(20), tv)
	assert.Equal(t, float32(45), hv)

	temp = 22.5
	tv, err = sensor.GetTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(22.5), tv)
	hv, err = sensor.GetHumidity(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(45), hv)
}

func TestMockTemperatureAndHumiditySensor_ErrorHandling(t *testing.T) {
	failure := errors.New("sensor malfunction")
	humCalled := false
	sensor := NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float32, error) { return 0, failure },
		func(ctx context.Context) (float32, error) { humCalled = true; return 50, nil },
	)
	_, _, err := sensor.GetTempAndHum(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.False(t, humCalled)

	sensor = NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float32, error) { return 21, nil },
		func(ctx context.Context) (float32, error) { return 0, failure },
	)
	tv, hv, err := sensor.GetTempAndHum(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.Zero(t, tv)
	assert.Zero(t, hv)
}
