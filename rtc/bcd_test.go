package rtc

import (
	"fmt"
	"testing"

	"github.com/mklimuk/devices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBCD(t *testing.T) {
	tests := []struct {
		field    BCDField
		v        int
		expected byte
	}{
		{BCDSeconds, 0, 0x00},
		{BCDSeconds, 59, 0x59},
		{BCDMinutes, 7, 0x07},
		{BCDHours24, 23, 0x23},
		{BCDHours12, 12, 0x12},
		{BCDDays, 31, 0x31},
		{BCDMonths, 10, 0x10},
		{BCDYears, 99, 0x99},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s/%d", test.field.Name, test.v), func(t *testing.T) {
			b, err := ToBCD(test.field, test.v)
			require.NoError(t, err)
			assert.Equal(t, test.expected, b)
			v, err := FromBCD(test.field, b)
			require.NoError(t, err)
			assert.Equal(t, test.v, v)
		})
	}
}

func TestToBCD_OutOfRange(t *testing.T) {
	tests := []struct {
		field BCDField
		v     int
	}{
		{BCDSeconds, 60},
		{BCDSeconds, -1},
		{BCDHours24, 24},
		{BCDHours12, 0},
		{BCDHours12, 13},
		{BCDDays, 0},
		{BCDMonths, 13},
		{BCDYears, 100},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s/%d", test.field.Name, test.v), func(t *testing.T) {
			_, err := ToBCD(test.field, test.v)
			assert.ErrorIs(t, err, devices.ErrInvalidArgument)
		})
	}
}

func TestFromBCD_IgnoresForeignBits(t *testing.T) {
	// oscillator stop flag in the seconds register
	v, err := FromBCD(BCDSeconds, 0x80|0x42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	// AM/PM flag in the hours register in 12 hour mode
	v, err = FromBCD(BCDHours12, 0x20|0x11)
	require.NoError(t, err)
	assert.Equal(t, 11, v)
}

func TestFromBCD_Invalid(t *testing.T) {
	_, err := FromBCD(BCDSeconds, 0x1A)
	assert.ErrorIs(t, err, devices.ErrInvalidArgument)
	_, err = FromBCD(BCDMonths, 0x00)
	assert.ErrorIs(t, err, devices.ErrInvalidArgument)
	_, err = FromBCD(BCDHours24, 0x29)
	assert.ErrorIs(t, err, devices.ErrInvalidArgument)
}
