package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundDownToStep(t *testing.T) {
	assert.Equal(t, 49.9, RoundDownToStep(49.95, 0.1))
	assert.Equal(t, 0.001, RoundDownToStep(0.0019, 0.001))
	assert.Equal(t, 27300.0, RoundDownToStep(27342.7, 100))
	// нулевой шаг — без округления
	assert.Equal(t, 1.2345, RoundDownToStep(1.2345, 0))
}

func TestFormatQty_NoExponent(t *testing.T) {
	assert.Equal(t, "0.00000001", FormatQty(1e-8))
	assert.Equal(t, "49.95", FormatQty(49.95))
	assert.Equal(t, "100", FormatQty(100.0))
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(98.02, 98.0, 0.005))
	assert.False(t, WithinTolerance(99.0, 98.0, 0.005))
	assert.True(t, WithinTolerance(0, 0, 0.005))
	assert.False(t, WithinTolerance(1, 0, 0.005))
}
