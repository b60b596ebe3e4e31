package pid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBypassPID(t *testing.T) *Controller {
	c, err := New(150, 2.5, 5, 3)
	require.NoError(t, err)
	require.NoError(t, c.SetOutputRange(0, 10000))
	return c
}

func TestNew_InvalidCoefficients(t *testing.T) {
	tests := []struct {
		name           string
		kp, ki, kd, hz float64
	}{
		{"negative kp", -1, 0, 0, 3},
		{"kp too large", 256, 0, 0, 3},
		{"kd scaled too large", 1, 0, 100, 3},
		{"ki below resolution", 1, 0.001, 0, 3},
		{"zero rate", 1, 1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kp, tt.ki, tt.kd, tt.hz)
			assert.ErrorIs(t, err, ErrCoefficient)
		})
	}
}

func TestSetOutputRange_Invalid(t *testing.T) {
	c, err := New(1, 0, 0, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, c.SetOutputRange(10, 10), ErrOutputRange)
	assert.ErrorIs(t, c.SetOutputRange(10, 0), ErrOutputRange)
}

func TestStep_Bounded(t *testing.T) {
	c := newBypassPID(t)

	// Far below setpoint saturates high.
	assert.Equal(t, 10000, c.Step(700, 250))

	// Far above setpoint saturates low.
	c.Reset()
	assert.Equal(t, 0, c.Step(700, 900))
}

func TestStep_ApproachReducesOutput(t *testing.T) {
	c, err := New(10, 0, 0, 3)
	require.NoError(t, err)
	require.NoError(t, c.SetOutputRange(0, 10000))

	far := c.Step(700, 300)
	near := c.Step(700, 650)
	assert.Greater(t, far, near)
	assert.Equal(t, 4000, far)
	assert.Equal(t, 500, near)
}

func TestStep_IntegralAccumulates(t *testing.T) {
	c, err := New(0, 3, 0, 3)
	require.NoError(t, err)
	require.NoError(t, c.SetOutputRange(0, 10000))

	assert.Equal(t, 10, c.Step(710, 700))
	assert.Equal(t, 20, c.Step(710, 700))

	c.Reset()
	assert.Equal(t, 10, c.Step(710, 700))
}

func TestStep_DerivativeOnMeasurement(t *testing.T) {
	c, err := New(0, 0, 1, 3)
	require.NoError(t, err)
	require.NoError(t, c.SetOutputRange(-1000, 1000))

	assert.Equal(t, 0, c.Step(700, 600), "first step has no history")
	assert.Equal(t, -30, c.Step(700, 610))
	assert.Equal(t, 30, c.Step(500, 600), "setpoint change must not kick")
}
