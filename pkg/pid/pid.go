// Package pid implements a small fixed-rate PID controller with a bounded
// integer output, sized for driving a PWM duty cycle.
package pid

import (
	"errors"
	"fmt"
)

const (
	// MaxCoefficient is the largest accepted scaled gain.
	MaxCoefficient = 255
	// Resolution is the smallest non-zero scaled gain.
	Resolution = 1.0 / 256
)

var (
	// ErrCoefficient reports a gain outside the supported range.
	ErrCoefficient = errors.New("pid coefficient out of range")
	// ErrOutputRange reports an empty or inverted output range.
	ErrOutputRange = errors.New("pid output range invalid")
)

// Controller is a PID controller stepped at a fixed rate. The integral term
// is scaled by 1/hz and the derivative by hz, so gains are per second. The
// derivative acts on the measurement to avoid kicks on setpoint changes.
type Controller struct {
	p, i, d float64

	outMin, outMax int

	sum    float64
	lastFB int
	primed bool
}

// New creates a controller with the given gains for a loop running at hz.
func New(kp, ki, kd, hz float64) (*Controller, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("rate %v: %w", hz, ErrCoefficient)
	}

	c := &Controller{outMin: 0, outMax: 1<<16 - 1}
	var err error
	if c.p, err = coefficient(kp); err != nil {
		return nil, fmt.Errorf("kp: %w", err)
	}
	if c.i, err = coefficient(ki / hz); err != nil {
		return nil, fmt.Errorf("ki: %w", err)
	}
	if c.d, err = coefficient(kd * hz); err != nil {
		return nil, fmt.Errorf("kd: %w", err)
	}
	return c, nil
}

func coefficient(v float64) (float64, error) {
	if v < 0 || v > MaxCoefficient {
		return 0, fmt.Errorf("%v: %w", v, ErrCoefficient)
	}
	if v != 0 && v < Resolution {
		return 0, fmt.Errorf("%v below resolution: %w", v, ErrCoefficient)
	}
	return v, nil
}

// SetOutputRange bounds the controller output to [min, max].
func (c *Controller) SetOutputRange(min, max int) error {
	if min >= max {
		return fmt.Errorf("[%d, %d]: %w", min, max, ErrOutputRange)
	}
	c.outMin, c.outMax = min, max
	c.Reset()
	return nil
}

// OutputRange returns the configured output bounds.
func (c *Controller) OutputRange() (min, max int) {
	return c.outMin, c.outMax
}

// Reset clears the integral and derivative history.
func (c *Controller) Reset() {
	c.sum = 0
	c.lastFB = 0
	c.primed = false
}

// Step advances the controller by one period and returns the new output.
func (c *Controller) Step(setpoint, feedback int) int {
	e := float64(setpoint - feedback)

	out := c.p * e

	if c.i != 0 {
		c.sum = clamp(c.sum+c.i*e, float64(c.outMin), float64(c.outMax))
		out += c.sum
	}

	if c.d != 0 && c.primed {
		out -= c.d * float64(feedback-c.lastFB)
	}
	c.lastFB = feedback
	c.primed = true

	return int(clamp(out, float64(c.outMin), float64(c.outMax)))
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
