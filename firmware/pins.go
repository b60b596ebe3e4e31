//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Bus configuration
	UART_BAUD_RATE = 2400

	// Control timing
	CYCLE_PERIOD     = 333 * time.Millisecond // Awake control cycle, matches the regulator rate
	SLEEP_WATCHDOG   = 8 * time.Second        // Wakeup period while asleep
	HW_WATCHDOG_MS   = 10000                  // Hardware reset if the loop stalls this long
	REFERENCE_SETTLE = 2 * time.Millisecond   // Thermistor divider settle after power on

	// ADC configuration
	ADC_RESOLUTION = 10 // Bits per reading reported to the core

	// Configuration record location inside the flash page
	CONFIG_OFFSET = 0x10

	// Outputs
	PIN_LOAD      = machine.D2 // Bypass load MOSFET, PWM capable
	PIN_BALANCE   = machine.D3 // Active balancing switch
	PIN_REFERENCE = machine.D4 // Thermistor and divider supply
	PIN_TX_ENABLE = machine.D5 // Bus transmitter enable
	PIN_STATUS    = machine.LED

	// ADC pins
	PIN_CELL_VOLTAGE = machine.A0
	PIN_INTERNAL_NTC = machine.A1
	PIN_EXTERNAL_NTC = machine.A10
)

var (
	uart    = machine.DefaultUART
	loadPWM = machine.TCC0
)
