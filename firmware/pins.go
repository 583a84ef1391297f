//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 1  // ADC read interval in milliseconds (all channels)
	NUM_SAMPLES        = 20 // Number of samples to average per output line

	// Heater time-proportioning window. The heater pin is high for
	// permille/1000 of every window.
	HEATER_WINDOW_MS = 1000

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)
	COUNTS_FULLSCALE = 32767

	// Outputs
	PIN_HEATER = machine.D7
	PIN_FAN    = machine.D8

	// Serial configuration
	// Line format: "unix_micros,a0,a1,a2,a3,heater_permille,fan\n"
	// Example: "1234567890123456,32767,32767,32767,32767,1000,1\n" = ~50 bytes max per line
	// 50 outputs/sec * 50 bytes/line = 2,500 bytes/sec
	// UART 8N1: 10 bits/byte = 25,000 baud minimum.
	// 115200 provides ~4.6x headroom
	UART_BAUD_RATE = 115200
)

// Thermistor divider inputs, in the order reported on the wire.
var PIN_ADC = [4]machine.Pin{machine.A0, machine.A1, machine.A2, machine.A3}
