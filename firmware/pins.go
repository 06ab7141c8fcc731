//go:build tinygo

package main

import "machine"

const (
	// ECG front end
	PIN_ECG_ADC      = machine.A0
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Status outputs
	PIN_LED_GREEN = machine.D7
	PIN_LED_RED   = machine.D8
	PIN_BUZZER    = machine.D9

	// MAX30102 on I2C0 (SDA/SCL)
	I2C_FREQUENCY = 400 * machine.KHz

	// Serial configuration
	// ECG line "4095\n" is 5 bytes at 500 Hz = 2,500 bytes/sec, plus one
	// "S:100,255\n" per second. UART 8N1 needs 25,000 baud minimum.
	UART_BAUD_RATE = 115200
)
