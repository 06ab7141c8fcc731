//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"runtime/interrupt"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/itohio/govitals/pkg/monitor"
)

// ecgADC samples the ECG front end. The on-chip conversion always completes.
type ecgADC struct {
	adc machine.ADC
}

func (a *ecgADC) Read() (uint16, bool) {
	// machine.ADC returns 16-bit left-aligned values.
	return a.adc.Get() >> (16 - ADC_RESOLUTION), true
}

// gpio drives an output pin and remembers its level, since not every
// target reads back output pins.
type gpio struct {
	pin   machine.Pin
	level bool
}

func newGPIO(pin machine.Pin) *gpio {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pin.Low()
	return &gpio{pin: pin}
}

func (g *gpio) Set(high bool) {
	g.level = high
	g.pin.Set(high)
}

func (g *gpio) Get() bool {
	return g.level
}

func main() {
	// ECG ADC
	machine.InitADC()
	PIN_ECG_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adc := machine.ADC{Pin: PIN_ECG_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	// PPG sensor
	if err := machine.I2C0.Configure(machine.I2CConfig{Frequency: I2C_FREQUENCY}); err != nil {
		halt("i2c configure failed", err)
	}
	sensor := &oximeter{bus: machine.I2C0}
	if err := sensor.configure(); err != nil {
		halt("max30102 configure failed", err)
	}

	// Telemetry UART
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	out := alarm.Outputs{
		Green:  newGPIO(PIN_LED_GREEN),
		Red:    newGPIO(PIN_LED_RED),
		Buzzer: newGPIO(PIN_BUZZER),
	}

	mon := monitor.New(monitor.DefaultConfig(), &ecgADC{adc: adc}, sensor, out, uart, nil)
	println("monitor: filling window")

	if err := mon.Run(context.Background()); err != nil {
		halt("monitor stopped", err)
	}
}

// halt reports a fatal error and stops with interrupts disabled. Outputs
// keep their last level.
func halt(msg string, err error) {
	println(msg+":", err.Error())
	interrupt.Disable()
	for {
	}
}
