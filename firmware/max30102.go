//go:build tinygo

package main

import (
	"machine"

	"github.com/itohio/govitals/pkg/ppg"
)

// MAX30102 registers.
const (
	max30102Address = 0x57

	regIntEnable1 = 0x02
	regIntEnable2 = 0x03
	regFIFOWrite  = 0x04
	regFIFOOvf    = 0x05
	regFIFORead   = 0x06
	regFIFOData   = 0x07
	regFIFOConfig = 0x08
	regModeConfig = 0x09
	regSpO2Config = 0x0A
	regLED1PA     = 0x0C
	regLED2PA     = 0x0D
	regPartID     = 0xFF

	partID = 0x15
)

// oximeter reads one red+IR record per call from the sensor FIFO.
type oximeter struct {
	bus    *machine.I2C
	record [ppg.RecordSize]byte
}

var _ ppg.Source = (*oximeter)(nil)

// configure puts the sensor in SpO2 mode: 4-sample averaging with rollover,
// 4096 nA range, 100 samples/s, 411 µs pulses (18 bit), 7 mA on both LEDs.
func (o *oximeter) configure() error {
	id := []byte{0}
	if err := o.bus.ReadRegister(max30102Address, regPartID, id); err != nil {
		return err
	}
	if id[0] != partID {
		println("max30102: unexpected part id", id[0])
	}

	regs := [...][2]byte{
		{regIntEnable1, 0xC0},
		{regIntEnable2, 0x00},
		{regFIFOWrite, 0x00},
		{regFIFOOvf, 0x00},
		{regFIFORead, 0x00},
		{regFIFOConfig, 0x5F},
		{regModeConfig, 0x03},
		{regSpO2Config, 0x27},
		{regLED1PA, 0x24},
		{regLED2PA, 0x24},
	}
	for _, r := range regs {
		if err := o.bus.WriteRegister(max30102Address, r[0], r[1:]); err != nil {
			return err
		}
	}
	return nil
}

// Read implements ppg.Source.
func (o *oximeter) Read() (ppg.Pair, error) {
	if err := o.bus.ReadRegister(max30102Address, regFIFOData, o.record[:]); err != nil {
		return ppg.Pair{}, err
	}
	return ppg.Decode(o.record[:])
}
