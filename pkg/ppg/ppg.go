// Package ppg holds the photoplethysmography sample contract and the sliding
// window the estimators run over.
package ppg

import "errors"

const (
	// Mask limits red and infrared readings to the sensor's 18-bit resolution.
	Mask = 0x3FFFF
	// RecordSize is the size of one red+IR FIFO record in bytes.
	RecordSize = 6
)

// ErrShortRecord is returned when a FIFO record is shorter than RecordSize.
var ErrShortRecord = errors.New("ppg: short FIFO record")

// Pair is one red/infrared intensity sample.
type Pair struct {
	Red uint32
	IR  uint32
}

// Source yields paired red/infrared samples at a fixed cadence.
// Read must return within a bounded time; on timeout it returns an error and
// the caller keeps its previous data.
type Source interface {
	Read() (Pair, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Pair, error)

// Read calls f.
func (f SourceFunc) Read() (Pair, error) {
	return f()
}

// Decode decodes a MAX30102 FIFO record: three big-endian bytes of red
// followed by three of infrared, each masked to 18 bits.
func Decode(b []byte) (Pair, error) {
	if len(b) < RecordSize {
		return Pair{}, ErrShortRecord
	}
	red := (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])) & Mask
	ir := (uint32(b[3])<<16 | uint32(b[4])<<8 | uint32(b[5])) & Mask
	return Pair{Red: red, IR: ir}, nil
}
