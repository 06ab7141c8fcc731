package alarm

import "sync/atomic"

// Pin is a binary output. TinyGo's machine.Pin satisfies it.
type Pin interface {
	Set(high bool)
	Get() bool
}

// Outputs groups the three physical status signals.
type Outputs struct {
	Green  Pin // ok indicator, owned by the evaluator
	Red    Pin // alert indicator, toggled by the annunciator
	Buzzer Pin // toggled by the annunciator
}

// MemPin is an in-memory Pin safe for use from several goroutines.
type MemPin struct {
	on    atomic.Bool
	edges atomic.Uint64
}

// Set drives the pin.
func (p *MemPin) Set(high bool) {
	if p.on.Swap(high) != high {
		p.edges.Add(1)
	}
}

// Get returns the pin level.
func (p *MemPin) Get() bool {
	return p.on.Load()
}

// Edges returns the number of level changes since creation.
func (p *MemPin) Edges() uint64 {
	return p.edges.Load()
}
