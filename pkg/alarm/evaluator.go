package alarm

import "github.com/itohio/govitals/pkg/vitals"

// Evaluator applies Classify once per evaluation cycle, publishes the result
// to the shared Flag and drives the outputs it owns.
//
// In the Alert state red and buzzer are left to the annunciator. In every
// other state the evaluator only ever turns them off.
type Evaluator struct {
	flag *Flag
	out  Outputs
	th   Thresholds
	last State
}

// NewEvaluator creates an evaluator publishing to flag.
func NewEvaluator(flag *Flag, out Outputs, th Thresholds) *Evaluator {
	return &Evaluator{
		flag: flag,
		out:  out,
		th:   th,
		last: NoFinger,
	}
}

// Evaluate classifies r and applies the transition. The flag is published
// before the pins are driven.
func (e *Evaluator) Evaluate(r vitals.Reading) State {
	state := Classify(r, e.th)

	switch state {
	case Alert:
		e.flag.Set(Alerting)
		e.out.Green.Set(false)
	default:
		e.flag.Set(Quiescent)
		e.out.Green.Set(true)
		e.out.Red.Set(false)
		e.out.Buzzer.Set(false)
	}

	e.last = state
	return state
}

// Last returns the state of the most recent evaluation.
func (e *Evaluator) Last() State {
	return e.last
}

// Thresholds returns the limits in use.
func (e *Evaluator) Thresholds() Thresholds {
	return e.th
}
