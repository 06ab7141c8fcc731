package sample

// NewAveragingConverter creates a stage that smooths ECG samples with a
// moving average over the last windowSize samples. Every input sample yields
// one output sample carrying its timestamp.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			avg := NewMovingAverage(windowSize)
			for s := range in {
				out <- Sample{Timestamp: s.Timestamp, Value: avg.Add(s.Value)}
			}
		}()

		return out
	}
}

// MovingAverage is a fixed-window running mean.
type MovingAverage struct {
	buf   []float64
	head  int
	count int
	sum   float64
}

// NewMovingAverage creates a moving average over n values.
func NewMovingAverage(n int) *MovingAverage {
	if n <= 0 {
		n = 1
	}
	return &MovingAverage{buf: make([]float64, n)}
}

// Add inserts v and returns the mean of the values in the window.
func (m *MovingAverage) Add(v float64) float64 {
	if m.count == len(m.buf) {
		m.sum -= m.buf[m.head]
	} else {
		m.count++
	}
	m.buf[m.head] = v
	m.sum += v
	m.head = (m.head + 1) % len(m.buf)
	return m.sum / float64(m.count)
}

// Average returns the mean of the samples' values, or 0 for none.
func Average(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples))
}
