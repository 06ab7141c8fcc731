package sample

import (
	"time"

	"go.uber.org/zap"

	"github.com/itohio/govitals/pkg/telemetry"
)

// DefaultBufferSize is the default size of converter output channels.
const DefaultBufferSize = 100

// Sample is one filtered ECG sample as received by the host.
type Sample struct {
	Timestamp time.Time
	Value     float64 // filtered ADC counts, 0-4095
}

// Converter turns a telemetry message stream into an ECG sample stream.
type Converter func(in <-chan telemetry.Message) <-chan Sample

// FromMessage converts an ECG message. ok is false for any other kind.
func FromMessage(m telemetry.Message) (s Sample, ok bool) {
	if m.Kind != telemetry.KindECG {
		return Sample{}, false
	}
	return Sample{Timestamp: m.Timestamp, Value: float64(m.ECG)}, true
}

// NewConverter creates a converter. Vitals messages are passed to onVitals
// (when set) in arrival order, interleaved with the ECG samples.
// The output closes when the input closes.
func NewConverter(onVitals func(telemetry.Message), bufSize int, logger *zap.Logger) Converter {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(in <-chan telemetry.Message) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for m := range in {
				switch m.Kind {
				case telemetry.KindVitals:
					if onVitals != nil {
						onVitals(m)
					}
					continue
				case telemetry.KindECG:
				default:
					logger.Debug("Skipping unknown message", zap.Stringer("kind", m.Kind))
					continue
				}

				s, _ := FromMessage(m)
				select {
				case out <- s:
				case <-time.After(time.Second):
					logger.Warn("Converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}
