package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidLine is returned for lines that match neither message kind.
var ErrInvalidLine = errors.New("telemetry: invalid line")

// Kind identifies a telemetry message.
type Kind uint8

const (
	// KindECG is a filtered ECG sample.
	KindECG Kind = iota + 1
	// KindVitals is an SpO2 and heart-rate summary.
	KindVitals
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindECG:
		return "ECG"
	case KindVitals:
		return "VITALS"
	default:
		return "UNKNOWN"
	}
}

// Message is one decoded telemetry line.
type Message struct {
	Kind      Kind
	Timestamp time.Time // host receive time
	ECG       int
	SpO2      int
	HeartRate int
}

// Line formats the message back into its wire form, including the newline.
func (m Message) Line() string {
	switch m.Kind {
	case KindECG:
		return string(AppendECG(nil, m.ECG))
	case KindVitals:
		return string(AppendVitals(nil, m.SpO2, m.HeartRate))
	default:
		return ""
	}
}

// ParseLine decodes one line, with or without its trailing newline.
// Format: "<int>" or "S:<spo2>,<hr>".
func ParseLine(line string) (Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, fmt.Errorf("%w: empty", ErrInvalidLine)
	}

	if rest, ok := strings.CutPrefix(line, vitalsPrefix); ok {
		spo2Str, hrStr, found := strings.Cut(rest, ",")
		if !found {
			return Message{}, fmt.Errorf("%w: expected 2 comma-separated values in %q", ErrInvalidLine, line)
		}
		spo2, err := strconv.Atoi(spo2Str)
		if err != nil {
			return Message{}, fmt.Errorf("%w: invalid spo2: %v", ErrInvalidLine, err)
		}
		if spo2 < 0 || spo2 > 100 {
			return Message{}, fmt.Errorf("%w: spo2 out of range: %d", ErrInvalidLine, spo2)
		}
		hr, err := strconv.Atoi(hrStr)
		if err != nil {
			return Message{}, fmt.Errorf("%w: invalid heart rate: %v", ErrInvalidLine, err)
		}
		if hr < 0 {
			return Message{}, fmt.Errorf("%w: negative heart rate: %d", ErrInvalidLine, hr)
		}
		return Message{Kind: KindVitals, SpO2: spo2, HeartRate: hr}, nil
	}

	v, err := strconv.Atoi(line)
	if err != nil {
		return Message{}, fmt.Errorf("%w: invalid ecg sample: %v", ErrInvalidLine, err)
	}
	return Message{Kind: KindECG, ECG: v}, nil
}
