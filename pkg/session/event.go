package session

import (
	"strconv"
	"time"

	"github.com/itohio/govitals/pkg/sample"
)

// EventType is the TYPE column of a session history row.
type EventType string

const (
	EventSystem EventType = "SYSTEM"
	EventAlarm  EventType = "ALARM"
	EventInfo   EventType = "INFO"
	EventECG    EventType = "ECG"
	EventVitals EventType = "VITALS"
)

// Event details.
const (
	DetailRecordingStarted = "RECORDING STARTED"
	DetailRecordingStopped = "RECORDING STOPPED"
	DetailAppClosed        = "APPLICATION CLOSED"
	DetailHypoxia          = "HYPOXIA DETECTED"
	DetailRecovered        = "O2 LEVEL NORMALIZED"
	DetailECGSample        = "Sample"
	DetailVitals           = "SPO2/HR"
)

// Event is one row of session history.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Detail    string    `json:"detail"`
	Value     string    `json:"value,omitempty"`
}

// Vitals is one SpO2/heart-rate report as received by the host.
type Vitals struct {
	Timestamp time.Time `json:"timestamp"`
	SpO2      int       `json:"spo2"`
	HeartRate int       `json:"heart_rate"`
}

// Event returns the history row for the report.
func (v Vitals) Event() Event {
	return Event{
		Timestamp: v.Timestamp,
		Type:      EventVitals,
		Detail:    DetailVitals,
		Value:     strconv.Itoa(v.SpO2) + "/" + strconv.Itoa(v.HeartRate),
	}
}

// SampleEvent returns the history row for an ECG sample.
func SampleEvent(s sample.Sample) Event {
	return Event{
		Timestamp: s.Timestamp,
		Type:      EventECG,
		Detail:    DetailECGSample,
		Value:     strconv.FormatFloat(s.Value, 'f', 2, 64),
	}
}

// Sink receives session data as it arrives. Implementations must not block
// for long: they are called on the processing goroutine.
type Sink interface {
	Sample(s sample.Sample) error
	Vitals(v Vitals) error
	Event(e Event) error
}
