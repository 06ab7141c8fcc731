package annunciator

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/govitals/pkg/alarm"
	"github.com/stretchr/testify/assert"
)

func newTestAnnunciator() (*Annunciator, *alarm.Flag, *alarm.MemPin, *alarm.MemPin) {
	flag := &alarm.Flag{}
	red, buzzer := &alarm.MemPin{}, &alarm.MemPin{}
	return New(flag, red, buzzer), flag, red, buzzer
}

func TestActivate_QuiescentKeepsOutputsOff(t *testing.T) {
	a, _, red, buzzer := newTestAnnunciator()

	for range 10 {
		a.Activate()
		assert.False(t, red.Get())
		assert.False(t, buzzer.Get())
	}
	assert.Equal(t, uint64(0), red.Edges())
	assert.Equal(t, uint64(0), buzzer.Edges())
	assert.Equal(t, uint64(10), a.Activations())
}

func TestActivate_QuiescentForcesOff(t *testing.T) {
	a, _, red, buzzer := newTestAnnunciator()
	red.Set(true)
	buzzer.Set(true)

	a.Activate()

	assert.False(t, red.Get())
	assert.False(t, buzzer.Get())
}

func TestActivate_AlertTogglesEveryActivation(t *testing.T) {
	tests := []struct {
		name    string
		initial bool
		n       int
	}{
		{name: "from off, odd count", initial: false, n: 5},
		{name: "from off, even count", initial: false, n: 4},
		{name: "from on", initial: true, n: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, flag, red, buzzer := newTestAnnunciator()
			red.Set(tt.initial)
			buzzer.Set(tt.initial)
			redEdges, buzzerEdges := red.Edges(), buzzer.Edges()
			flag.Set(alarm.Alerting)

			for range tt.n {
				a.Activate()
			}

			want := tt.initial != (tt.n%2 == 1)
			assert.Equal(t, want, red.Get())
			assert.Equal(t, want, buzzer.Get())
			assert.Equal(t, uint64(tt.n), red.Edges()-redEdges)
			assert.Equal(t, uint64(tt.n), buzzer.Edges()-buzzerEdges)
		})
	}
}

func TestActivate_AlertThenQuiescent(t *testing.T) {
	a, flag, red, buzzer := newTestAnnunciator()
	flag.Set(alarm.Alerting)
	a.Activate()
	assert.True(t, red.Get())

	flag.Set(alarm.Quiescent)
	a.Activate()
	assert.False(t, red.Get())
	assert.False(t, buzzer.Get())
}

func TestRun(t *testing.T) {
	a, flag, _, _ := newTestAnnunciator()
	flag.Set(alarm.Alerting)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx, 5*time.Millisecond)
	}()

	assert.Eventually(t, func() bool {
		return a.Activations() >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// The evaluator writes the flag while the annunciator reads it from another
// goroutine; run with -race to check the only shared word.
func TestRun_ConcurrentFlagWrites(t *testing.T) {
	a, flag, _, _ := newTestAnnunciator()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx, time.Millisecond)

	for i := range 200 {
		if i%2 == 0 {
			flag.Set(alarm.Alerting)
		} else {
			flag.Set(alarm.Quiescent)
		}
		time.Sleep(100 * time.Microsecond)
	}
}
