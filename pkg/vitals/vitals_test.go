package vitals

import (
	"testing"

	"github.com/itohio/govitals/pkg/ppg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatWindow returns a full window with constant red and infrared levels.
func flatWindow(red, ir uint32) []ppg.Pair {
	pairs := make([]ppg.Pair, ppg.WindowSize)
	for i := range pairs {
		pairs[i] = ppg.Pair{Red: red, IR: ir}
	}
	return pairs
}

// peakWindow returns a flat infrared baseline with single-sample peaks at the given indices.
// Red follows infrared at 9/10 of its level.
func peakWindow(baseline, peak uint32, indices ...int) []ppg.Pair {
	pairs := flatWindow(baseline*9/10, baseline)
	for _, i := range indices {
		pairs[i] = ppg.Pair{Red: peak * 9 / 10, IR: peak}
	}
	return pairs
}

func TestSpO2(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []ppg.Pair
		want    float32
		wantInt int
	}{
		{
			name:    "ratio 0.5",
			pairs:   flatWindow(50, 100), // sums 5000 / 10000
			want:    97.5,
			wantInt: 97,
		},
		{
			name:    "ratio 0.9",
			pairs:   flatWindow(18000, 20000),
			want:    87.5,
			wantInt: 87,
		},
		{
			name:    "clamped high",
			pairs:   flatWindow(0, 20000),
			want:    100,
			wantInt: 100,
		},
		{
			name:    "clamped low",
			pairs:   flatWindow(100000, 20000),
			want:    0,
			wantInt: 0,
		},
		{
			name:    "zero infrared",
			pairs:   flatWindow(0, 0),
			want:    0,
			wantInt: 0,
		},
		{
			name:    "zero infrared ignores red",
			pairs:   flatWindow(250000, 0),
			want:    0,
			wantInt: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SpO2(tt.pairs)
			assert.InDelta(t, tt.want, got, 0.001)
			assert.Equal(t, tt.wantInt, Estimate(tt.pairs).SpO2)
		})
	}
}

func TestMeanIR(t *testing.T) {
	assert.Equal(t, uint32(0), MeanIR(nil))
	assert.Equal(t, uint32(20000), MeanIR(flatWindow(0, 20000)))

	// Integer mean truncates.
	pairs := flatWindow(0, 10000)
	pairs[0].IR = 10099
	assert.Equal(t, uint32(10000), MeanIR(pairs))
}

func TestHeartRate(t *testing.T) {
	tests := []struct {
		name  string
		pairs []ppg.Pair
		want  float32
	}{
		{
			name:  "flat signal has no peaks",
			pairs: flatWindow(18000, 20000),
			want:  0,
		},
		{
			name:  "single peak",
			pairs: peakWindow(20000, 30000, 40),
			want:  60,
		},
		{
			name:  "peaks 10 apart count once",
			pairs: peakWindow(20000, 30000, 20, 30),
			want:  60,
		},
		{
			name:  "peaks 30 apart count twice",
			pairs: peakWindow(20000, 30000, 20, 50),
			want:  120,
		},
		{
			name:  "peaks exactly 25 apart count once",
			pairs: peakWindow(20000, 30000, 20, 45),
			want:  60,
		},
		{
			name:  "peaks 26 apart count twice",
			pairs: peakWindow(20000, 30000, 20, 46),
			want:  120,
		},
		{
			name:  "first sample is never a peak",
			pairs: peakWindow(20000, 30000, 0),
			want:  0,
		},
		{
			name:  "last sample is never a peak",
			pairs: peakWindow(20000, 30000, ppg.WindowSize-1),
			want:  0,
		},
		{
			name:  "peak at first scanned index accepted",
			pairs: peakWindow(20000, 30000, 1),
			want:  60,
		},
		{
			name:  "no finger suppresses peaks",
			pairs: peakWindow(5000, 9000, 20, 50, 80),
			want:  0,
		},
		{
			name:  "four well separated peaks",
			pairs: peakWindow(20000, 30000, 5, 31, 57, 83),
			want:  240,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HeartRate(tt.pairs))
		})
	}
}

func TestHeartRate_PlateauIsNotAPeak(t *testing.T) {
	pairs := peakWindow(20000, 30000, 40, 41)
	assert.Equal(t, float32(0), HeartRate(pairs))
}

func TestEstimate(t *testing.T) {
	r := Estimate(peakWindow(20000, 30000, 40))
	assert.Equal(t, 87, r.SpO2)
	assert.Equal(t, 60, r.HeartRate)
	assert.Equal(t, uint32(20100), r.MeanIR)
}

func TestEstimator_RejectsPartialWindow(t *testing.T) {
	w := ppg.NewWindow(ppg.WindowSize)
	w.Push(ppg.Pair{Red: 1, IR: 1})

	e := NewEstimator(ppg.WindowSize)
	_, err := e.Estimate(w)
	assert.ErrorIs(t, err, ErrNotFilled)
}

func TestEstimator_Estimate(t *testing.T) {
	w := ppg.NewWindow(ppg.WindowSize)
	for _, p := range peakWindow(20000, 30000, 20, 50) {
		w.Push(p)
	}

	e := NewEstimator(ppg.WindowSize)
	r, err := e.Estimate(w)
	require.NoError(t, err)
	assert.Equal(t, 120, r.HeartRate)
	assert.Equal(t, 87, r.SpO2)
}
