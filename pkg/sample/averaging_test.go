package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovingAverage(t *testing.T) {
	m := NewMovingAverage(3)

	assert.Equal(t, 3.0, m.Add(3))
	assert.Equal(t, 4.5, m.Add(6))
	assert.Equal(t, 6.0, m.Add(9))
	assert.Equal(t, 9.0, m.Add(12)) // 3 drops out
	assert.Equal(t, 12.0, m.Add(15))
}

func TestMovingAverage_InvalidSize(t *testing.T) {
	m := NewMovingAverage(0)
	assert.Equal(t, 5.0, m.Add(5))
	assert.Equal(t, 7.0, m.Add(7))
}

func TestNewAveragingConverter(t *testing.T) {
	converter := NewAveragingConverter(2, 10)

	in := make(chan Sample, 10)
	out := converter(in)

	now := time.Now()
	for i, v := range []float64{100, 200, 400} {
		in <- Sample{Timestamp: now.Add(time.Duration(i) * time.Millisecond), Value: v}
	}
	close(in)

	var got []Sample
	for s := range out {
		got = append(got, s)
	}

	require.Len(t, got, 3)
	assert.Equal(t, 100.0, got[0].Value)
	assert.Equal(t, 150.0, got[1].Value)
	assert.Equal(t, 300.0, got[2].Value)
	assert.Equal(t, now.Add(2*time.Millisecond), got[2].Timestamp)
}

func TestAverage(t *testing.T) {
	assert.Equal(t, 0.0, Average(nil))
	assert.Equal(t, 2.0, Average([]Sample{{Value: 1}, {Value: 2}, {Value: 3}}))
}
