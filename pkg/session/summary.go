package session

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the vitals of a whole session. Reports without a finger
// (SpO2 of 0) are excluded from the statistics.
type Summary struct {
	Reports       int
	Valid         int
	SpO2Mean      float64
	SpO2Std       float64
	SpO2Min       float64
	HeartRateMean float64
	HeartRateStd  float64
	HeartRateMin  float64
	HeartRateMax  float64
	HypoxiaEvents int
}

// Summarize computes a summary over reports.
func Summarize(reports []Vitals) Summary {
	sum := Summary{Reports: len(reports)}

	spo2 := make([]float64, 0, len(reports))
	hr := make([]float64, 0, len(reports))
	for _, v := range reports {
		if v.SpO2 <= 0 {
			continue
		}
		spo2 = append(spo2, float64(v.SpO2))
		hr = append(hr, float64(v.HeartRate))
	}
	sum.Valid = len(spo2)
	if sum.Valid == 0 {
		return sum
	}

	sum.SpO2Mean, sum.SpO2Std = stat.MeanStdDev(spo2, nil)
	sum.HeartRateMean, sum.HeartRateStd = stat.MeanStdDev(hr, nil)
	sum.SpO2Min = floats.Min(spo2)
	sum.HeartRateMin = floats.Min(hr)
	sum.HeartRateMax = floats.Max(hr)
	return sum
}

// Summary summarizes the session so far.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summarize(s.history)
	sum.HypoxiaEvents = s.events
	return sum
}
