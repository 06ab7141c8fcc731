package sample

// DownsampleSamples reduces samples to at most maxPoints for display.
// Each bucket contributes its minimum and maximum in time order, so narrow
// QRS spikes survive decimation. dst is reused when its capacity allows.
func DownsampleSamples(dst []Sample, samples []Sample, maxPoints int) []Sample {
	if len(samples) <= maxPoints || maxPoints < 2 {
		if cap(dst) < len(samples) {
			dst = make([]Sample, len(samples))
		}
		dst = dst[:len(samples)]
		copy(dst, samples)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]Sample, 0, maxPoints)
	}

	buckets := maxPoints / 2
	step := float64(len(samples)) / float64(buckets)

	for b := range buckets {
		start := int(float64(b) * step)
		end := min(int(float64(b+1)*step), len(samples))
		if start >= end {
			continue
		}

		lo, hi := start, start
		for i := start + 1; i < end; i++ {
			if samples[i].Value < samples[lo].Value {
				lo = i
			}
			if samples[i].Value > samples[hi].Value {
				hi = i
			}
		}

		switch {
		case lo == hi:
			dst = append(dst, samples[lo])
		case lo < hi:
			dst = append(dst, samples[lo], samples[hi])
		default:
			dst = append(dst, samples[hi], samples[lo])
		}
	}

	return dst
}
