package baro

const medianSamples = 3

// MedianFilter is a rank-3 median over the last three samples. Until three
// samples have been pushed it passes the newest sample through unchanged.
type MedianFilter struct {
	samples [medianSamples]int32
	next    int
	ready   bool
}

// Push stores sample and returns the filtered value.
func (m *MedianFilter) Push(sample int32) int32 {
	m.samples[m.next] = sample
	m.next++
	if m.next == medianSamples {
		m.next = 0
		m.ready = true
	}
	if !m.ready {
		return sample
	}
	return median3(m.samples[0], m.samples[1], m.samples[2])
}

func median3(a, b, c int32) int32 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}
