package altlog

import "github.com/pkg/errors"

// Source replays recorded altitudes, one record per ComputeAltitude tick. It
// satisfies baro.AltitudeSource and is what hardware-in-the-loop runs plug in
// instead of the pressure-derived estimate.
type Source struct {
	alts []int32
	next int
	loop bool
}

func NewSource(records []Record, loop bool) (*Source, error) {
	alts := make([]int32, 0, len(records))
	for _, r := range records {
		if !r.Start {
			alts = append(alts, r.Altitude)
		}
	}
	if len(alts) == 0 {
		return nil, errors.New("altlog: no samples to replay")
	}
	return &Source{alts: alts, loop: loop}, nil
}

// Altitude returns the next recorded altitude. Without loop the source goes
// inactive once every sample has been served.
func (s *Source) Altitude() (int32, bool) {
	if s.next >= len(s.alts) {
		if !s.loop {
			return 0, false
		}
		s.next = 0
	}
	v := s.alts[s.next]
	s.next++
	return v, true
}

// Remaining reports how many samples are left before the source wraps or
// goes inactive.
func (s *Source) Remaining() int { return len(s.alts) - s.next }
