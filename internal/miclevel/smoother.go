package miclevel

import "time"

// Interpolate returns the point between from and to at fraction, which is
// clamped to [0,1]. The result never leaves the segment.
func Interpolate(from, to, fraction float64) float64 {
	switch {
	case fraction <= 0:
		return from
	case fraction >= 1:
		return to
	}
	v := from + (to-from)*fraction
	lo, hi := min(from, to), max(from, to)
	return min(max(v, lo), hi)
}

// Animation is a linear transition between two levels over Duration.
type Animation struct {
	From     float64
	To       float64
	Start    time.Time
	Duration time.Duration
}

func (a Animation) Fraction(now time.Time) float64 {
	if a.Duration <= 0 {
		return 1
	}
	return float64(now.Sub(a.Start)) / float64(a.Duration)
}

func (a Animation) Value(now time.Time) float64 {
	return Interpolate(a.From, a.To, a.Fraction(now))
}

func (a Animation) Finished(now time.Time) bool {
	return a.Fraction(now) >= 1
}
