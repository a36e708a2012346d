// Package market holds the numeric core: averaging real-world changes,
// deriving the manipulation factor, and applying it to in-game prices.
// Everything here operates on typed floats; string-encoded store fields are
// normalized before they reach this package.
package market

import (
	"errors"
	"math"
)

const (
	// Manipulation factor bounds, in percentage units.
	MinManipulator = 0.1
	MaxManipulator = 5.0
)

var (
	ErrNoValidChanges = errors.New("no valid change percentages to average")
	ErrBadManipulator = errors.New("manipulator must be a finite number")
)

// Change is one normalized real-world observation.
type Change struct {
	Ticker  string
	Price   float64
	Percent float64
}

// Stock is an in-game listing. PriceOK is false when the stored price was
// missing or not decimal-like; such stocks pass through Apply untouched.
type Stock struct {
	ID         string
	Ticker     string
	Name       string
	Category   string
	Price      float64
	PriceOK    bool
	LastChange float64
	Changed    bool
}

// AverageChange returns the arithmetic mean of the observed change
// percentages. Zero observations is an explicit error so callers never
// divide by zero silently.
func AverageChange(changes []Change) (float64, error) {
	if len(changes) == 0 {
		return 0, ErrNoValidChanges
	}
	var sum float64
	for _, c := range changes {
		sum += c.Percent
	}
	return sum / float64(len(changes)), nil
}

// Manipulator maps an average market change percentage to a bounded
// manipulation factor via a four-tier piecewise-linear curve over |x|:
//
//	0 <= |x| <= 2   0.1 -> 1.5
//	2 <  |x| <= 5   1.5 -> 3.0
//	5 <  |x| <= 10  3.0 -> 5.0
//	     |x| > 10   5.0 flat
//
// The sign of the input is preserved so price moves stay directional;
// sign(0) is positive. Result is rounded to 2 decimal places.
func Manipulator(avg float64) float64 {
	x := math.Abs(avg)
	var mag float64
	switch {
	case x <= 2:
		mag = MinManipulator + (x/2)*(1.5-MinManipulator)
	case x <= 5:
		mag = 1.5 + ((x-2)/3)*1.5
	case x <= 10:
		mag = 3.0 + ((x-5)/5)*2.0
	default:
		mag = MaxManipulator
	}
	return round2(math.Copysign(mag, signOrPositive(avg)))
}

// Apply perturbs each stock price by manipulator percent and records the
// move as its last change. Stocks without a usable price are skipped and
// counted. A non-finite manipulator is a caller contract violation.
func Apply(stocks []Stock, manipulator float64) ([]Stock, int, error) {
	if math.IsNaN(manipulator) || math.IsInf(manipulator, 0) {
		return nil, 0, ErrBadManipulator
	}
	out := make([]Stock, len(stocks))
	skipped := 0
	for i, s := range stocks {
		if !s.PriceOK {
			s.Changed = false
			out[i] = s
			skipped++
			continue
		}
		delta := s.Price * (manipulator / 100)
		s.Price = round2(s.Price + delta)
		s.LastChange = round2(manipulator)
		s.Changed = true
		out[i] = s
	}
	return out, skipped, nil
}

func signOrPositive(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
