package scenario

import (
	"fmt"
	"sort"
)

// Signal is an input trajectory: a constant value or a piecewise-linear
// curve through (time, value) points. Outside the points the curve holds its
// end values. A nil signal is zero.
type Signal struct {
	Value  *float64     `yaml:"value,omitempty"`
	Points [][2]float64 `yaml:"points,omitempty"`
}

// Constant returns a constant signal.
func Constant(v float64) *Signal {
	return &Signal{Value: &v}
}

func (s *Signal) validate() error {
	if s == nil {
		return nil
	}
	if s.Value != nil && len(s.Points) > 0 {
		return fmt.Errorf("signal has both a value and points")
	}
	for i := 1; i < len(s.Points); i++ {
		if s.Points[i][0] <= s.Points[i-1][0] {
			return fmt.Errorf("signal point times must increase, point %d at %g follows %g",
				i, s.Points[i][0], s.Points[i-1][0])
		}
	}
	return nil
}

// At evaluates the signal at time t.
func (s *Signal) At(t float64) float64 {
	switch {
	case s == nil:
		return 0
	case s.Value != nil:
		return *s.Value
	case len(s.Points) == 0:
		return 0
	}
	pts := s.Points
	i := sort.Search(len(pts), func(i int) bool { return pts[i][0] >= t })
	switch {
	case i == 0:
		return pts[0][1]
	case i == len(pts):
		return pts[len(pts)-1][1]
	}
	a, b := pts[i-1], pts[i]
	return a[1] + (b[1]-a[1])*(t-a[0])/(b[0]-a[0])
}
