package reals

import (
	"github.com/wippyai/spawn/errors"
)

// Derivative is one entry of the sparse Jacobian: dy[Output]/du[Input].
// Indices are zero-based.
type Derivative struct {
	Output int
	Input  int
	Delta  float64
	Value  float64
}

// DerivativeSet is a fixed-size list of Jacobian entries.
type DerivativeSet struct {
	Entries []Derivative
}

// NewDerivativeSet builds the set from a flat, one-based structure as hosts pass
// it: structure[2*i] is the output index and structure[2*i+1] the input index of
// entry i. k is the pair width and must be 2; n must equal nDer.
func NewDerivativeSet(structure []int, k, n int, delta []float64, nDer, nOut, nInp int) (*DerivativeSet, error) {
	if k != 2 {
		return nil, errors.Configuration(errors.PhaseAllocate, "", "require argument k = 2, obtained k = %d", k)
	}
	if n != nDer {
		return nil, errors.Configuration(errors.PhaseAllocate, "", "require arguments n = nDer, obtained n = %d, nDer = %d", n, nDer)
	}
	if len(structure) != k*n {
		return nil, errors.Configuration(errors.PhaseAllocate, "", "derivative structure has %d entries, expected %d", len(structure), k*n)
	}
	if len(delta) != nDer {
		return nil, errors.Configuration(errors.PhaseAllocate, "", "derivative steps have %d entries, expected %d", len(delta), nDer)
	}

	set := &DerivativeSet{Entries: make([]Derivative, nDer)}
	for i := 0; i < nDer; i++ {
		out := structure[2*i] - 1
		in := structure[2*i+1] - 1
		if out < 0 || out >= nOut {
			return nil, errors.Configuration(errors.PhaseAllocate, "",
				"derivative %d references output %d, but there are %d outputs", i+1, out+1, nOut)
		}
		if in < 0 || in >= nInp {
			return nil, errors.Configuration(errors.PhaseAllocate, "",
				"derivative %d references input %d, but there are %d inputs", i+1, in+1, nInp)
		}
		set.Entries[i] = Derivative{Output: out, Input: in, Delta: delta[i]}
	}
	return set, nil
}

// Len returns the number of entries.
func (d *DerivativeSet) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Entries)
}

// Values returns the current derivative values in entry order.
func (d *DerivativeSet) Values() []float64 {
	vals := make([]float64, d.Len())
	for i := range vals {
		vals[i] = d.Entries[i].Value
	}
	return vals
}
