package reals

import (
	"fmt"

	"github.com/wippyai/spawn"
)

// RealVector is a set of parallel arrays of identical length.
// Refs stay spawn.UnboundRef until the owning component is bound to an engine.
type RealVector struct {
	EngineValues []float64
	CallerValues []float64
	Units        []string
	CallerUnits  []string
	Refs         []spawn.ValueRef
	Names        []string
}

// New allocates a vector with n unnamed, unbound elements.
func New(n int) *RealVector {
	v := &RealVector{
		EngineValues: make([]float64, n),
		CallerValues: make([]float64, n),
		Units:        make([]string, n),
		CallerUnits:  make([]string, n),
		Refs:         make([]spawn.ValueRef, n),
		Names:        make([]string, n),
	}
	for i := range v.Refs {
		v.Refs[i] = spawn.UnboundRef
	}
	return v
}

// NewNamed allocates a vector for names with the caller-declared units.
// Each engine name is prefix_name, or name alone when prefix is empty.
func NewNamed(prefix string, names, callerUnits []string) (*RealVector, error) {
	if len(names) != len(callerUnits) {
		return nil, fmt.Errorf("names and units differ in length: %d != %d", len(names), len(callerUnits))
	}
	v := New(len(names))
	for i, name := range names {
		v.Names[i] = FullName(prefix, name)
		v.CallerUnits[i] = callerUnits[i]
	}
	return v, nil
}

// FullName builds the fully-qualified engine variable name.
func FullName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// Len returns the number of elements.
func (v *RealVector) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Names)
}

// Bind records the engine reference and engine unit of element i.
func (v *RealVector) Bind(i int, ref spawn.ValueRef, unit string) {
	v.Refs[i] = ref
	v.Units[i] = unit
}

// Bound reports whether every element carries a resolved reference.
func (v *RealVector) Bound() bool {
	if v == nil {
		return true
	}
	for _, r := range v.Refs {
		if r == spawn.UnboundRef {
			return false
		}
	}
	return true
}

// Unbind clears all references, e.g. when the engine is closed.
func (v *RealVector) Unbind() {
	for i := range v.Refs {
		v.Refs[i] = spawn.UnboundRef
		v.Units[i] = ""
	}
}
