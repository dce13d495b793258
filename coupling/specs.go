package coupling

import (
	"github.com/wippyai/spawn/building"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/report"
)

// BuildingSpec is the building part every allocation carries.
type BuildingSpec struct {
	Building string
	Image    engine.Image
	LogLevel report.LogLevel
}

// DerivativeSpec describes the direct-dependency Jacobian of a zone.
// Structure holds one-based (output, input) pairs, K must be 2 and N must
// equal NDer. The zero value means no derivatives.
type DerivativeSpec struct {
	Structure []int
	K         int
	N         int
	Delta     []float64
	NDer      int
}

func (d DerivativeSpec) isZero() bool {
	return len(d.Structure) == 0 && d.K == 0 && d.N == 0 && len(d.Delta) == 0 && d.NDer == 0
}

// ZoneSpec describes a thermal zone allocation.
type ZoneSpec struct {
	BuildingSpec

	Instance  string
	ZoneName  string
	KeyName   string
	KeyValues string

	ParameterNames []string
	ParameterUnits []string
	InputNames     []string
	InputUnits     []string
	OutputNames    []string
	OutputUnits    []string

	Derivatives DerivativeSpec
}

// InputSpec describes an input variable allocation.
type InputSpec struct {
	BuildingSpec

	Instance      string
	Type          building.ObjectType
	Name          string
	ComponentType string
	ControlType   string
	Unit          string
}

// OutputSpec describes an output variable allocation.
type OutputSpec struct {
	BuildingSpec

	Instance  string
	Variable  string
	Key       string
	PrintUnit bool
}

// ZoneResult is the outcome of a zone exchange in caller units.
type ZoneResult struct {
	Outputs     []float64
	Derivatives []float64
}
