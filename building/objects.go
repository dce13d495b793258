package building

import (
	"github.com/wippyai/spawn/reals"
	"github.com/wippyai/spawn/resource"
)

// Object is an exchange object attached to a building.
type Object interface {
	Name() string
	Kind() resource.Kind
	Building() *Building
	Vectors() []*reals.RealVector
	State() *Status
}

// Status holds the lifecycle flags every exchange object carries.
type Status struct {
	Instantiated bool
	Initialized  bool
}

// Exchange is embedded by the exchange objects.
type Exchange struct {
	name     string
	building *Building
	status   Status
}

// Name returns the caller instance name.
func (x *Exchange) Name() string { return x.name }

// Building returns the owning building, nil once removed.
func (x *Exchange) Building() *Building { return x.building }

// State returns the mutable lifecycle flags.
func (x *Exchange) State() *Status { return &x.status }

// Zone is one thermal zone of a building.
type Zone struct {
	Exchange

	// ZoneName is the zone name in the engine; it prefixes every variable.
	ZoneName string
	// KeyName and KeyValues form the engine-key specification of the zone.
	// KeyValues must be unique within a building.
	KeyName   string
	KeyValues string

	Parameters  *reals.RealVector
	Inputs      *reals.RealVector
	Outputs     *reals.RealVector
	Derivatives *reals.DerivativeSet
}

// NewZone creates a detached zone.
func NewZone(name, zoneName, keyName, keyValues string, par, in, out *reals.RealVector, der *reals.DerivativeSet) *Zone {
	return &Zone{
		Exchange:    Exchange{name: name},
		ZoneName:    zoneName,
		KeyName:     keyName,
		KeyValues:   keyValues,
		Parameters:  par,
		Inputs:      in,
		Outputs:     out,
		Derivatives: der,
	}
}

func (z *Zone) Kind() resource.Kind { return resource.KindZone }

func (z *Zone) Vectors() []*reals.RealVector {
	return []*reals.RealVector{z.Parameters, z.Inputs, z.Outputs}
}

// Spec returns the identity used for duplicate detection.
func (z *Zone) Spec() string {
	if z.KeyValues != "" {
		return z.KeyValues
	}
	return z.ZoneName
}

// ObjectType distinguishes the engine objects an input variable writes to.
type ObjectType int

const (
	Schedule ObjectType = 1
	Actuator ObjectType = 2
)

func (t ObjectType) String() string {
	switch t {
	case Schedule:
		return "schedule"
	case Actuator:
		return "actuator"
	default:
		return "unknown"
	}
}

// InputVariable writes one value into an engine schedule or actuator.
type InputVariable struct {
	Exchange

	Type          ObjectType
	VariableName  string
	ComponentType string
	ControlType   string

	Inputs *reals.RealVector
}

// NewInputVariable creates a detached input variable with a one-slot vector.
func NewInputVariable(name string, typ ObjectType, variable, componentType, controlType, unit string) *InputVariable {
	iv := &InputVariable{
		Exchange:      Exchange{name: name},
		Type:          typ,
		VariableName:  variable,
		ComponentType: componentType,
		ControlType:   controlType,
	}
	iv.Inputs, _ = reals.NewNamed("", []string{iv.EngineName()}, []string{unit})
	return iv
}

// EngineName is the variable name in the engine: the schedule name, or
// name_componentType_controlType for actuators.
func (iv *InputVariable) EngineName() string {
	if iv.Type == Actuator {
		return iv.VariableName + "_" + iv.ComponentType + "_" + iv.ControlType
	}
	return iv.VariableName
}

func (iv *InputVariable) Kind() resource.Kind { return resource.KindInput }

func (iv *InputVariable) Vectors() []*reals.RealVector {
	return []*reals.RealVector{iv.Inputs}
}

// OutputKey identifies an output variable within a building.
type OutputKey struct {
	Variable string
	Key      string
}

// EngineName is the variable name in the engine.
func (k OutputKey) EngineName() string {
	return reals.FullName(k.Key, k.Variable)
}

// OutputVariable reads one engine value. It may be shared by several callers
// asking for the same key; it stays attached while any caller holds it.
type OutputVariable struct {
	Exchange

	Key       OutputKey
	PrintUnit bool
	Outputs   *reals.RealVector

	callers []string
}

// NewOutputVariable creates a detached output variable bound to its first caller.
func NewOutputVariable(name string, key OutputKey, printUnit bool) *OutputVariable {
	ov := &OutputVariable{
		Exchange:  Exchange{name: name},
		Key:       key,
		PrintUnit: printUnit,
		callers:   []string{name},
	}
	ov.Outputs, _ = reals.NewNamed("", []string{key.EngineName()}, []string{""})
	return ov
}

func (ov *OutputVariable) Kind() resource.Kind { return resource.KindOutput }

func (ov *OutputVariable) Vectors() []*reals.RealVector {
	return []*reals.RealVector{ov.Outputs}
}

// ShareCount returns the number of callers holding the variable.
func (ov *OutputVariable) ShareCount() int { return len(ov.callers) }

// Callers returns the caller instance names in binding order.
func (ov *OutputVariable) Callers() []string {
	return append([]string(nil), ov.callers...)
}

// HasCaller reports whether name is bound to the variable.
func (ov *OutputVariable) HasCaller(name string) bool {
	for _, c := range ov.callers {
		if c == name {
			return true
		}
	}
	return false
}

// AddCaller binds another caller and returns the new share count.
func (ov *OutputVariable) AddCaller(name string) int {
	if !ov.HasCaller(name) {
		ov.callers = append(ov.callers, name)
	}
	return len(ov.callers)
}

// RemoveCaller unbinds a caller and returns the remaining share count.
func (ov *OutputVariable) RemoveCaller(name string) int {
	for i, c := range ov.callers {
		if c == name {
			ov.callers = append(ov.callers[:i], ov.callers[i+1:]...)
			break
		}
	}
	return len(ov.callers)
}
