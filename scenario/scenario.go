package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/spawn/building"
	"github.com/wippyai/spawn/coupling"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/errors"
	"github.com/wippyai/spawn/report"
)

const (
	DefaultStop     = 86400.0
	DefaultStep     = 60.0
	DefaultLogLevel = "quiet"
)

// Scenario is the top-level scenario file.
type Scenario struct {
	Name              string     `yaml:"name"`
	Start             float64    `yaml:"start"`
	Stop              float64    `yaml:"stop"`
	Step              float64    `yaml:"step"`
	DuplicateAllocate bool       `yaml:"duplicateAllocate"`
	Buildings         []Building `yaml:"buildings"`
}

// Building groups the objects sharing one engine image.
type Building struct {
	Name        string   `yaml:"name"`
	Image       string   `yaml:"image"`
	Precompiled bool     `yaml:"precompiled"`
	IDF         string   `yaml:"idf,omitempty"`
	Weather     string   `yaml:"weather,omitempty"`
	LogLevel    string   `yaml:"logLevel"`
	Zones       []Zone   `yaml:"zones"`
	Inputs      []Input  `yaml:"inputs"`
	Outputs     []Output `yaml:"outputs"`

	level report.LogLevel
}

// Zone describes one thermal zone.
type Zone struct {
	Instance    string       `yaml:"instance"`
	Name        string       `yaml:"name"`
	KeyName     string       `yaml:"keyName,omitempty"`
	KeyValues   string       `yaml:"keyValues,omitempty"`
	Parameters  []Var        `yaml:"parameters"`
	Inputs      []Var        `yaml:"inputs"`
	Outputs     []Var        `yaml:"outputs"`
	Derivatives *Derivatives `yaml:"derivatives,omitempty"`
}

// Var is a zone parameter, input or output. Only inputs carry a signal.
type Var struct {
	Name   string  `yaml:"name"`
	Unit   string  `yaml:"unit"`
	Signal *Signal `yaml:"signal,omitempty"`
}

// Derivatives lists one-based (output, input) pairs and one step per pair.
type Derivatives struct {
	Structure [][2]int  `yaml:"structure"`
	Delta     []float64 `yaml:"delta"`
}

// Input describes a schedule or actuator input variable.
type Input struct {
	Instance  string  `yaml:"instance"`
	Type      string  `yaml:"type"`
	Name      string  `yaml:"name"`
	Component string  `yaml:"component,omitempty"`
	Control   string  `yaml:"control,omitempty"`
	Unit      string  `yaml:"unit"`
	Signal    *Signal `yaml:"signal,omitempty"`
}

// Output describes an output variable.
type Output struct {
	Instance  string `yaml:"instance"`
	Variable  string `yaml:"variable"`
	Key       string `yaml:"key"`
	PrintUnit bool   `yaml:"printUnit,omitempty"`
}

// Load reads, defaults and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "parsing scenario")
	}
	sc.applyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Scenario) applyDefaults() {
	if s.Stop == 0 {
		s.Stop = s.Start + DefaultStop
	}
	if s.Step == 0 {
		s.Step = DefaultStep
	}
	for i := range s.Buildings {
		b := &s.Buildings[i]
		if b.LogLevel == "" {
			b.LogLevel = DefaultLogLevel
		}
		for j := range b.Zones {
			if b.Zones[j].KeyName == "" {
				b.Zones[j].KeyName = "name"
			}
		}
	}
}

// Validate checks the scenario and resolves log levels.
func (s *Scenario) Validate() error {
	if s.Stop <= s.Start {
		return configError("", "stop time %g must be after start time %g", s.Stop, s.Start)
	}
	if s.Step <= 0 || math.IsInf(s.Step, 0) || math.IsNaN(s.Step) {
		return configError("", "step must be positive, obtained %g", s.Step)
	}
	if len(s.Buildings) == 0 {
		return configError("", "at least one building is required")
	}

	seen := make(map[string]string)
	claim := func(instance, where string) error {
		if instance == "" {
			return configError("", "%s has no instance name", where)
		}
		if prev, ok := seen[instance]; ok {
			return configError(instance, "instance is declared twice, in %s and in %s", prev, where)
		}
		seen[instance] = where
		return nil
	}

	for i := range s.Buildings {
		b := &s.Buildings[i]
		where := fmt.Sprintf("building[%d]", i)
		if b.Name == "" {
			return configError("", "%s has no name", where)
		}
		if b.Image == "" {
			return configError("", "building %s has no image", b.Name)
		}
		level, err := report.ParseLogLevel(b.LogLevel)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "building "+b.Name)
		}
		b.level = level
		if len(b.Zones)+len(b.Inputs)+len(b.Outputs) == 0 {
			return configError("", "building %s has no zones, inputs or outputs", b.Name)
		}

		for j, z := range b.Zones {
			if err := claim(z.Instance, fmt.Sprintf("%s.zones[%d]", b.Name, j)); err != nil {
				return err
			}
			if err := z.validate(); err != nil {
				return err
			}
		}
		for j, in := range b.Inputs {
			if err := claim(in.Instance, fmt.Sprintf("%s.inputs[%d]", b.Name, j)); err != nil {
				return err
			}
			if err := in.validate(); err != nil {
				return err
			}
		}
		for j, out := range b.Outputs {
			if err := claim(out.Instance, fmt.Sprintf("%s.outputs[%d]", b.Name, j)); err != nil {
				return err
			}
			if out.Variable == "" {
				return configError(out.Instance, "output has no variable")
			}
		}
	}
	return nil
}

func (z Zone) validate() error {
	if z.Name == "" {
		return configError(z.Instance, "zone has no name")
	}
	for _, group := range [][]Var{z.Parameters, z.Inputs, z.Outputs} {
		for _, v := range group {
			if v.Name == "" {
				return configError(z.Instance, "zone variable has no name")
			}
		}
	}
	for _, v := range z.Inputs {
		if err := v.Signal.validate(); err != nil {
			return configError(z.Instance, "input %s: %v", v.Name, err)
		}
	}
	if d := z.Derivatives; d != nil && len(d.Structure) != len(d.Delta) {
		return configError(z.Instance, "derivatives have %d pairs but %d steps", len(d.Structure), len(d.Delta))
	}
	return nil
}

func (in Input) validate() error {
	if _, err := parseObjectType(in.Type); err != nil {
		return configError(in.Instance, "%v", err)
	}
	if in.Name == "" {
		return configError(in.Instance, "input has no name")
	}
	if err := in.Signal.validate(); err != nil {
		return configError(in.Instance, "%v", err)
	}
	return nil
}

func parseObjectType(s string) (building.ObjectType, error) {
	switch s {
	case "schedule", "":
		return building.Schedule, nil
	case "actuator":
		return building.Actuator, nil
	default:
		return 0, fmt.Errorf("unknown input type %q; valid: schedule, actuator", s)
	}
}

func configError(instance, format string, args ...any) *errors.Error {
	return errors.Configuration(errors.PhaseConfig, instance, format, args...)
}

// Instances returns every instance name in declaration order.
func (s *Scenario) Instances() []string {
	var names []string
	for _, b := range s.Buildings {
		for _, z := range b.Zones {
			names = append(names, z.Instance)
		}
		for _, in := range b.Inputs {
			names = append(names, in.Instance)
		}
		for _, out := range b.Outputs {
			names = append(names, out.Instance)
		}
	}
	return names
}

// Series returns the names of every series a run produces, sorted.
func (s *Scenario) Series() []string {
	var names []string
	for _, b := range s.Buildings {
		for _, z := range b.Zones {
			for _, v := range z.Outputs {
				names = append(names, SeriesName(z.Instance, v.Name))
			}
			if z.Derivatives != nil {
				for _, p := range z.Derivatives.Structure {
					names = append(names, SeriesName(z.Instance, z.derivativeName(p)))
				}
			}
		}
		for _, in := range b.Inputs {
			names = append(names, SeriesName(in.Instance, in.Name))
		}
		for _, out := range b.Outputs {
			names = append(names, SeriesName(out.Instance, out.Variable))
		}
	}
	sort.Strings(names)
	return names
}

// derivativeName names the derivative of output p[0] with respect to input
// p[1], both one-based.
func (z Zone) derivativeName(p [2]int) string {
	out, in := fmt.Sprint(p[0]), fmt.Sprint(p[1])
	if p[0] >= 1 && p[0] <= len(z.Outputs) {
		out = z.Outputs[p[0]-1].Name
	}
	if p[1] >= 1 && p[1] <= len(z.Inputs) {
		in = z.Inputs[p[1]-1].Name
	}
	return "der(" + out + "," + in + ")"
}

// SeriesName joins an instance and a variable name.
func SeriesName(instance, variable string) string {
	return instance + "." + variable
}

func (b *Building) spec() coupling.BuildingSpec {
	return coupling.BuildingSpec{
		Building: b.Name,
		Image: engine.Image{
			Path:        b.Image,
			Precompiled: b.Precompiled,
			IDF:         b.IDF,
			Weather:     b.Weather,
		},
		LogLevel: b.level,
	}
}

// ZoneSpec converts z into an allocation request.
func (b *Building) ZoneSpec(z Zone) coupling.ZoneSpec {
	spec := coupling.ZoneSpec{
		BuildingSpec: b.spec(),
		Instance:     z.Instance,
		ZoneName:     z.Name,
		KeyName:      z.KeyName,
		KeyValues:    z.KeyValues,
	}
	spec.ParameterNames, spec.ParameterUnits = split(z.Parameters)
	spec.InputNames, spec.InputUnits = split(z.Inputs)
	spec.OutputNames, spec.OutputUnits = split(z.Outputs)
	if d := z.Derivatives; d != nil && len(d.Structure) > 0 {
		spec.Derivatives = coupling.DerivativeSpec{K: 2, N: len(d.Structure), NDer: len(d.Delta), Delta: d.Delta}
		for _, p := range d.Structure {
			spec.Derivatives.Structure = append(spec.Derivatives.Structure, p[0], p[1])
		}
	}
	return spec
}

// InputSpec converts in into an allocation request.
func (b *Building) InputSpec(in Input) coupling.InputSpec {
	typ, _ := parseObjectType(in.Type)
	return coupling.InputSpec{
		BuildingSpec:  b.spec(),
		Instance:      in.Instance,
		Type:          typ,
		Name:          in.Name,
		ComponentType: in.Component,
		ControlType:   in.Control,
		Unit:          in.Unit,
	}
}

// OutputSpec converts out into an allocation request.
func (b *Building) OutputSpec(out Output) coupling.OutputSpec {
	return coupling.OutputSpec{
		BuildingSpec: b.spec(),
		Instance:     out.Instance,
		Variable:     out.Variable,
		Key:          out.Key,
		PrintUnit:    out.PrintUnit,
	}
}

func split(vars []Var) (names, units []string) {
	names = make([]string, len(vars))
	units = make([]string, len(vars))
	for i, v := range vars {
		names[i], units[i] = v.Name, v.Unit
	}
	return names, units
}
