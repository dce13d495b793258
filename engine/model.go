package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/spawn"
)

// Causality of a model variable.
type Causality string

const (
	CausalityParameter  Causality = "parameter"
	CausalityCalculated Causality = "calculatedParameter"
	CausalityInput      Causality = "input"
	CausalityOutput     Causality = "output"
	CausalityLocal      Causality = "local"
)

// Variable is one entry of a model description.
type Variable struct {
	Name      string         `yaml:"name"`
	ValueRef  spawn.ValueRef `yaml:"valueReference"`
	Causality Causality      `yaml:"causality"`
	Unit      string         `yaml:"unit,omitempty"`
	Start     float64        `yaml:"start,omitempty"`
}

// ModelDescription lists the variables an engine exposes.
type ModelDescription struct {
	Name      string     `yaml:"name"`
	Variables []Variable `yaml:"variables"`

	index map[string]int
}

// ParseModelDescription decodes and validates a YAML model description.
func ParseModelDescription(data []byte) (*ModelDescription, error) {
	var md ModelDescription
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("decode model description: %w", err)
	}
	if err := md.build(); err != nil {
		return nil, err
	}
	return &md, nil
}

// ReadModelDescription reads a model description file.
func ReadModelDescription(path string) (*ModelDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseModelDescription(data)
}

// Marshal encodes the description as YAML.
func (md *ModelDescription) Marshal() ([]byte, error) {
	return yaml.Marshal(md)
}

func (md *ModelDescription) build() error {
	md.index = make(map[string]int, len(md.Variables))
	refs := make(map[spawn.ValueRef]string, len(md.Variables))
	for i, v := range md.Variables {
		if v.Name == "" {
			return fmt.Errorf("model variable %d has no name", i)
		}
		if _, dup := md.index[v.Name]; dup {
			return fmt.Errorf("model variable %q declared twice", v.Name)
		}
		if v.ValueRef == spawn.UnboundRef {
			return fmt.Errorf("model variable %q uses the reserved value reference", v.Name)
		}
		if other, dup := refs[v.ValueRef]; dup {
			return fmt.Errorf("model variables %q and %q share value reference %d", other, v.Name, v.ValueRef)
		}
		switch v.Causality {
		case CausalityParameter, CausalityCalculated, CausalityInput, CausalityOutput, CausalityLocal:
		case "":
			md.Variables[i].Causality = CausalityLocal
		default:
			return fmt.Errorf("model variable %q has unknown causality %q", v.Name, v.Causality)
		}
		md.index[v.Name] = i
		refs[v.ValueRef] = v.Name
	}
	return nil
}

// Lookup finds a variable by its fully-qualified name.
func (md *ModelDescription) Lookup(name string) (Variable, bool) {
	if md.index == nil {
		if err := md.build(); err != nil {
			return Variable{}, false
		}
	}
	i, ok := md.index[name]
	if !ok {
		return Variable{}, false
	}
	return md.Variables[i], true
}
