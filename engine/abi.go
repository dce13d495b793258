package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

const (
	exportSetTime               = "spawn_set_time"
	exportSet                   = "spawn_set"
	exportGet                   = "spawn_get"
	exportSetup                 = "spawn_setup"
	exportExitInit              = "spawn_exit_init"
	exportEnterEvent            = "spawn_enter_event"
	exportEnterContinuous       = "spawn_enter_continuous"
	exportNextEvent             = "spawn_next_event"
	modelSection                = "spawn-model"
	statusOK              int32 = 0
)

// export describes one function of the engine image ABI.
type export struct {
	name     string
	params   []wit.Type
	results  []wit.Type
	required bool
}

var abi = []export{
	{name: exportSetTime, params: []wit.Type{wit.F64{}}, results: []wit.Type{wit.S32{}}, required: true},
	{name: exportSet, params: []wit.Type{wit.U32{}, wit.F64{}}, results: []wit.Type{wit.S32{}}, required: true},
	{name: exportGet, params: []wit.Type{wit.U32{}}, results: []wit.Type{wit.F64{}}, required: true},
	{name: exportSetup, params: []wit.Type{wit.F64{}}, results: []wit.Type{wit.S32{}}},
	{name: exportExitInit, results: []wit.Type{wit.S32{}}},
	{name: exportEnterEvent, results: []wit.Type{wit.S32{}}},
	{name: exportEnterContinuous, results: []wit.Type{wit.S32{}}},
	{name: exportNextEvent, results: []wit.Type{wit.F64{}}},
}

// coreType returns the flattened core value type of a primitive WIT type.
func coreType(t wit.Type) api.ValueType {
	switch t.(type) {
	case wit.F64:
		return api.ValueTypeF64
	case wit.F32:
		return api.ValueTypeF32
	case wit.U64, wit.S64:
		return api.ValueTypeI64
	default:
		return api.ValueTypeI32
	}
}

func coreTypes(ts []wit.Type) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = coreType(t)
	}
	return out
}

// checkExports verifies the image exports every required function and that
// every present ABI function has the expected signature.
func checkExports(defs map[string]api.FunctionDefinition) error {
	for _, e := range abi {
		def, ok := defs[e.name]
		if !ok {
			if e.required {
				return fmt.Errorf("missing required export %s", e.name)
			}
			continue
		}
		if !sameTypes(def.ParamTypes(), coreTypes(e.params)) || !sameTypes(def.ResultTypes(), coreTypes(e.results)) {
			return fmt.Errorf("export %s has signature %s, expected %s",
				e.name, signature(def.ParamTypes(), def.ResultTypes()),
				signature(coreTypes(e.params), coreTypes(e.results)))
		}
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(params, results []api.ValueType) string {
	name := func(ts []api.ValueType) string {
		s := "("
		for i, t := range ts {
			if i > 0 {
				s += ", "
			}
			s += api.ValueTypeName(t)
		}
		return s + ")"
	}
	return name(params) + " -> " + name(results)
}
