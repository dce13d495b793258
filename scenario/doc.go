// Package scenario reads YAML co-simulation scenarios and replays them
// against a coupling.Coordinator the way an equation-based solver would:
// allocate every object, instantiate them, make the initial exchange and then
// step through time, stopping early at the engine's next event.
//
// A minimal scenario:
//
//	name: office
//	stop: 86400
//	step: 600
//	buildings:
//	  - name: office
//	    image: builtin:rc-zone?zones=Core_ZN
//	    zones:
//	      - instance: office.core
//	        name: Core_ZN
//	        parameters: [{name: V, unit: m3}]
//	        inputs:
//	          - {name: T, unit: degC, signal: {value: 21}}
//	        outputs: [{name: TRad, unit: degC}]
//	    outputs:
//	      - instance: office.outdoor
//	        variable: Site Outdoor Air Drybulb Temperature
//	        key: Environment
package scenario
