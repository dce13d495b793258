// Package spawn couples the thermal zones, input variables and output variables
// of a building model to one shared co-simulation engine per building.
//
// An external solver creates each component independently and in an order it
// alone controls. It may allocate or instantiate the same component more than
// once, and it never signals that all components exist. This library keeps one
// lazily loaded engine per building consistent with all of them.
//
// # Architecture Overview
//
//	spawn/             Root package with the Sink and UnitConverter collaborator interfaces
//	├── coupling/      Lifecycle coordinator (allocate, instantiate, exchange, free) and host boundary
//	├── building/      Building, registry, zones, input and output variables
//	├── reals/         RealVector and DerivativeSet storage
//	├── engine/        Engine binary interface, WASM (wazero) and builtin engines, image sources
//	├── resource/      Opaque handle table
//	├── errors/        Structured error taxonomy
//	├── units/         Unit conversion service
//	├── report/        zap-backed message sink
//	├── metrics/       Prometheus collectors
//	├── recorder/      SQL recorder for exchanged values
//	└── scenario/      YAML scenario files for the spawn-run CLI
//
// # Quick Start
//
//	coord := coupling.New(coupling.WithLoader(engine.NewBuiltinLoader()))
//	defer coord.Close(ctx)
//
//	h, err := coord.AllocateZone(ctx, coupling.ZoneSpec{
//	    BuildingSpec: coupling.BuildingSpec{
//	        Building: "house",
//	        Image:    engine.Image{Path: "builtin:rc-zone?zones=Core"},
//	    },
//	    Instance: "house.core",
//	    ZoneName: "Core",
//	    ...
//	})
//
//	params, err := coord.InstantiateZone(ctx, h, 0)
//	res, err := coord.ExchangeZone(ctx, h, true, u, 0)
//
// # Threading
//
// The calling model is single-threaded and reentrant by calls. Nothing in this
// module starts goroutines; shared structures are only guarded where the
// adapted handle table already was.
package spawn
