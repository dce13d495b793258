// Package engine provides the binary interface to a building simulation engine.
//
// The coupling core drives one engine instance per building through the Engine
// interface: set up the experiment, leave initialization mode, step between
// event and continuous-time mode, and move real values in and out by value
// reference. How an engine is produced is the job of a Loader.
//
// # Loaders
//
//	WazeroLoader   - compiles an engine image (WebAssembly) with wazero
//	BuiltinLoader  - in-process reference engines selected by "builtin:<name>"
//	Loaders        - routes an image path to the first loader that accepts it
//
// # Engine Images
//
// An engine image is a core WebAssembly module that exports the functions
// listed below and carries its model description as YAML, either in a custom
// section named "spawn-model" or in a sidecar file next to the image
// (engine.wasm -> engine.yaml).
//
//	Export                   Signature       Required
//	────────────────────────────────────────────────
//	spawn_set_time           (f64) -> s32    yes
//	spawn_set                (u32, f64) -> s32  yes
//	spawn_get                (u32) -> f64    yes
//	spawn_setup              (f64) -> s32    no
//	spawn_exit_init          () -> s32       no
//	spawn_enter_event        () -> s32       no
//	spawn_enter_continuous   () -> s32       no
//	spawn_next_event         () -> f64       no
//
// A non-zero status is an engine failure. spawn_next_event returns a negative
// value when no event is scheduled.
//
// Image paths are resolved by a Source: plain paths read from disk, s3://
// URLs are fetched with the AWS SDK.
//
// # Thread Safety
//
// An Engine is not safe for concurrent use. Loaders are.
package engine
