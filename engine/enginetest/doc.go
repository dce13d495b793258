// Package enginetest provides engines and images for tests.
//
// Build assembles a WebAssembly engine image in memory. The image keeps one
// f64 cell per value reference in linear memory: spawn_set stores into the
// cell, spawn_get loads from it, and references are masked to their low byte
// so that ref+MirrorOffset reads back the cell of ref. spawn_set_time and
// spawn_setup store the time in the cell of TimeRef.
//
// Engine and Loader are in-process fakes that record every call.
package enginetest
