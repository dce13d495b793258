// Package resource provides opaque handle management for exchange objects.
//
// The external solver only ever sees integer handles. This package maps those
// handles to the Go values behind them (zones, input variables and output
// variable bindings) without exposing addresses across the boundary.
//
// # Handle Table
//
// The UnifiedTable maps integer handles to Go values:
//
//	table := resource.NewTable()
//
//	// Insert a value, get a handle
//	handle := table.Insert(resource.KindZone, zone)
//
//	// Kind-checked retrieval
//	value, ok := table.GetKind(handle, resource.KindZone)     // ok
//	value, ok := table.GetKind(handle, resource.KindOutput)   // !ok
//
//	// Remove and get value
//	value, ok := table.Remove(handle)
//
// Lookup gives a typed view:
//
//	zone, ok := resource.Lookup[*building.Zone](table, handle, resource.KindZone)
//
// # Handle Reuse
//
// Handles are never reused. A solver that frees a component twice, or keeps a
// stale handle, can never reach a different component through it. Handle 0 is
// reserved and always invalid.
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	table.Subscribe(observer)
//
// The coordinator uses this to feed metrics and debug logs.
package resource
