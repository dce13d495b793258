// Package building models the per-building coupling state.
//
// A Building groups every zone, input variable and output variable that
// belongs to one physical building and owns the single engine they share.
// The engine is loaded lazily by the first EnsureEngine call; at that point
// the value references of every registered exchange object are resolved
// against the engine's model description.
//
// Mode follows the engine through its lifecycle:
//
//	Uninstantiated -> Instantiating -> Initializing -> Event <-> ContinuousTime
//
// Initializing ends once every registered object has completed its initial
// exchange. Afterwards AdvanceTo moves the engine forward in time and runs an
// event iteration whenever the next scheduled event is reached.
//
// A Registry holds all buildings of a process. Buildings are only released
// when the registry is closed.
package building
