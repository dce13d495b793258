package resource

import "fmt"

// Handle is an opaque reference to a value in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Kind tags the variant stored behind a handle.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindZone
	KindInput
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindZone:
		return "zone"
	case KindInput:
		return "input_variable"
	case KindOutput:
		return "output_variable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage mechanism for handles.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(kind Kind, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Kind returns the kind tag of a live handle.
	Kind(handle Handle) (Kind, bool)

	// Drop removes a value and returns (value, true) if it was live.
	Drop(handle Handle) (any, bool)

	// Close releases all values held by the backend.
	Close() error
}

// Table manages handles with kind information and observer support.
type Table interface {
	// Insert adds a value and returns its handle.
	Insert(kind Kind, value any) Handle

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetKind retrieves a value only if it carries the expected kind.
	GetKind(handle Handle, kind Kind) (any, bool)

	// Remove drops a handle and returns (value, true) if found.
	Remove(handle Handle) (any, bool)

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Unsubscribe removes an observer.
	Unsubscribe(Observer)

	// Len returns the number of live handles.
	Len() int

	// CountKind returns the number of live handles of one kind.
	CountKind(kind Kind) int

	// Close releases all values and stops accepting operations.
	Close() error
}

// Dropper is optionally implemented by values that need cleanup.
type Dropper interface {
	Drop()
}

// Lookup retrieves a handle's value as T when it carries the expected kind.
func Lookup[T any](t Table, handle Handle, kind Kind) (T, bool) {
	var zero T
	v, ok := t.GetKind(handle, kind)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
