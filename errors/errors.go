package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which lifecycle call raised the error
type Phase string

const (
	PhaseAllocate    Phase = "allocate"    // component allocation
	PhaseInstantiate Phase = "instantiate" // component instantiation
	PhaseExchange    Phase = "exchange"    // data exchange during stepping
	PhaseFree        Phase = "free"        // component release
	PhaseLoad        Phase = "load"        // engine image loading
	PhaseBind        Phase = "bind"        // value reference resolution
	PhaseConfig      Phase = "config"      // scenario and option parsing
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindAllocation          Kind = "allocation"
	KindUnresolvedReference Kind = "unresolved_reference"
	KindNotInstantiated     Kind = "not_instantiated"
	KindNotFound            Kind = "not_found"
	KindEngine              Kind = "engine"
	KindInvalidInput        Kind = "invalid_input"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrAllocation          = &Error{Kind: KindAllocation}
	ErrUnresolvedReference = &Error{Kind: KindUnresolvedReference}
	ErrNotInstantiated     = &Error{Kind: KindNotInstantiated}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrEngine              = &Error{Kind: KindEngine}
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Building string
	Instance string
	Detail   string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Instance != "" {
		b.WriteString(" in ")
		b.WriteString(e.Instance)
	}
	if e.Building != "" {
		b.WriteString(" (building ")
		b.WriteString(e.Building)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Building sets the building name
func (b *Builder) Building(name string) *Builder {
	b.err.Building = name
	return b
}

// Instance sets the component instance name
func (b *Builder) Instance(name string) *Builder {
	b.err.Instance = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the coupling taxonomy

// Configuration creates a configuration error for the given component
func Configuration(phase Phase, instance, detail string, args ...any) *Error {
	return New(phase, KindConfiguration).Instance(instance).Detail(detail, args...).Build()
}

// LengthMismatch reports paired arrays of different length
func LengthMismatch(instance, what string, names, units int) *Error {
	return &Error{
		Phase:    PhaseAllocate,
		Kind:     KindConfiguration,
		Instance: instance,
		Detail:   fmt.Sprintf("require the same number of %s names and units, obtained %d and %d", what, names, units),
	}
}

// DuplicateZone reports a zone specified twice in the same building
func DuplicateZone(building, spec, first, second string) *Error {
	return &Error{
		Phase:    PhaseAllocate,
		Kind:     KindConfiguration,
		Building: building,
		Instance: second,
		Detail: fmt.Sprintf("zone %q is specified twice, once in %s and once in %s; each zone must only be specified once per building",
			spec, first, second),
	}
}

// ImageMismatch reports two different engine images declared for one building
func ImageMismatch(building, instance, declared, existing string) *Error {
	return &Error{
		Phase:    PhaseAllocate,
		Kind:     KindConfiguration,
		Building: building,
		Instance: instance,
		Detail:   fmt.Sprintf("two different engine images for the same building: %q and %q", declared, existing),
	}
}

// AllocationFailed creates a storage exhaustion error
func AllocationFailed(phase Phase, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("cannot allocate %s: limit of %d reached", what, limit),
	}
}

// UnresolvedReference reports a component whose value references were not bound
// before Instantiate
func UnresolvedReference(building, instance string) *Error {
	return &Error{
		Phase:    PhaseInstantiate,
		Kind:     KindUnresolvedReference,
		Building: building,
		Instance: instance,
		Detail: "value reference is not set; the component was allocated after the engine was loaded. " +
			"If the host evaluates initial equations twice, disable double computation " +
			"(for Dymola set Hidden.AvoidDoubleComputation=true)",
	}
}

// NotInstantiated reports a call that requires a completed Instantiate
func NotInstantiated(phase Phase, instance string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindNotInstantiated,
		Instance: instance,
		Detail:   "component is used before it was instantiated",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Engine wraps a failure reported by the engine binary interface
func Engine(phase Phase, building, call string, cause error) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindEngine,
		Building: building,
		Detail:   call,
		Cause:    cause,
	}
}

// Load creates an engine image loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindEngine,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
