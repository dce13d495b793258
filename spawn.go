package spawn

// Sink receives messages from the coupling layer. It mirrors the three
// channels a simulation host provides: plain messages, formatted messages and
// fatal errors.
type Sink interface {
	Message(msg string)
	Messagef(format string, args ...any)

	// Fatalf reports an unrecoverable error. Implementations must not return.
	Fatalf(format string, args ...any)
}

// UnitConverter converts values between the unit a caller declares and the
// unit the engine uses for the same variable. An empty unit means the value
// is passed through unchanged.
type UnitConverter interface {
	ToEngine(value float64, callerUnit, engineUnit string) (float64, error)
	FromEngine(value float64, engineUnit, callerUnit string) (float64, error)
}

// ValueRef identifies a variable inside a loaded engine.
type ValueRef uint32

// UnboundRef marks a value reference that has not been resolved yet.
const UnboundRef ValueRef = ^ValueRef(0)
