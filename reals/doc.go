// Package reals holds the fixed-size numeric storage exchanged with an engine.
//
// A RealVector binds n named quantities to their engine-unit values,
// caller-unit values, unit descriptors and engine value references. A
// DerivativeSet holds the sparse structure of a direct-dependency Jacobian.
//
// Both are sized once at allocation time and never grow.
package reals
