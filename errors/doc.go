// Package errors provides structured error types for the spawn coupling library.
//
// Errors are categorized by Phase (which lifecycle call raised them) and Kind
// (error category). The Error type carries the offending building and component
// instance names plus an optional cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAllocate, errors.KindConfiguration).
//		Building("B1").
//		Instance("Z1").
//		Detail("require k = 2, obtained k = %d", k).
//		Build()
//
// Or use convenience constructors for the taxonomy:
//
//	err := errors.DuplicateZone("B1", "Core_ZN", "Z1", "Z2")
//	err := errors.UnresolvedReference("Z1")
//	err := errors.NotInstantiated(errors.PhaseExchange, "Z1")
//
// None of these errors is meant to be recovered: they describe a host or
// configuration defect. All errors implement the standard error interface and
// support errors.Is/As; the sentinel values match on Kind alone.
package errors
