package building

import (
	"context"
	stderrors "errors"

	"github.com/wippyai/spawn/errors"
)

// Registry holds every building of a process in registration order.
type Registry struct {
	buildings []*Building
	max       int
}

// NewRegistry creates a registry holding at most max buildings; 0 means no limit.
func NewRegistry(max int) *Registry {
	return &Registry{max: max}
}

// Resolve returns the building registered under name, or nil.
func (r *Registry) Resolve(name string) *Building {
	for _, b := range r.buildings {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Register appends b.
func (r *Registry) Register(b *Building) error {
	if r.Resolve(b.Name) != nil {
		return errors.New(errors.PhaseAllocate, errors.KindConfiguration).
			Building(b.Name).Detail("building is already registered").Build()
	}
	if r.max > 0 && len(r.buildings) >= r.max {
		err := errors.AllocationFailed(errors.PhaseAllocate, "building", r.max)
		err.Building = b.Name
		return err
	}
	r.buildings = append(r.buildings, b)
	return nil
}

// Each calls fn for every building until fn returns false.
func (r *Registry) Each(fn func(*Building) bool) {
	for _, b := range r.buildings {
		if !fn(b) {
			return
		}
	}
}

// Len returns the number of buildings.
func (r *Registry) Len() int { return len(r.buildings) }

// Close releases every loaded engine.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, b := range r.buildings {
		if err := b.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
