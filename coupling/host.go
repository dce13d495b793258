package coupling

import (
	"context"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/resource"
)

// Host exposes a Coordinator through plain values and uint32 handles. Every
// error goes to Sink.Fatalf, which is not expected to return; if it does, the
// call returns zero values.
type Host struct {
	ctx   context.Context
	coord *Coordinator
	sink  spawn.Sink
}

// NewHost wraps coord. ctx is used for every call.
func NewHost(ctx context.Context, coord *Coordinator, sink spawn.Sink) *Host {
	return &Host{ctx: ctx, coord: coord, sink: sink}
}

// Coordinator returns the wrapped coordinator.
func (h *Host) Coordinator() *Coordinator { return h.coord }

func (h *Host) check(err error) bool {
	if err != nil {
		h.sink.Fatalf("%v", err)
		return false
	}
	return true
}

func (h *Host) allocated(kind, instance, bldg string, handle resource.Handle, traces bool) uint32 {
	if traces {
		h.sink.Messagef("allocated %s %s of building %s as handle %d", kind, instance, bldg, handle)
	}
	return uint32(handle)
}

// AllocateZone returns the handle of a zone.
func (h *Host) AllocateZone(spec ZoneSpec) uint32 {
	handle, err := h.coord.AllocateZone(h.ctx, spec)
	if !h.check(err) {
		return 0
	}
	return h.allocated("zone", spec.Instance, spec.Building, handle, spec.LogLevel.Traces())
}

// InstantiateZone writes the zone parameters into parOut.
func (h *Host) InstantiateZone(handle uint32, startTime float64, parOut []float64) {
	par, err := h.coord.InstantiateZone(h.ctx, resource.Handle(handle), startTime)
	if !h.check(err) {
		return
	}
	copy(parOut, par)
}

// ExchangeZone writes the outputs followed by the derivatives into y.
func (h *Host) ExchangeZone(handle uint32, initialCall bool, u []float64, t float64, y []float64) {
	res, err := h.coord.ExchangeZone(h.ctx, resource.Handle(handle), initialCall, u, t)
	if !h.check(err) {
		return
	}
	n := copy(y, res.Outputs)
	copy(y[n:], res.Derivatives)
}

// FreeZone releases a zone handle.
func (h *Host) FreeZone(handle uint32) {
	h.check(h.coord.FreeZone(h.ctx, resource.Handle(handle)))
}

// AllocateInputVariable returns the handle of an input variable.
func (h *Host) AllocateInputVariable(spec InputSpec) uint32 {
	handle, err := h.coord.AllocateInputVariable(h.ctx, spec)
	if !h.check(err) {
		return 0
	}
	return h.allocated(spec.Type.String(), spec.Instance, spec.Building, handle, spec.LogLevel.Traces())
}

// InstantiateInputVariable instantiates an input variable.
func (h *Host) InstantiateInputVariable(handle uint32, startTime float64) {
	h.check(h.coord.InstantiateInputVariable(h.ctx, resource.Handle(handle), startTime))
}

// ExchangeInputVariable writes u and returns it.
func (h *Host) ExchangeInputVariable(handle uint32, initialCall bool, u, t float64) float64 {
	y, err := h.coord.ExchangeInputVariable(h.ctx, resource.Handle(handle), initialCall, u, t)
	if !h.check(err) {
		return 0
	}
	return y
}

// FreeInputVariable releases an input variable handle.
func (h *Host) FreeInputVariable(handle uint32) {
	h.check(h.coord.FreeInputVariable(h.ctx, resource.Handle(handle)))
}

// AllocateOutputVariable returns the handle of an output variable.
func (h *Host) AllocateOutputVariable(spec OutputSpec) uint32 {
	handle, err := h.coord.AllocateOutputVariable(h.ctx, spec)
	if !h.check(err) {
		return 0
	}
	return h.allocated("output variable", spec.Instance, spec.Building, handle, spec.LogLevel.Traces())
}

// InstantiateOutputVariable instantiates an output variable.
func (h *Host) InstantiateOutputVariable(handle uint32, startTime float64) {
	h.check(h.coord.InstantiateOutputVariable(h.ctx, resource.Handle(handle), startTime))
}

// ExchangeOutputVariable returns the value and the next event time.
func (h *Host) ExchangeOutputVariable(handle uint32, initialCall bool, directDependency, t float64) (y, tNext float64) {
	y, tNext, err := h.coord.ExchangeOutputVariable(h.ctx, resource.Handle(handle), initialCall, directDependency, t)
	if !h.check(err) {
		return 0, 0
	}
	return y, tNext
}

// FreeOutputVariable releases an output variable handle.
func (h *Host) FreeOutputVariable(handle uint32) {
	h.check(h.coord.FreeOutputVariable(h.ctx, resource.Handle(handle)))
}

// Close releases every engine.
func (h *Host) Close() {
	h.check(h.coord.Close(h.ctx))
}
