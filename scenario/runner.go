package scenario

import (
	"context"
	stderrors "errors"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/spawn/coupling"
	"github.com/wippyai/spawn/errors"
	"github.com/wippyai/spawn/resource"
)

// Value is one exchanged value in caller units.
type Value struct {
	Series string
	Unit   string
	Value  float64
}

// Step is the state after all objects exchanged at Time.
type Step struct {
	Time    float64
	Initial bool
	Values  []Value
}

// Lookup returns the value of series.
func (s Step) Lookup(series string) (float64, bool) {
	for _, v := range s.Values {
		if v.Series == series {
			return v.Value, true
		}
	}
	return 0, false
}

type zoneRun struct {
	b      *Building
	z      Zone
	handle resource.Handle
}

type inputRun struct {
	b      *Building
	in     Input
	handle resource.Handle
}

type outputRun struct {
	b      *Building
	out    Output
	handle resource.Handle
}

// Runner replays a scenario against a coordinator.
type Runner struct {
	sc    *Scenario
	coord *coupling.Coordinator
	log   *zap.Logger

	zones   []zoneRun
	inputs  []inputRun
	outputs []outputRun
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(sc *Scenario, coord *coupling.Coordinator, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{sc: sc, coord: coord, log: log.With(zap.String("scenario", sc.Name))}
	for i := range sc.Buildings {
		b := &sc.Buildings[i]
		for _, z := range b.Zones {
			r.zones = append(r.zones, zoneRun{b: b, z: z})
		}
		for _, in := range b.Inputs {
			r.inputs = append(r.inputs, inputRun{b: b, in: in})
		}
		for _, out := range b.Outputs {
			r.outputs = append(r.outputs, outputRun{b: b, out: out})
		}
	}
	return r
}

// Run allocates and instantiates every object, then steps from Start to Stop.
// Each step is shortened to the earliest next event reported by an output
// variable. observe is called after every step; an error from it stops the
// run. Every handle is freed before Run returns.
func (r *Runner) Run(ctx context.Context, observe func(Step) error) (err error) {
	if err := r.allocate(ctx); err != nil {
		return stderrors.Join(err, r.free(ctx))
	}
	defer func() {
		err = stderrors.Join(err, r.free(ctx))
	}()
	if err := r.instantiate(ctx); err != nil {
		return err
	}

	t := r.sc.Start
	step, tNext, err := r.exchange(ctx, true, t)
	if err != nil {
		return err
	}
	if err := observe(step); err != nil {
		return err
	}

	eps := 1e-9 * r.sc.Step
	steps := 1
	for t < r.sc.Stop-eps {
		next := math.Min(t+r.sc.Step, r.sc.Stop)
		if tNext > t+eps && tNext < next {
			next = tNext
		}
		t = next
		if step, tNext, err = r.exchange(ctx, false, t); err != nil {
			return err
		}
		if err := observe(step); err != nil {
			return err
		}
		steps++
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	r.log.Info("scenario complete", zap.Int("steps", steps), zap.Float64("time", t))
	return nil
}

func (r *Runner) allocate(ctx context.Context) error {
	rounds := 1
	if r.sc.DuplicateAllocate {
		rounds = 2
	}
	for round := 0; round < rounds; round++ {
		for i := range r.zones {
			zr := &r.zones[i]
			h, err := r.coord.AllocateZone(ctx, zr.b.ZoneSpec(zr.z))
			if err != nil {
				return err
			}
			if err := sameHandle(zr.z.Instance, round, zr.handle, h); err != nil {
				return err
			}
			zr.handle = h
		}
		for i := range r.inputs {
			ir := &r.inputs[i]
			h, err := r.coord.AllocateInputVariable(ctx, ir.b.InputSpec(ir.in))
			if err != nil {
				return err
			}
			if err := sameHandle(ir.in.Instance, round, ir.handle, h); err != nil {
				return err
			}
			ir.handle = h
		}
		for i := range r.outputs {
			or := &r.outputs[i]
			h, err := r.coord.AllocateOutputVariable(ctx, or.b.OutputSpec(or.out))
			if err != nil {
				return err
			}
			if err := sameHandle(or.out.Instance, round, or.handle, h); err != nil {
				return err
			}
			or.handle = h
		}
	}
	r.log.Debug("allocated", zap.Int("zones", len(r.zones)), zap.Int("inputs", len(r.inputs)),
		zap.Int("outputs", len(r.outputs)), zap.Int("rounds", rounds))
	return nil
}

func sameHandle(instance string, round int, prev, h resource.Handle) error {
	if round > 0 && prev != h {
		return errors.New(errors.PhaseAllocate, errors.KindConfiguration).Instance(instance).
			Detail("repeated allocate returned handle %d, first returned %d", h, prev).Build()
	}
	return nil
}

func (r *Runner) instantiate(ctx context.Context) error {
	rounds := 1
	if r.sc.DuplicateAllocate {
		rounds = 2
	}
	for round := 0; round < rounds; round++ {
		for _, zr := range r.zones {
			if _, err := r.coord.InstantiateZone(ctx, zr.handle, r.sc.Start); err != nil {
				return err
			}
		}
		for _, ir := range r.inputs {
			if err := r.coord.InstantiateInputVariable(ctx, ir.handle, r.sc.Start); err != nil {
				return err
			}
		}
		for _, or := range r.outputs {
			if err := r.coord.InstantiateOutputVariable(ctx, or.handle, r.sc.Start); err != nil {
				return err
			}
		}
	}
	return nil
}

// exchange runs inputs, then zones, then outputs at time t and returns the
// earliest next event.
func (r *Runner) exchange(ctx context.Context, initial bool, t float64) (Step, float64, error) {
	step := Step{Time: t, Initial: initial}
	tNext := math.Inf(1)

	for _, ir := range r.inputs {
		u, err := r.coord.ExchangeInputVariable(ctx, ir.handle, initial, ir.in.Signal.At(t), t)
		if err != nil {
			return step, 0, err
		}
		step.Values = append(step.Values, Value{Series: SeriesName(ir.in.Instance, ir.in.Name), Unit: ir.in.Unit, Value: u})
	}
	for _, zr := range r.zones {
		u := make([]float64, len(zr.z.Inputs))
		for i, v := range zr.z.Inputs {
			u[i] = v.Signal.At(t)
		}
		res, err := r.coord.ExchangeZone(ctx, zr.handle, initial, u, t)
		if err != nil {
			return step, 0, err
		}
		for i, v := range zr.z.Outputs {
			step.Values = append(step.Values, Value{Series: SeriesName(zr.z.Instance, v.Name), Unit: v.Unit, Value: res.Outputs[i]})
		}
		if d := zr.z.Derivatives; d != nil {
			for i, p := range d.Structure {
				step.Values = append(step.Values, Value{Series: SeriesName(zr.z.Instance, zr.z.derivativeName(p)), Value: res.Derivatives[i]})
			}
		}
	}
	for _, or := range r.outputs {
		y, next, err := r.coord.ExchangeOutputVariable(ctx, or.handle, initial, 0, t)
		if err != nil {
			return step, 0, err
		}
		step.Values = append(step.Values, Value{Series: SeriesName(or.out.Instance, or.out.Variable), Value: y})
		tNext = math.Min(tNext, next)
	}
	return step, tNext, nil
}

func (r *Runner) free(ctx context.Context) error {
	var errs []error
	for _, or := range r.outputs {
		errs = append(errs, r.coord.FreeOutputVariable(ctx, or.handle))
	}
	for _, ir := range r.inputs {
		errs = append(errs, r.coord.FreeInputVariable(ctx, ir.handle))
	}
	for _, zr := range r.zones {
		errs = append(errs, r.coord.FreeZone(ctx, zr.handle))
	}
	return stderrors.Join(errs...)
}
