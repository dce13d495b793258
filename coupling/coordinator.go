package coupling

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/building"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/errors"
	"github.com/wippyai/spawn/metrics"
	"github.com/wippyai/spawn/reals"
	"github.com/wippyai/spawn/recorder"
	"github.com/wippyai/spawn/resource"
	"github.com/wippyai/spawn/units"
)

// Coordinator drives the lifecycle of every exchange object of a process.
type Coordinator struct {
	registry     *building.Registry
	handles      *resource.UnifiedTable
	byCaller     map[string]resource.Handle
	loader       engine.Loader
	units        spawn.UnitConverter
	log          *zap.Logger
	metrics      *metrics.Metrics
	rec          Recorder
	maxBuildings int
}

// entry is the value stored behind a handle.
type entry struct {
	caller string
	obj    building.Object
}

// New creates a coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		handles:  resource.NewTable(),
		byCaller: make(map[string]resource.Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.loader == nil {
		c.loader = engine.NewBuiltinLoader()
	}
	if c.units == nil {
		c.units = units.New()
	}
	if c.log == nil {
		c.log = Logger()
	}
	if c.metrics != nil {
		c.handles.Subscribe(c.metrics)
	}
	c.registry = building.NewRegistry(c.maxBuildings)
	return c
}

// Building returns the building registered under name, or nil.
func (c *Coordinator) Building(name string) *building.Building {
	return c.registry.Resolve(name)
}

// Buildings returns the number of registered buildings.
func (c *Coordinator) Buildings() int { return c.registry.Len() }

// Handles returns the number of live handles.
func (c *Coordinator) Handles() int { return c.handles.Len() }

// Close releases every engine and handle.
func (c *Coordinator) Close(ctx context.Context) error {
	err := c.registry.Close(ctx)
	if cerr := c.handles.Close(); cerr != nil {
		err = stderrors.Join(err, cerr)
	}
	return err
}

// AllocateZone registers a zone and returns its handle.
func (c *Coordinator) AllocateZone(ctx context.Context, spec ZoneSpec) (resource.Handle, error) {
	c.trace(spec.BuildingSpec, spec.Instance, "entered allocate")
	defer c.trace(spec.BuildingSpec, spec.Instance, "exiting allocate")

	if h, ok, err := c.existing(spec.Instance, resource.KindZone); ok || err != nil {
		return h, c.fail(err)
	}

	par, err := c.vector(spec.Instance, "parameter", spec.ZoneName, spec.ParameterNames, spec.ParameterUnits)
	if err != nil {
		return 0, c.fail(err)
	}
	in, err := c.vector(spec.Instance, "input", spec.ZoneName, spec.InputNames, spec.InputUnits)
	if err != nil {
		return 0, c.fail(err)
	}
	out, err := c.vector(spec.Instance, "output", spec.ZoneName, spec.OutputNames, spec.OutputUnits)
	if err != nil {
		return 0, c.fail(err)
	}
	d := spec.Derivatives
	if d.isZero() {
		d.K = 2
	}
	der, err := reals.NewDerivativeSet(d.Structure, d.K, d.N, d.Delta, d.NDer, out.Len(), in.Len())
	if err != nil {
		return 0, c.fail(withInstance(err, spec.Instance))
	}

	b, err := c.resolve(spec.BuildingSpec, spec.Instance)
	if err != nil {
		return 0, c.fail(err)
	}
	keyName := spec.KeyName
	if keyName == "" {
		keyName = "name"
	}
	z := building.NewZone(spec.Instance, spec.ZoneName, keyName, spec.KeyValues, par, in, out, der)
	if err := b.AddZone(z); err != nil {
		return 0, c.fail(err)
	}
	h, err := c.issue(spec.Instance, z)
	if err != nil {
		b.RemoveZone(z)
		return 0, c.fail(err)
	}
	return h, nil
}

// AllocateInputVariable registers an input variable and returns its handle.
func (c *Coordinator) AllocateInputVariable(ctx context.Context, spec InputSpec) (resource.Handle, error) {
	c.trace(spec.BuildingSpec, spec.Instance, "entered allocate")
	defer c.trace(spec.BuildingSpec, spec.Instance, "exiting allocate")

	if h, ok, err := c.existing(spec.Instance, resource.KindInput); ok || err != nil {
		return h, c.fail(err)
	}
	switch spec.Type {
	case building.Schedule:
	case building.Actuator:
		if spec.ComponentType == "" || spec.ControlType == "" {
			return 0, c.fail(errors.Configuration(errors.PhaseAllocate, spec.Instance,
				"actuator %q needs a component type and a control type", spec.Name))
		}
	default:
		return 0, c.fail(errors.Configuration(errors.PhaseAllocate, spec.Instance,
			"object type must be %d (schedule) or %d (actuator), obtained %d", building.Schedule, building.Actuator, spec.Type))
	}
	if spec.Name == "" {
		return 0, c.fail(errors.Configuration(errors.PhaseAllocate, spec.Instance, "input variable has no name"))
	}

	b, err := c.resolve(spec.BuildingSpec, spec.Instance)
	if err != nil {
		return 0, c.fail(err)
	}
	iv := building.NewInputVariable(spec.Instance, spec.Type, spec.Name, spec.ComponentType, spec.ControlType, spec.Unit)
	if err := b.AddInputVariable(iv); err != nil {
		return 0, c.fail(err)
	}
	h, err := c.issue(spec.Instance, iv)
	if err != nil {
		b.RemoveInputVariable(iv)
		return 0, c.fail(err)
	}
	return h, nil
}

// AllocateOutputVariable registers an output variable and returns its handle.
// A variable already present in the building is shared: its share count
// grows and the caller gets a new handle to it.
func (c *Coordinator) AllocateOutputVariable(ctx context.Context, spec OutputSpec) (resource.Handle, error) {
	c.trace(spec.BuildingSpec, spec.Instance, "entered allocate")
	defer c.trace(spec.BuildingSpec, spec.Instance, "exiting allocate")

	if h, ok, err := c.existing(spec.Instance, resource.KindOutput); ok || err != nil {
		return h, c.fail(err)
	}
	if spec.Variable == "" {
		return 0, c.fail(errors.Configuration(errors.PhaseAllocate, spec.Instance, "output variable has no name"))
	}

	b, err := c.resolve(spec.BuildingSpec, spec.Instance)
	if err != nil {
		return 0, c.fail(err)
	}
	key := building.OutputKey{Variable: spec.Variable, Key: spec.Key}
	ov, shared := b.FindOutput(key)
	if shared {
		b.AliasOutput(ov, spec.Instance)
		c.log.Debug("output variable shared",
			zap.String("building", b.Name),
			zap.String("instance", spec.Instance),
			zap.Int("share_count", ov.ShareCount()))
	} else {
		ov = building.NewOutputVariable(spec.Instance, key, spec.PrintUnit)
		if err := b.AddOutputVariable(ov); err != nil {
			return 0, c.fail(err)
		}
	}
	h, err := c.issue(spec.Instance, ov)
	if err != nil {
		b.UnaliasOutput(ov, spec.Instance)
		return 0, c.fail(err)
	}
	return h, nil
}

// existing returns the handle already issued to caller.
func (c *Coordinator) existing(caller string, kind resource.Kind) (resource.Handle, bool, error) {
	if caller == "" {
		return 0, false, errors.Configuration(errors.PhaseAllocate, "", "instance name is empty")
	}
	h, ok := c.byCaller[caller]
	if !ok {
		return 0, false, nil
	}
	if k, _ := c.handles.KindOf(h); k != kind {
		return 0, false, errors.Configuration(errors.PhaseAllocate, caller,
			"instance is already allocated as a %s", k)
	}
	return h, true, nil
}

func (c *Coordinator) vector(instance, what, prefix string, names, callerUnits []string) (*reals.RealVector, error) {
	if len(names) != len(callerUnits) {
		return nil, errors.LengthMismatch(instance, what, len(names), len(callerUnits))
	}
	return reals.NewNamed(prefix, names, callerUnits)
}

// resolve finds or creates the building of an allocation and checks that the
// declared engine image agrees with it.
func (c *Coordinator) resolve(spec BuildingSpec, instance string) (*building.Building, error) {
	if spec.Building == "" {
		return nil, errors.Configuration(errors.PhaseAllocate, instance, "building name is empty")
	}
	if b := c.registry.Resolve(spec.Building); b != nil {
		if spec.Image.Precompiled && spec.Image.Path != "" && spec.Image.Path != b.Image.Path {
			return nil, errors.ImageMismatch(b.Name, instance, spec.Image.Path, b.Image.Path)
		}
		return b, nil
	}
	b := building.New(spec.Building, spec.Image, spec.LogLevel, c.log)
	if err := c.registry.Register(b); err != nil {
		return nil, withInstance(err, instance)
	}
	if c.metrics != nil {
		c.metrics.Buildings.Set(float64(c.registry.Len()))
	}
	c.log.Debug("building registered", zap.String("building", b.Name), zap.String("image", spec.Image.Path))
	return b, nil
}

func (c *Coordinator) issue(caller string, obj building.Object) (resource.Handle, error) {
	h := c.handles.Insert(obj.Kind(), &entry{caller: caller, obj: obj})
	if h == 0 {
		return 0, errors.New(errors.PhaseAllocate, errors.KindAllocation).
			Building(obj.Building().Name).Instance(caller).Detail("handle table is closed").Build()
	}
	c.byCaller[caller] = h
	if c.metrics != nil {
		c.metrics.Allocations.WithLabelValues(obj.Kind().String()).Inc()
	}
	return h, nil
}

func (c *Coordinator) lookup(phase errors.Phase, h resource.Handle, kind resource.Kind) (*entry, error) {
	ent, ok := resource.Lookup[*entry](c.handles, h, kind)
	if !ok {
		return nil, errors.NotFound(phase, kind.String()+" handle", fmt.Sprint(h))
	}
	return ent, nil
}

// InstantiateZone loads the building's engine if needed and returns the zone
// parameters in caller units. Repeated calls return the parameters again.
func (c *Coordinator) InstantiateZone(ctx context.Context, h resource.Handle, startTime float64) ([]float64, error) {
	ent, err := c.instantiate(ctx, h, resource.KindZone, startTime)
	if err != nil {
		return nil, c.fail(err)
	}
	z := ent.obj.(*building.Zone)
	if err := c.read(ctx, z.Building(), z.Parameters); err != nil {
		return nil, c.fail(withInstance(err, ent.caller))
	}
	return append([]float64(nil), z.Parameters.CallerValues...), nil
}

// InstantiateInputVariable loads the building's engine if needed.
func (c *Coordinator) InstantiateInputVariable(ctx context.Context, h resource.Handle, startTime float64) error {
	_, err := c.instantiate(ctx, h, resource.KindInput, startTime)
	return c.fail(err)
}

// InstantiateOutputVariable loads the building's engine if needed.
func (c *Coordinator) InstantiateOutputVariable(ctx context.Context, h resource.Handle, startTime float64) error {
	_, err := c.instantiate(ctx, h, resource.KindOutput, startTime)
	return c.fail(err)
}

func (c *Coordinator) instantiate(ctx context.Context, h resource.Handle, kind resource.Kind, startTime float64) (*entry, error) {
	ent, err := c.lookup(errors.PhaseInstantiate, h, kind)
	if err != nil {
		return nil, err
	}
	obj := ent.obj
	if obj.State().Instantiated {
		return ent, nil
	}
	b := obj.Building()
	if b.EngineState() == building.EngineAbsent {
		if err := b.EnsureEngine(ctx, c.loader, startTime); err != nil {
			return nil, withInstance(err, ent.caller)
		}
		if c.metrics != nil {
			c.metrics.EngineLoads.Inc()
		}
		c.log.Info("engine loaded",
			zap.String("building", b.Name),
			zap.String("image", b.Image.Path),
			zap.Float64("time", startTime))
	}
	for _, v := range obj.Vectors() {
		if !v.Bound() {
			return nil, errors.UnresolvedReference(b.Name, ent.caller)
		}
	}
	obj.State().Instantiated = true
	if b.LogLevel.Traces() {
		c.log.Info("instantiated", zap.String("building", b.Name), zap.String("instance", ent.caller), zap.Stringer("kind", kind))
	}
	return ent, nil
}

// ExchangeZone writes the zone inputs u at time t and returns the outputs
// and, outside initialization, the derivatives.
func (c *Coordinator) ExchangeZone(ctx context.Context, h resource.Handle, initialCall bool, u []float64, t float64) (ZoneResult, error) {
	defer c.observe(resource.KindZone, time.Now())

	ent, b, err := c.prepare(ctx, h, resource.KindZone, initialCall, t)
	if err != nil {
		return ZoneResult{}, c.fail(err)
	}
	z := ent.obj.(*building.Zone)
	if len(u) != z.Inputs.Len() {
		return ZoneResult{}, c.fail(withInstance(errors.InvalidInput(errors.PhaseExchange,
			fmt.Sprintf("expected %d inputs, obtained %d", z.Inputs.Len(), len(u))), ent.caller))
	}

	if err := c.write(ctx, b, z.Inputs, u); err != nil {
		return ZoneResult{}, c.fail(withInstance(err, ent.caller))
	}
	if err := c.read(ctx, b, z.Outputs); err != nil {
		return ZoneResult{}, c.fail(withInstance(err, ent.caller))
	}
	res := ZoneResult{Outputs: append([]float64(nil), z.Outputs.CallerValues...)}

	if z.Derivatives.Len() > 0 && b.Mode() != building.ModeInitializing {
		if err := c.derivatives(ctx, b, z, u); err != nil {
			return ZoneResult{}, c.fail(withInstance(err, ent.caller))
		}
	}
	res.Derivatives = z.Derivatives.Values()

	if initialCall {
		if err := b.MarkInitialized(ctx, z); err != nil {
			return ZoneResult{}, c.fail(withInstance(err, ent.caller))
		}
	}
	c.record(ctx, b, ent.caller, t, z.Inputs, recorder.In)
	c.record(ctx, b, ent.caller, t, z.Outputs, recorder.Out)
	c.stepTrace(b, ent.caller, t)
	return res, nil
}

// derivatives approximates each Jacobian entry by a forward difference and
// restores the perturbed input afterwards.
func (c *Coordinator) derivatives(ctx context.Context, b *building.Building, z *building.Zone, u []float64) error {
	in, out := z.Inputs, z.Outputs
	for i := range z.Derivatives.Entries {
		d := &z.Derivatives.Entries[i]
		if d.Delta == 0 {
			return errors.Configuration(errors.PhaseExchange, z.Name(), "derivative %d has a zero step", i+1)
		}
		perturbed, err := c.units.ToEngine(u[d.Input]+d.Delta, in.CallerUnits[d.Input], in.Units[d.Input])
		if err != nil {
			return errors.Wrap(errors.PhaseExchange, errors.KindInvalidInput, err, "convert "+in.Names[d.Input])
		}
		refs := in.Refs[d.Input : d.Input+1]
		if err := b.Set(ctx, refs, []float64{perturbed}); err != nil {
			return err
		}
		y := []float64{0}
		if err := b.Get(ctx, out.Refs[d.Output:d.Output+1], y); err != nil {
			return err
		}
		if err := b.Set(ctx, refs, in.EngineValues[d.Input:d.Input+1]); err != nil {
			return err
		}
		yc, err := c.units.FromEngine(y[0], out.Units[d.Output], out.CallerUnits[d.Output])
		if err != nil {
			return errors.Wrap(errors.PhaseExchange, errors.KindInvalidInput, err, "convert "+out.Names[d.Output])
		}
		d.Value = (yc - out.CallerValues[d.Output]) / d.Delta
	}
	return nil
}

// ExchangeInputVariable writes u at time t and returns it.
func (c *Coordinator) ExchangeInputVariable(ctx context.Context, h resource.Handle, initialCall bool, u, t float64) (float64, error) {
	defer c.observe(resource.KindInput, time.Now())

	ent, b, err := c.prepare(ctx, h, resource.KindInput, initialCall, t)
	if err != nil {
		return 0, c.fail(err)
	}
	iv := ent.obj.(*building.InputVariable)
	if err := c.write(ctx, b, iv.Inputs, []float64{u}); err != nil {
		return 0, c.fail(withInstance(err, ent.caller))
	}
	if initialCall {
		if err := b.MarkInitialized(ctx, iv); err != nil {
			return 0, c.fail(withInstance(err, ent.caller))
		}
	}
	c.record(ctx, b, ent.caller, t, iv.Inputs, recorder.In)
	c.stepTrace(b, ent.caller, t)
	return u, nil
}

// ExchangeOutputVariable reads the variable at time t. It also returns the
// next event time of the building, +Inf when none is scheduled.
// directDependency only orders the call after the host's inputs and is not used.
func (c *Coordinator) ExchangeOutputVariable(ctx context.Context, h resource.Handle, initialCall bool, directDependency, t float64) (float64, float64, error) {
	defer c.observe(resource.KindOutput, time.Now())

	ent, b, err := c.prepare(ctx, h, resource.KindOutput, initialCall, t)
	if err != nil {
		return 0, 0, c.fail(err)
	}
	ov := ent.obj.(*building.OutputVariable)
	if err := c.read(ctx, b, ov.Outputs); err != nil {
		return 0, 0, c.fail(withInstance(err, ent.caller))
	}
	if initialCall {
		if err := b.MarkInitialized(ctx, ov); err != nil {
			return 0, 0, c.fail(withInstance(err, ent.caller))
		}
	}
	c.record(ctx, b, ent.caller, t, ov.Outputs, recorder.Out)
	c.stepTrace(b, ent.caller, t)
	return ov.Outputs.CallerValues[0], b.NextEvent(), nil
}

// prepare checks the handle and moves the building to time t unless this is
// an initial call during initialization.
func (c *Coordinator) prepare(ctx context.Context, h resource.Handle, kind resource.Kind, initialCall bool, t float64) (*entry, *building.Building, error) {
	ent, err := c.lookup(errors.PhaseExchange, h, kind)
	if err != nil {
		return nil, nil, err
	}
	if !ent.obj.State().Instantiated {
		return nil, nil, errors.NotInstantiated(errors.PhaseExchange, ent.caller)
	}
	if c.metrics != nil {
		c.metrics.Exchanges.WithLabelValues(kind.String()).Inc()
	}
	b := ent.obj.Building()
	if initialCall && b.Mode() == building.ModeInitializing {
		return ent, b, nil
	}
	if err := b.AdvanceTo(ctx, t); err != nil {
		return nil, nil, withInstance(err, ent.caller)
	}
	return ent, b, nil
}

// write converts caller values into engine units and sets them.
func (c *Coordinator) write(ctx context.Context, b *building.Building, v *reals.RealVector, vals []float64) error {
	for i, x := range vals {
		y, err := c.units.ToEngine(x, v.CallerUnits[i], v.Units[i])
		if err != nil {
			return errors.Wrap(errors.PhaseExchange, errors.KindInvalidInput, err, "convert "+v.Names[i])
		}
		v.CallerValues[i] = x
		v.EngineValues[i] = y
	}
	return b.Set(ctx, v.Refs, v.EngineValues)
}

// read gets engine values and converts them into caller units.
func (c *Coordinator) read(ctx context.Context, b *building.Building, v *reals.RealVector) error {
	if v.Len() == 0 {
		return nil
	}
	if err := b.Get(ctx, v.Refs, v.EngineValues); err != nil {
		return err
	}
	for i, y := range v.EngineValues {
		x, err := c.units.FromEngine(y, v.Units[i], v.CallerUnits[i])
		if err != nil {
			return errors.Wrap(errors.PhaseExchange, errors.KindInvalidInput, err, "convert "+v.Names[i])
		}
		v.CallerValues[i] = x
	}
	return nil
}

// FreeZone releases a zone handle and removes the zone from its building.
// Unknown or already freed handles are ignored.
func (c *Coordinator) FreeZone(ctx context.Context, h resource.Handle) error {
	return c.free(h, resource.KindZone)
}

// FreeInputVariable releases an input variable handle.
func (c *Coordinator) FreeInputVariable(ctx context.Context, h resource.Handle) error {
	return c.free(h, resource.KindInput)
}

// FreeOutputVariable releases the caller's handle of an output variable. The
// variable leaves its building once no caller holds it.
func (c *Coordinator) FreeOutputVariable(ctx context.Context, h resource.Handle) error {
	return c.free(h, resource.KindOutput)
}

func (c *Coordinator) free(h resource.Handle, kind resource.Kind) error {
	ent, ok := resource.Lookup[*entry](c.handles, h, kind)
	if !ok {
		c.log.Debug("free of unknown handle ignored", zap.Uint32("handle", uint32(h)), zap.Stringer("kind", kind))
		return nil
	}
	b := ent.obj.Building()
	switch obj := ent.obj.(type) {
	case *building.Zone:
		b.RemoveZone(obj)
	case *building.InputVariable:
		b.RemoveInputVariable(obj)
	case *building.OutputVariable:
		left := b.UnaliasOutput(obj, ent.caller)
		c.log.Debug("output variable released",
			zap.String("building", b.Name),
			zap.String("instance", ent.caller),
			zap.Int("share_count", left))
	}
	c.handles.Remove(h)
	delete(c.byCaller, ent.caller)
	if c.metrics != nil {
		c.metrics.Frees.WithLabelValues(kind.String()).Inc()
	}
	if b.LogLevel.Traces() {
		c.log.Info("freed", zap.String("building", b.Name), zap.String("instance", ent.caller), zap.Stringer("kind", kind))
	}
	return nil
}

func (c *Coordinator) record(ctx context.Context, b *building.Building, caller string, t float64, v *reals.RealVector, dir recorder.Direction) {
	if c.rec == nil || v.Len() == 0 {
		return
	}
	samples := make([]recorder.Sample, v.Len())
	for i := range samples {
		samples[i] = recorder.Sample{
			Time:      t,
			Building:  b.Name,
			Instance:  caller,
			Variable:  v.Names[i],
			Unit:      v.CallerUnits[i],
			Direction: dir,
			Value:     v.CallerValues[i],
		}
	}
	if err := c.rec.Record(ctx, samples...); err != nil {
		c.log.Warn("record samples", zap.String("instance", caller), zap.Error(err))
	}
}

func (c *Coordinator) observe(kind resource.Kind, start time.Time) {
	if c.metrics != nil {
		c.metrics.ExchangeTime.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	}
}

func (c *Coordinator) trace(spec BuildingSpec, instance, msg string) {
	if spec.LogLevel.Traces() {
		c.log.Info(msg, zap.String("building", spec.Building), zap.String("instance", instance))
	}
}

func (c *Coordinator) stepTrace(b *building.Building, instance string, t float64) {
	if b.LogLevel.StepTraces() {
		c.log.Debug("exchanged",
			zap.String("building", b.Name),
			zap.String("instance", instance),
			zap.Float64("time", t),
			zap.Stringer("mode", b.Mode()))
	}
}

// fail counts err and returns it unchanged.
func (c *Coordinator) fail(err error) error {
	if err == nil {
		return nil
	}
	if c.metrics != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			c.metrics.Errors.WithLabelValues(string(e.Phase), string(e.Kind)).Inc()
		}
	}
	return err
}

// withInstance fills in the instance name of a structured error.
func withInstance(err error, instance string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Instance == "" {
		e.Instance = instance
	}
	return err
}
