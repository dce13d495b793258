package building

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/errors"
	"github.com/wippyai/spawn/report"
)

// Mode is the lifecycle phase of a building's engine.
type Mode int

const (
	ModeUninstantiated Mode = iota
	ModeInstantiating
	ModeInitializing
	ModeEvent
	ModeContinuousTime
)

func (m Mode) String() string {
	switch m {
	case ModeUninstantiated:
		return "uninstantiated"
	case ModeInstantiating:
		return "instantiating"
	case ModeInitializing:
		return "initializing"
	case ModeEvent:
		return "event"
	case ModeContinuousTime:
		return "continuous_time"
	default:
		return "unknown"
	}
}

// EngineState tracks whether the engine has been loaded.
type EngineState int

const (
	EngineAbsent EngineState = iota
	EngineLoaded
)

// Building groups the exchange objects sharing one engine.
type Building struct {
	Name     string
	Image    engine.Image
	LogLevel report.LogLevel

	log *zap.Logger

	mode      Mode
	state     EngineState
	engine    engine.Engine
	time      float64
	nextEvent float64
	hasEvent  bool

	zones    []*Zone
	inputs   []*InputVariable
	outputs  []*OutputVariable
	byName   map[string]Object
	byOutput map[OutputKey]*OutputVariable
}

// New creates an empty building. A nil logger discards output.
func New(name string, img engine.Image, level report.LogLevel, log *zap.Logger) *Building {
	if log == nil {
		log = zap.NewNop()
	}
	return &Building{
		Name:     name,
		Image:    img,
		LogLevel: level,
		log:      log.With(zap.String("building", name)),
		byName:   make(map[string]Object),
		byOutput: make(map[OutputKey]*OutputVariable),
	}
}

func (b *Building) Mode() Mode               { return b.mode }
func (b *Building) EngineState() EngineState { return b.state }
func (b *Building) Engine() engine.Engine    { return b.engine }
func (b *Building) Time() float64            { return b.time }

// NextEvent returns the next scheduled event time, +Inf when none is scheduled.
func (b *Building) NextEvent() float64 {
	if !b.hasEvent {
		return math.Inf(1)
	}
	return b.nextEvent
}

// Counts returns the number of attached zones, input and output variables.
func (b *Building) Counts() (zones, inputs, outputs int) {
	return len(b.zones), len(b.inputs), len(b.outputs)
}

// Zones returns the attached zones in allocation order.
func (b *Building) Zones() []*Zone { return append([]*Zone(nil), b.zones...) }

// InputVariables returns the attached input variables in allocation order.
func (b *Building) InputVariables() []*InputVariable {
	return append([]*InputVariable(nil), b.inputs...)
}

// OutputVariables returns the attached output variables in allocation order.
func (b *Building) OutputVariables() []*OutputVariable {
	return append([]*OutputVariable(nil), b.outputs...)
}

// Object returns the object attached under a caller instance name.
func (b *Building) Object(name string) (Object, bool) {
	o, ok := b.byName[name]
	return o, ok
}

// AddZone attaches z. A second zone with the same key specification is
// rejected with a configuration error naming both instances.
func (b *Building) AddZone(z *Zone) error {
	for _, other := range b.zones {
		if other.Spec() == z.Spec() {
			return errors.DuplicateZone(b.Name, z.Spec(), other.Name(), z.Name())
		}
	}
	if err := b.attach(z, &z.Exchange); err != nil {
		return err
	}
	b.zones = append(b.zones, z)
	return nil
}

// AddInputVariable attaches iv.
func (b *Building) AddInputVariable(iv *InputVariable) error {
	if err := b.attach(iv, &iv.Exchange); err != nil {
		return err
	}
	b.inputs = append(b.inputs, iv)
	return nil
}

// AddOutputVariable attaches ov. Callers sharing an existing key should use
// FindOutput and AddCaller instead.
func (b *Building) AddOutputVariable(ov *OutputVariable) error {
	if existing, ok := b.byOutput[ov.Key]; ok {
		return errors.Configuration(errors.PhaseAllocate, ov.Name(),
			"output %q of key %q is already held by %s", ov.Key.Variable, ov.Key.Key, existing.Name())
	}
	if err := b.attach(ov, &ov.Exchange); err != nil {
		return err
	}
	b.outputs = append(b.outputs, ov)
	b.byOutput[ov.Key] = ov
	return nil
}

// FindOutput returns the output variable attached under key.
func (b *Building) FindOutput(key OutputKey) (*OutputVariable, bool) {
	ov, ok := b.byOutput[key]
	return ov, ok
}

func (b *Building) attach(o Object, x *Exchange) error {
	if _, dup := b.byName[o.Name()]; dup {
		return errors.New(errors.PhaseAllocate, errors.KindConfiguration).
			Building(b.Name).Instance(o.Name()).
			Detail("instance name is already attached to the building").Build()
	}
	x.building = b
	b.byName[o.Name()] = o
	if b.LogLevel.Traces() {
		b.log.Info("attached", zap.String("instance", o.Name()), zap.Stringer("kind", o.Kind()))
	}
	return nil
}

func (b *Building) detach(o Object, x *Exchange) {
	delete(b.byName, o.Name())
	x.building = nil
}

// RemoveZone detaches z.
func (b *Building) RemoveZone(z *Zone) {
	b.zones = removeItem(b.zones, z)
	b.detach(z, &z.Exchange)
}

// RemoveInputVariable detaches iv.
func (b *Building) RemoveInputVariable(iv *InputVariable) {
	b.inputs = removeItem(b.inputs, iv)
	b.detach(iv, &iv.Exchange)
}

// RemoveOutputVariable detaches ov regardless of its share count.
func (b *Building) RemoveOutputVariable(ov *OutputVariable) {
	b.outputs = removeItem(b.outputs, ov)
	delete(b.byOutput, ov.Key)
	for _, c := range ov.callers {
		delete(b.byName, c)
	}
	ov.building = nil
}

// AliasOutput registers an extra caller name for a shared output variable.
func (b *Building) AliasOutput(ov *OutputVariable, caller string) {
	ov.AddCaller(caller)
	b.byName[caller] = ov
}

// UnaliasOutput drops a caller name and returns the remaining share count.
// The variable is removed once no caller holds it.
func (b *Building) UnaliasOutput(ov *OutputVariable, caller string) int {
	n := ov.RemoveCaller(caller)
	delete(b.byName, caller)
	if n == 0 {
		b.RemoveOutputVariable(ov)
	} else if ov.name == caller {
		ov.name = ov.callers[0]
	}
	return n
}

func removeItem[T comparable](items []T, item T) []T {
	for i, it := range items {
		if it == item {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}

func (b *Building) objects() []Object {
	objs := make([]Object, 0, len(b.zones)+len(b.inputs)+len(b.outputs))
	for _, z := range b.zones {
		objs = append(objs, z)
	}
	for _, iv := range b.inputs {
		objs = append(objs, iv)
	}
	for _, ov := range b.outputs {
		objs = append(objs, ov)
	}
	return objs
}

// EnsureEngine loads the engine on first use. It resolves the value
// references of every attached object, sets up the experiment at startTime
// and enters initialization mode. Later calls return immediately.
func (b *Building) EnsureEngine(ctx context.Context, loader engine.Loader, startTime float64) error {
	if b.state == EngineLoaded {
		return nil
	}

	b.mode = ModeInstantiating
	if b.LogLevel.Traces() {
		b.log.Info("loading engine", zap.String("image", b.Image.Path), zap.Float64("time", startTime))
	}

	e, err := loader.Load(ctx, b.Image)
	if err != nil {
		b.mode = ModeUninstantiated
		return withBuilding(errors.Wrap(errors.PhaseInstantiate, errors.KindEngine, err, "load engine"), b.Name)
	}
	if err := b.bind(e.Describe()); err != nil {
		b.unbind()
		_ = e.Close(ctx)
		b.mode = ModeUninstantiated
		return err
	}
	if err := e.Setup(ctx, startTime); err != nil {
		b.unbind()
		_ = e.Close(ctx)
		b.mode = ModeUninstantiated
		return errors.Engine(errors.PhaseInstantiate, b.Name, "setup experiment", err)
	}

	b.engine = e
	b.state = EngineLoaded
	b.time = startTime
	b.mode = ModeInitializing
	return nil
}

func (b *Building) bind(md *engine.ModelDescription) error {
	for _, o := range b.objects() {
		for _, v := range o.Vectors() {
			for i, name := range v.Names {
				mv, ok := md.Lookup(name)
				if !ok {
					err := errors.NotFound(errors.PhaseBind, "engine variable", name)
					err.Building, err.Instance = b.Name, o.Name()
					return err
				}
				v.Bind(i, mv.ValueRef, mv.Unit)
			}
		}
		if ov, ok := o.(*OutputVariable); ok && ov.PrintUnit {
			b.log.Info("output variable unit",
				zap.String("instance", ov.Name()),
				zap.String("variable", ov.Key.EngineName()),
				zap.String("unit", ov.Outputs.Units[0]))
		}
	}
	return nil
}

func (b *Building) unbind() {
	for _, o := range b.objects() {
		for _, v := range o.Vectors() {
			v.Unbind()
		}
	}
}

// MarkInitialized records the initial exchange of o. When every attached
// object is initialized the engine leaves initialization mode, enters event
// mode and reports its next event time.
func (b *Building) MarkInitialized(ctx context.Context, o Object) error {
	o.State().Initialized = true
	if b.mode != ModeInitializing {
		return nil
	}
	for _, other := range b.objects() {
		if !other.State().Initialized {
			return nil
		}
	}
	return b.exitInitialization(ctx)
}

func (b *Building) exitInitialization(ctx context.Context) error {
	if err := b.engine.ExitInitializationMode(ctx); err != nil {
		return errors.Engine(errors.PhaseExchange, b.Name, "exit initialization mode", err)
	}
	b.mode = ModeEvent
	if err := b.updateNextEvent(ctx); err != nil {
		return err
	}
	if b.LogLevel.Traces() {
		b.log.Info("initialization complete", zap.Float64("time", b.time), zap.Float64("next_event", b.NextEvent()))
	}
	return nil
}

func (b *Building) updateNextEvent(ctx context.Context) error {
	next, defined, err := b.engine.NewDiscreteStates(ctx)
	if err != nil {
		return errors.Engine(errors.PhaseExchange, b.Name, "new discrete states", err)
	}
	b.nextEvent, b.hasEvent = next, defined
	return nil
}

// AdvanceTo moves the engine to time t. Initialization is completed first if
// some object never made an initial exchange. When t reaches the next event
// time an event iteration runs before returning to continuous-time mode.
func (b *Building) AdvanceTo(ctx context.Context, t float64) error {
	if b.state != EngineLoaded {
		return errors.New(errors.PhaseExchange, errors.KindNotInstantiated).
			Building(b.Name).Detail("engine is not loaded").Build()
	}
	if b.mode == ModeInitializing {
		if err := b.exitInitialization(ctx); err != nil {
			return err
		}
	}
	if t == b.time {
		return nil
	}
	if t < b.time {
		return withBuilding(errors.InvalidInput(errors.PhaseExchange,
			"time moves backwards"), b.Name)
	}

	if b.mode == ModeEvent {
		if err := b.engine.EnterContinuousTimeMode(ctx); err != nil {
			return errors.Engine(errors.PhaseExchange, b.Name, "enter continuous time mode", err)
		}
		b.mode = ModeContinuousTime
	}
	if err := b.engine.SetTime(ctx, t); err != nil {
		return errors.Engine(errors.PhaseExchange, b.Name, "set time", err)
	}
	b.time = t

	if b.hasEvent && t >= b.nextEvent {
		if err := b.engine.EnterEventMode(ctx); err != nil {
			return errors.Engine(errors.PhaseExchange, b.Name, "enter event mode", err)
		}
		b.mode = ModeEvent
		if err := b.updateNextEvent(ctx); err != nil {
			return err
		}
		if err := b.engine.EnterContinuousTimeMode(ctx); err != nil {
			return errors.Engine(errors.PhaseExchange, b.Name, "enter continuous time mode", err)
		}
		b.mode = ModeContinuousTime
		if b.LogLevel.StepTraces() {
			b.log.Debug("event iteration", zap.Float64("time", t), zap.Float64("next_event", b.NextEvent()))
		}
	}
	return nil
}

// Set writes engine values.
func (b *Building) Set(ctx context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := b.engine.SetReal(ctx, refs, vals); err != nil {
		return errors.Engine(errors.PhaseExchange, b.Name, "set values", err)
	}
	return nil
}

// Get reads engine values.
func (b *Building) Get(ctx context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := b.engine.GetReal(ctx, refs, vals); err != nil {
		return errors.Engine(errors.PhaseExchange, b.Name, "get values", err)
	}
	return nil
}

// Close releases the engine. Attached objects become unbound.
func (b *Building) Close(ctx context.Context) error {
	if b.state != EngineLoaded {
		return nil
	}
	err := b.engine.Close(ctx)
	b.unbind()
	b.engine = nil
	b.state = EngineAbsent
	b.mode = ModeUninstantiated
	b.hasEvent = false
	if err != nil {
		return errors.Engine(errors.PhaseFree, b.Name, "close engine", err)
	}
	return nil
}

func withBuilding(err *errors.Error, building string) *errors.Error {
	err.Building = building
	return err
}
