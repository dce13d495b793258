package engine

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/errors"
)

const builtinScheme = "builtin:"

// BuiltinFactory creates an in-process engine. Options come from the query
// part of the image path, e.g. builtin:rc-zone?zones=Core_ZN,Attic.
type BuiltinFactory func(img Image, opts url.Values) (Engine, error)

// BuiltinLoader loads engines that are compiled into the binary.
type BuiltinLoader struct {
	mu        sync.RWMutex
	factories map[string]BuiltinFactory
}

// NewBuiltinLoader returns a loader with the reference engines registered.
func NewBuiltinLoader() *BuiltinLoader {
	l := &BuiltinLoader{factories: make(map[string]BuiltinFactory)}
	l.Register("rc-zone", newRCZone)
	return l
}

// Register adds or replaces a named factory.
func (l *BuiltinLoader) Register(name string, f BuiltinFactory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[name] = f
}

// Accepts reports whether path uses the builtin: scheme.
func (l *BuiltinLoader) Accepts(path string) bool {
	return strings.HasPrefix(path, builtinScheme)
}

// Load implements Loader.
func (l *BuiltinLoader) Load(_ context.Context, img Image) (Engine, error) {
	if !l.Accepts(img.Path) {
		return nil, errors.Load("not a builtin engine "+quote(img.Path), nil)
	}
	name, query, _ := strings.Cut(strings.TrimPrefix(img.Path, builtinScheme), "?")
	opts, err := url.ParseQuery(query)
	if err != nil {
		return nil, errors.Load("options of "+quote(img.Path), err)
	}

	l.mu.RLock()
	f, ok := l.factories[name]
	l.mu.RUnlock()
	if !ok {
		return nil, errors.Load("unknown builtin engine "+quote(name), nil)
	}

	e, err := f(img, opts)
	if err != nil {
		return nil, errors.Load("create builtin engine "+quote(name), err)
	}
	Logger().Debug("builtin engine loaded", zap.String("engine", name), zap.String("image", img.Path))
	return e, nil
}

// Reference RC zone model. Each zone couples the caller's air temperature to
// a lumped thermal mass that exchanges heat with the outdoor air.
const (
	rcDefaultZone   = "Core_ZN"
	rcFloorArea     = 100.0   // m2
	rcHeight        = 3.0     // m
	rcCapacity      = 2.0e5   // J/(K m2)
	rcInsideCoeff   = 8.0     // W/(K m2)
	rcOutsideCoeff  = 1.5     // W/(K m2)
	rcPeoplePerArea = 0.05    // 1/m2
	rcPeopleHeat    = 120.0   // W per person
	rcLatentShare   = 0.4     // share of people heat released as latent heat
	rcMaxStep       = 60.0    // s
	rcStartTemp     = 293.15  // K
	rcOutdoorMean   = 283.15  // K
	rcOutdoorAmp    = 5.0     // K
	rcDay           = 86400.0 // s
	rcScheduleStep  = 3600.0  // s

	// RCOutdoorKey and RCOutdoorVariable identify the outdoor temperature output.
	RCOutdoorKey      = "Environment"
	RCOutdoorVariable = "Site Outdoor Air Drybulb Temperature"
	// RCOccupancy is the schedule that scales people heat in every zone.
	RCOccupancy = "Occupancy"
	// RCLightsComponent and RCLightsControl are the actuator component and control type of zone lighting.
	RCLightsComponent = "Lights"
	RCLightsControl   = "Electricity Rate"
)

type rcZone struct {
	name                      string
	vol, area, senFac         spawn.ValueRef
	temp, gainRad, lights     spawn.ValueRef
	radTemp, conSen, lat, peo spawn.ValueRef
	meanRadiant               spawn.ValueRef
	mass                      float64
}

type rcEngine struct {
	model    *ModelDescription
	zones    []*rcZone
	values   []float64
	settable []bool
	occ      spawn.ValueRef
	outdoor  spawn.ValueRef
	t        float64
}

func newRCZone(_ Image, opts url.Values) (Engine, error) {
	names := []string{rcDefaultZone}
	if z := opts.Get("zones"); z != "" {
		names = strings.Split(z, ",")
	}

	e := &rcEngine{model: &ModelDescription{Name: "rc-zone"}}
	add := func(name string, c Causality, unit string, start float64) spawn.ValueRef {
		ref := spawn.ValueRef(len(e.model.Variables))
		e.model.Variables = append(e.model.Variables, Variable{
			Name: name, ValueRef: ref, Causality: c, Unit: unit, Start: start,
		})
		return ref
	}

	e.occ = add(RCOccupancy, CausalityInput, "1", 0)
	e.outdoor = add(RCOutdoorKey+"_"+RCOutdoorVariable, CausalityOutput, "K", rcOutdoorMean)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("empty zone name in %q", opts.Get("zones"))
		}
		z := &rcZone{name: n, mass: rcStartTemp}
		z.vol = add(n+"_V", CausalityCalculated, "m3", rcFloorArea*rcHeight)
		z.area = add(n+"_AFlo", CausalityCalculated, "m2", rcFloorArea)
		z.senFac = add(n+"_mSenFac", CausalityCalculated, "1", 1)
		z.temp = add(n+"_T", CausalityInput, "K", rcStartTemp)
		z.gainRad = add(n+"_QGaiRad_flow", CausalityInput, "W", 0)
		z.lights = add(n+"_"+RCLightsComponent+"_"+RCLightsControl, CausalityInput, "W", 0)
		z.radTemp = add(n+"_TRad", CausalityOutput, "K", rcStartTemp)
		z.conSen = add(n+"_QConSen_flow", CausalityOutput, "W", 0)
		z.lat = add(n+"_QLat_flow", CausalityOutput, "W", 0)
		z.peo = add(n+"_QPeo_flow", CausalityOutput, "W", 0)
		z.meanRadiant = add(n+"_Zone Mean Radiant Temperature", CausalityOutput, "K", rcStartTemp)
		e.zones = append(e.zones, z)
	}
	if err := e.model.build(); err != nil {
		return nil, err
	}

	e.values = make([]float64, len(e.model.Variables))
	e.settable = make([]bool, len(e.model.Variables))
	for i, v := range e.model.Variables {
		e.values[i] = v.Start
		e.settable[i] = v.Causality == CausalityInput
	}
	return e, nil
}

func (e *rcEngine) Describe() *ModelDescription { return e.model }

func (e *rcEngine) Setup(_ context.Context, startTime float64) error {
	e.t = startTime
	return nil
}

func (e *rcEngine) ExitInitializationMode(context.Context) error  { return nil }
func (e *rcEngine) EnterEventMode(context.Context) error          { return nil }
func (e *rcEngine) EnterContinuousTimeMode(context.Context) error { return nil }

// NewDiscreteStates schedules an event at every full hour, when schedules change.
func (e *rcEngine) NewDiscreteStates(context.Context) (float64, bool, error) {
	return (math.Floor(e.t/rcScheduleStep) + 1) * rcScheduleStep, true, nil
}

func (e *rcEngine) SetTime(_ context.Context, t float64) error {
	if t < e.t {
		return fmt.Errorf("time moved backwards from %g to %g", e.t, t)
	}
	for e.t < t {
		dt := math.Min(rcMaxStep, t-e.t)
		e.step(dt)
		e.t += dt
	}
	return nil
}

func (e *rcEngine) SetReal(_ context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := checkLen(refs, vals); err != nil {
		return err
	}
	for i, ref := range refs {
		if int(ref) >= len(e.values) || !e.settable[ref] {
			return fmt.Errorf("value reference %d is not an input", ref)
		}
		e.values[ref] = vals[i]
	}
	return nil
}

func (e *rcEngine) GetReal(_ context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := checkLen(refs, vals); err != nil {
		return err
	}
	e.outputs()
	for i, ref := range refs {
		if int(ref) >= len(e.values) {
			return fmt.Errorf("unknown value reference %d", ref)
		}
		vals[i] = e.values[ref]
	}
	return nil
}

func (e *rcEngine) Close(context.Context) error { return nil }

func (e *rcEngine) outdoorTemp() float64 {
	return rcOutdoorMean + rcOutdoorAmp*math.Sin(2*math.Pi*e.t/rcDay)
}

func (e *rcEngine) peopleHeat(z *rcZone) float64 {
	return e.values[e.occ] * rcPeoplePerArea * e.values[z.area] * rcPeopleHeat
}

func (e *rcEngine) step(dt float64) {
	tOut := e.outdoorTemp()
	for _, z := range e.zones {
		area := e.values[z.area]
		gain := e.values[z.gainRad] + e.values[z.lights] + (1-rcLatentShare)*e.peopleHeat(z)
		flow := rcOutsideCoeff*area*(tOut-z.mass) + rcInsideCoeff*area*(e.values[z.temp]-z.mass) + gain
		z.mass += dt * flow / (rcCapacity * area)
	}
}

func (e *rcEngine) outputs() {
	e.values[e.outdoor] = e.outdoorTemp()
	for _, z := range e.zones {
		area := e.values[z.area]
		peo := e.peopleHeat(z)
		e.values[z.radTemp] = z.mass
		e.values[z.meanRadiant] = z.mass
		e.values[z.conSen] = rcInsideCoeff * area * (z.mass - e.values[z.temp])
		e.values[z.lat] = rcLatentShare * peo
		e.values[z.peo] = peo
	}
}
