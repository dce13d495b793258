package coupling

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/building"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/engine/enginetest"
	"github.com/wippyai/spawn/errors"
	"github.com/wippyai/spawn/metrics"
	"github.com/wippyai/spawn/recorder"
	"github.com/wippyai/spawn/resource"
)

const (
	refV spawn.ValueRef = iota
	refAFlo
	refT
	refQGaiRad
	refTRad
	refQConSen
	refAtticV
	refAtticT
	refAtticTRad
	refOccupancy
	refLights
	refOutdoor
)

func officeModel() *engine.ModelDescription {
	v := func(name string, ref spawn.ValueRef, c engine.Causality, unit string, start float64) engine.Variable {
		return engine.Variable{Name: name, ValueRef: ref, Causality: c, Unit: unit, Start: start}
	}
	return enginetest.Model("office",
		v("Core_ZN_V", refV, engine.CausalityCalculated, "m3", 300),
		v("Core_ZN_AFlo", refAFlo, engine.CausalityCalculated, "m2", 100),
		v("Core_ZN_T", refT, engine.CausalityInput, "K", 293.15),
		v("Core_ZN_QGaiRad_flow", refQGaiRad, engine.CausalityInput, "W", 0),
		v("Core_ZN_TRad", refTRad, engine.CausalityOutput, "K", 293.15),
		v("Core_ZN_QConSen_flow", refQConSen, engine.CausalityOutput, "W", 0),
		v("Attic_V", refAtticV, engine.CausalityCalculated, "m3", 50),
		v("Attic_T", refAtticT, engine.CausalityInput, "K", 293.15),
		v("Attic_TRad", refAtticTRad, engine.CausalityOutput, "K", 293.15),
		v("Occupancy", refOccupancy, engine.CausalityInput, "1", 0),
		v("Core_ZN_Lights_Electricity Rate", refLights, engine.CausalityInput, "W", 0),
		v("Environment_Site Outdoor Air Drybulb Temperature", refOutdoor, engine.CausalityOutput, "K", 283.15),
	)
}

// officeCompute derives the outputs from the inputs.
func officeCompute(e *enginetest.Engine) {
	e.Values[refTRad] = e.Values[refT] + 0.5*e.Values[refQGaiRad]
	e.Values[refQConSen] = 10 * (e.Values[refT] - 293.15)
	e.Values[refAtticTRad] = e.Values[refAtticT]
}

func officeLoader(nextEvent float64) *enginetest.Loader {
	return &enginetest.Loader{New: func(engine.Image) (*enginetest.Engine, error) {
		e := enginetest.NewEngine(officeModel())
		e.Compute = officeCompute
		if nextEvent > 0 {
			e.NextEvent, e.HasEvent = nextEvent, true
		}
		return e, nil
	}}
}

func office(bldg string) BuildingSpec {
	return BuildingSpec{Building: bldg, Image: engine.Image{Path: "office.wasm"}}
}

func coreZone(instance string) ZoneSpec {
	return ZoneSpec{
		BuildingSpec:   office("B1"),
		Instance:       instance,
		ZoneName:       "Core_ZN",
		KeyValues:      `{"name": "Core_ZN"}`,
		ParameterNames: []string{"V", "AFlo"},
		ParameterUnits: []string{"m3", "m2"},
		InputNames:     []string{"T", "QGaiRad_flow"},
		InputUnits:     []string{"degC", "W"},
		OutputNames:    []string{"TRad", "QConSen_flow"},
		OutputUnits:    []string{"degC", "W"},
	}
}

func atticZone(instance string) ZoneSpec {
	return ZoneSpec{
		BuildingSpec:   office("B1"),
		Instance:       instance,
		ZoneName:       "Attic",
		ParameterNames: []string{"V"},
		ParameterUnits: []string{"m3"},
		InputNames:     []string{"T"},
		InputUnits:     []string{"K"},
		OutputNames:    []string{"TRad"},
		OutputUnits:    []string{"K"},
	}
}

func outdoor(instance string) OutputSpec {
	return OutputSpec{
		BuildingSpec: office("B1"),
		Instance:     instance,
		Variable:     "Site Outdoor Air Drybulb Temperature",
		Key:          "Environment",
	}
}

func occupancy(instance string) InputSpec {
	return InputSpec{BuildingSpec: office("B1"), Instance: instance, Type: building.Schedule, Name: "Occupancy", Unit: "1"}
}

func TestAllocate_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))

	h1, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	h2, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	zones, _, _ := c.Building("B1").Counts()
	assert.Equal(t, 1, zones)
	assert.Equal(t, 1, c.Handles())

	i1, err := c.AllocateInputVariable(ctx, occupancy("I1"))
	require.NoError(t, err)
	i2, err := c.AllocateInputVariable(ctx, occupancy("I1"))
	require.NoError(t, err)
	assert.Equal(t, i1, i2)

	o1, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)
	o2, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)
	assert.Equal(t, o1, o2)
	ov, _ := c.Building("B1").FindOutput(building.OutputKey{Variable: "Site Outdoor Air Drybulb Temperature", Key: "Environment"})
	assert.Equal(t, 1, ov.ShareCount())

	_, err = c.AllocateInputVariable(ctx, InputSpec{BuildingSpec: office("B1"), Instance: "Z1", Type: building.Schedule, Name: "Occupancy"})
	assert.ErrorIs(t, err, errors.ErrConfiguration, "instance already allocated as a zone")
}

func TestAllocate_Validation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		mutate   func(*ZoneSpec)
		contains string
	}{
		{"parameter units", func(s *ZoneSpec) { s.ParameterUnits = s.ParameterUnits[:1] }, "parameter names and units, obtained 2 and 1"},
		{"input units", func(s *ZoneSpec) { s.InputUnits = nil }, "input names and units"},
		{"output units", func(s *ZoneSpec) { s.OutputUnits = append(s.OutputUnits, "W") }, "output names and units"},
		{"k", func(s *ZoneSpec) {
			s.Derivatives = DerivativeSpec{Structure: []int{1, 2, 1}, K: 3, N: 1, Delta: []float64{0.1}, NDer: 1}
		}, "k = 3"},
		{"n", func(s *ZoneSpec) {
			s.Derivatives = DerivativeSpec{Structure: []int{1, 2}, K: 2, N: 1, Delta: []float64{0.1, 0.1}, NDer: 2}
		}, "n = 1, nDer = 2"},
		{"index", func(s *ZoneSpec) {
			s.Derivatives = DerivativeSpec{Structure: []int{3, 1}, K: 2, N: 1, Delta: []float64{0.1}, NDer: 1}
		}, "output 3"},
		{"building", func(s *ZoneSpec) { s.Building = "" }, "building name"},
		{"instance", func(s *ZoneSpec) { s.Instance = "" }, "instance name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithLoader(officeLoader(0)))
			spec := coreZone("Z1")
			tt.mutate(&spec)
			_, err := c.AllocateZone(ctx, spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Zero(t, c.Handles())
		})
	}
}

func TestAllocate_InputValidation(t *testing.T) {
	ctx := context.Background()
	c := New()
	_, err := c.AllocateInputVariable(ctx, InputSpec{BuildingSpec: office("B1"), Instance: "I1", Type: 7, Name: "x"})
	assert.ErrorIs(t, err, errors.ErrConfiguration)
	_, err = c.AllocateInputVariable(ctx, InputSpec{BuildingSpec: office("B1"), Instance: "I1", Type: building.Actuator, Name: "Core_ZN"})
	assert.ErrorContains(t, err, "control type")
	_, err = c.AllocateInputVariable(ctx, InputSpec{BuildingSpec: office("B1"), Instance: "I1", Type: building.Schedule})
	assert.ErrorContains(t, err, "no name")
	_, err = c.AllocateOutputVariable(ctx, OutputSpec{BuildingSpec: office("B1"), Instance: "O1"})
	assert.ErrorContains(t, err, "no name")
}

func TestAllocate_DuplicateZone(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))
	_, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)

	_, err = c.AllocateZone(ctx, coreZone("Z2"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
	for _, s := range []string{"Z1", "Z2", "B1"} {
		assert.Contains(t, err.Error(), s)
	}

	other := coreZone("Z3")
	other.Building = "B2"
	_, err = c.AllocateZone(ctx, other)
	require.NoError(t, err, "same zone in another building")
}

func TestAllocate_ImageMismatch(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))
	_, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)

	attic := atticZone("Z2")
	attic.Image = engine.Image{Path: "other.wasm", Precompiled: true}
	_, err = c.AllocateZone(ctx, attic)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
	assert.Contains(t, err.Error(), "other.wasm")
	assert.Contains(t, err.Error(), "office.wasm")

	attic.Image = engine.Image{Path: "other.wasm"}
	_, err = c.AllocateZone(ctx, attic)
	assert.NoError(t, err, "only precompiled images are compared")
}

func TestAllocate_MaxBuildings(t *testing.T) {
	ctx := context.Background()
	c := New(WithMaxBuildings(1))
	_, err := c.AllocateInputVariable(ctx, occupancy("I1"))
	require.NoError(t, err)

	spec := occupancy("I2")
	spec.Building = "B2"
	_, err = c.AllocateInputVariable(ctx, spec)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAllocation)
	assert.Equal(t, 1, c.Buildings())
}

func TestOutputVariable_Sharing(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))

	h1, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)
	h2, err := c.AllocateOutputVariable(ctx, outdoor("O2"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	b := c.Building("B1")
	key := building.OutputKey{Variable: "Site Outdoor Air Drybulb Temperature", Key: "Environment"}
	ov, ok := b.FindOutput(key)
	require.True(t, ok)
	assert.Equal(t, 2, ov.ShareCount())
	_, _, outputs := b.Counts()
	assert.Equal(t, 1, outputs)

	require.NoError(t, c.InstantiateOutputVariable(ctx, h1, 0))
	require.NoError(t, c.InstantiateOutputVariable(ctx, h2, 0))
	y1, _, err := c.ExchangeOutputVariable(ctx, h1, true, 0, 0)
	require.NoError(t, err)
	y2, _, err := c.ExchangeOutputVariable(ctx, h2, true, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 283.15, y1)
	assert.Equal(t, y1, y2)

	require.NoError(t, c.FreeOutputVariable(ctx, h1))
	assert.Equal(t, 1, ov.ShareCount())
	_, ok = b.FindOutput(key)
	assert.True(t, ok)
	_, _, err = c.ExchangeOutputVariable(ctx, h2, false, 0, 60)
	require.NoError(t, err, "remaining caller keeps working")

	require.NoError(t, c.FreeOutputVariable(ctx, h2))
	_, ok = b.FindOutput(key)
	assert.False(t, ok)
	assert.Zero(t, c.Handles())

	require.NoError(t, c.FreeOutputVariable(ctx, h2), "stale handle is a no-op")
	require.NoError(t, c.FreeOutputVariable(ctx, 999))
}

func TestInstantiate_LazyLoad(t *testing.T) {
	ctx := context.Background()
	loader := officeLoader(0)
	c := New(WithLoader(loader))

	z1, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	z2, err := c.AllocateZone(ctx, atticZone("Z2"))
	require.NoError(t, err)
	i1, err := c.AllocateInputVariable(ctx, occupancy("I1"))
	require.NoError(t, err)
	o1, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)
	assert.Zero(t, loader.Loads(), "allocate never loads")

	require.NoError(t, c.InstantiateOutputVariable(ctx, o1, 0))
	require.NoError(t, c.InstantiateInputVariable(ctx, i1, 0))
	_, err = c.InstantiateZone(ctx, z1, 0)
	require.NoError(t, err)
	_, err = c.InstantiateZone(ctx, z2, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, loader.Loads())
	assert.Equal(t, building.ModeInitializing, c.Building("B1").Mode())

	other := outdoor("O2")
	other.Building = "B2"
	o2, err := c.AllocateOutputVariable(ctx, other)
	require.NoError(t, err)
	require.NoError(t, c.InstantiateOutputVariable(ctx, o2, 0))
	assert.Equal(t, 2, loader.Loads(), "one engine per building")
}

func TestInstantiateZone_Parameters(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))
	spec := coreZone("Z1")
	spec.ParameterUnits = []string{"L", "m2"}
	h, err := c.AllocateZone(ctx, spec)
	require.NoError(t, err)

	par, err := c.InstantiateZone(ctx, h, 0)
	require.NoError(t, err)
	require.Len(t, par, 2)
	assert.InDelta(t, 300000, par[0], 1e-6)
	assert.Equal(t, 100.0, par[1])

	again, err := c.InstantiateZone(ctx, h, 0)
	require.NoError(t, err)
	assert.Equal(t, par, again)
}

func TestInstantiate_UnresolvedReference(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))
	z1, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	_, err = c.InstantiateZone(ctx, z1, 0)
	require.NoError(t, err)

	z2, err := c.AllocateZone(ctx, atticZone("Z2"))
	require.NoError(t, err)
	_, err = c.InstantiateZone(ctx, z2, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnresolvedReference)
	assert.Contains(t, err.Error(), "Z2")
	assert.Contains(t, err.Error(), "AvoidDoubleComputation")
}

func TestInstantiate_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown handle", func(t *testing.T) {
		_, err := New().InstantiateZone(ctx, 42, 0)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("wrong kind", func(t *testing.T) {
		c := New(WithLoader(officeLoader(0)))
		h, err := c.AllocateInputVariable(ctx, occupancy("I1"))
		require.NoError(t, err)
		_, err = c.InstantiateZone(ctx, h, 0)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("unknown engine variable", func(t *testing.T) {
		c := New(WithLoader(officeLoader(0)))
		spec := coreZone("Z1")
		spec.ZoneName = "Basement"
		spec.KeyValues = ""
		h, err := c.AllocateZone(ctx, spec)
		require.NoError(t, err)
		_, err = c.InstantiateZone(ctx, h, 0)
		assert.ErrorIs(t, err, errors.ErrNotFound)
		assert.Contains(t, err.Error(), "Basement_V")
		assert.Equal(t, building.EngineAbsent, c.Building("B1").EngineState())
	})
}

func TestExchange_NotInstantiated(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))
	z, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	i, err := c.AllocateInputVariable(ctx, occupancy("I1"))
	require.NoError(t, err)
	o, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)

	_, err = c.ExchangeZone(ctx, z, true, []float64{20, 0}, 0)
	assert.ErrorIs(t, err, errors.ErrNotInstantiated)
	_, err = c.ExchangeInputVariable(ctx, i, true, 1, 0)
	assert.ErrorIs(t, err, errors.ErrNotInstantiated)
	_, _, err = c.ExchangeOutputVariable(ctx, o, true, 0, 0)
	assert.ErrorIs(t, err, errors.ErrNotInstantiated)
}

func TestExchange_Lifecycle(t *testing.T) {
	ctx := context.Background()
	loader := officeLoader(3600)
	c := New(WithLoader(loader))

	z, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	i, err := c.AllocateInputVariable(ctx, occupancy("I1"))
	require.NoError(t, err)
	o, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)

	_, err = c.InstantiateZone(ctx, z, 0)
	require.NoError(t, err)
	require.NoError(t, c.InstantiateInputVariable(ctx, i, 0))
	require.NoError(t, c.InstantiateOutputVariable(ctx, o, 0))
	b := c.Building("B1")

	res, err := c.ExchangeZone(ctx, z, true, []float64{21, 0}, 0)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	assert.InDelta(t, 21, res.Outputs[0], 1e-9)
	assert.InDelta(t, 10, res.Outputs[1], 1e-9)
	assert.Empty(t, res.Derivatives)

	u, err := c.ExchangeInputVariable(ctx, i, true, 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, u)
	assert.Equal(t, building.ModeInitializing, b.Mode(), "output variable still pending")

	y, tNext, err := c.ExchangeOutputVariable(ctx, o, true, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 283.15, y)
	assert.Equal(t, 3600.0, tNext)
	assert.Equal(t, building.ModeEvent, b.Mode())

	e := loader.Engines[0]
	assert.Equal(t, 0.5, e.Values[refOccupancy])
	assert.Zero(t, e.Count("SetTime"))

	_, err = c.ExchangeZone(ctx, z, false, []float64{22, 0}, 60)
	require.NoError(t, err)
	assert.Equal(t, building.ModeContinuousTime, b.Mode())
	assert.Equal(t, 60.0, e.Time)
	assert.Equal(t, 1, e.Count("SetTime"))

	_, err = c.ExchangeInputVariable(ctx, i, false, 1, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count("SetTime"), "same time does not advance")

	_, err = c.ExchangeZone(ctx, z, false, []float64{22}, 120)
	assert.ErrorContains(t, err, "expected 2 inputs, obtained 1")

	_, err = c.ExchangeZone(ctx, z, false, []float64{22, 0}, 30)
	assert.ErrorContains(t, err, "backwards")
}

func TestExchange_OutputWithoutEvents(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))
	o, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)
	require.NoError(t, c.InstantiateOutputVariable(ctx, o, 0))

	_, tNext, err := c.ExchangeOutputVariable(ctx, o, true, 0, 0)
	require.NoError(t, err)
	assert.True(t, math.IsInf(tNext, 1))
}

func TestExchangeZone_Derivatives(t *testing.T) {
	ctx := context.Background()
	loader := officeLoader(0)
	c := New(WithLoader(loader))
	spec := coreZone("Z1")
	spec.Derivatives = DerivativeSpec{Structure: []int{1, 2}, K: 2, N: 1, Delta: []float64{0.1}, NDer: 1}
	h, err := c.AllocateZone(ctx, spec)
	require.NoError(t, err)

	z := c.Building("B1").Zones()[0]
	require.Equal(t, 1, z.Derivatives.Len())
	assert.Equal(t, 0, z.Derivatives.Entries[0].Output)
	assert.Equal(t, 1, z.Derivatives.Entries[0].Input)
	assert.Zero(t, z.Derivatives.Entries[0].Value)

	_, err = c.InstantiateZone(ctx, h, 0)
	require.NoError(t, err)

	res, err := c.ExchangeZone(ctx, h, true, []float64{20, 100}, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, res.Derivatives, "no derivatives during initialization")

	res, err = c.ExchangeZone(ctx, h, false, []float64{20, 100}, 60)
	require.NoError(t, err)
	require.Len(t, res.Derivatives, 1)
	assert.InDelta(t, 0.5, res.Derivatives[0], 1e-6)
	assert.InDelta(t, 70, res.Outputs[0], 1e-9)

	e := loader.Engines[0]
	assert.Equal(t, 100.0, e.Values[refQGaiRad], "perturbed input restored")
}

func TestFree(t *testing.T) {
	ctx := context.Background()
	c := New(WithLoader(officeLoader(0)))
	z, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	i, err := c.AllocateInputVariable(ctx, occupancy("I1"))
	require.NoError(t, err)

	require.NoError(t, c.FreeZone(ctx, i), "wrong kind is ignored")
	assert.Equal(t, 2, c.Handles())

	require.NoError(t, c.FreeZone(ctx, z))
	require.NoError(t, c.FreeInputVariable(ctx, i))
	zones, inputs, _ := c.Building("B1").Counts()
	assert.Zero(t, zones)
	assert.Zero(t, inputs)
	assert.Equal(t, 1, c.Buildings(), "buildings outlive their objects")

	require.NoError(t, c.FreeZone(ctx, z))

	z2, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	assert.NotEqual(t, z, z2, "handles are not reused")
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	loader := officeLoader(0)
	c := New(WithLoader(loader))
	h, err := c.AllocateOutputVariable(ctx, outdoor("O1"))
	require.NoError(t, err)
	require.NoError(t, c.InstantiateOutputVariable(ctx, h, 0))

	require.NoError(t, c.Close(ctx))
	assert.True(t, loader.Engines[0].Closed)
}

type memRecorder struct {
	mu      sync.Mutex
	samples []recorder.Sample
}

func (r *memRecorder) Record(_ context.Context, samples ...recorder.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, samples...)
	return nil
}

func TestRecorderAndMetrics(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	m := metrics.New(nil)
	c := New(WithLoader(officeLoader(0)), WithRecorder(rec), WithMetrics(m))

	z, err := c.AllocateZone(ctx, coreZone("Z1"))
	require.NoError(t, err)
	_, err = c.InstantiateZone(ctx, z, 0)
	require.NoError(t, err)
	_, err = c.ExchangeZone(ctx, z, true, []float64{20, 0}, 0)
	require.NoError(t, err)

	require.Len(t, rec.samples, 4)
	assert.Equal(t, recorder.Sample{Time: 0, Building: "B1", Instance: "Z1", Variable: "Core_ZN_T", Unit: "degC", Direction: recorder.In, Value: 20}, rec.samples[0])
	assert.Equal(t, recorder.Out, rec.samples[2].Direction)
	assert.Equal(t, "Core_ZN_TRad", rec.samples[2].Variable)

	_, err = c.AllocateZone(ctx, coreZone("Z2"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Allocations.WithLabelValues("zone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exchanges.WithLabelValues("zone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineLoads))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Buildings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveHandles.WithLabelValues("zone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("allocate", "configuration")))

	require.NoError(t, c.FreeZone(ctx, z))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveHandles.WithLabelValues("zone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frees.WithLabelValues("zone")))
}

func TestBuiltinEngine(t *testing.T) {
	ctx := context.Background()
	c := New()
	spec := coreZone("Z1")
	spec.Image = engine.Image{Path: "builtin:rc-zone"}
	h, err := c.AllocateZone(ctx, spec)
	require.NoError(t, err)
	act, err := c.AllocateInputVariable(ctx, InputSpec{
		BuildingSpec:  spec.BuildingSpec,
		Instance:      "Lights",
		Type:          building.Actuator,
		Name:          "Core_ZN",
		ComponentType: "Lights",
		ControlType:   "Electricity Rate",
		Unit:          "kW",
	})
	require.NoError(t, err)

	par, err := c.InstantiateZone(ctx, h, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{300, 100}, par)
	require.NoError(t, c.InstantiateInputVariable(ctx, act, 0))

	_, err = c.ExchangeZone(ctx, h, true, []float64{20, 0}, 0)
	require.NoError(t, err)
	_, err = c.ExchangeInputVariable(ctx, act, true, 1, 0)
	require.NoError(t, err)

	b := c.Building("B1")
	got := []float64{0}
	ref, _ := b.Engine().Describe().Lookup("Core_ZN_Lights_Electricity Rate")
	require.NoError(t, b.Get(ctx, []spawn.ValueRef{ref.ValueRef}, got))
	assert.Equal(t, 1000.0, got[0], "kW converted to W")
}

var _ resource.Observer = (*metrics.Metrics)(nil)
