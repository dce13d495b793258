package scenario

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/spawn/coupling"
	"github.com/wippyai/spawn/errors"
)

func runOffice(t *testing.T, mutate func(*Scenario)) ([]Step, *coupling.Coordinator, error) {
	t.Helper()
	sc, err := Parse([]byte(officeYAML))
	require.NoError(t, err)
	if mutate != nil {
		mutate(sc)
	}
	coord := coupling.New()
	t.Cleanup(func() { _ = coord.Close(context.Background()) })

	var steps []Step
	err = NewRunner(sc, coord, nil).Run(context.Background(), func(s Step) error {
		steps = append(steps, s)
		return nil
	})
	return steps, coord, err
}

func times(steps []Step) []float64 {
	ts := make([]float64, len(steps))
	for i, s := range steps {
		ts[i] = s.Time
	}
	return ts
}

func TestRunner_Run(t *testing.T) {
	steps, coord, err := runOffice(t, nil)
	require.NoError(t, err)

	require.Len(t, steps, 13)
	assert.True(t, steps[0].Initial)
	assert.False(t, steps[1].Initial)
	assert.Equal(t, 7200.0, steps[12].Time)

	first, last := steps[0], steps[12]
	v, ok := first.Lookup("office.core.TRad")
	require.True(t, ok)
	assert.InDelta(t, 20, v, 1e-9)
	end, _ := last.Lookup("office.core.TRad")
	assert.Greater(t, end, v)

	v, _ = first.Lookup("office.outdoor.Site Outdoor Air Drybulb Temperature")
	assert.InDelta(t, 283.15, v, 1e-9)

	v, _ = last.Lookup("office.lights.Core_ZN")
	assert.Equal(t, 0.5, v)

	d, ok := last.Lookup("office.core.der(QConSen_flow,T)")
	require.True(t, ok)
	assert.InDelta(t, -800, d, 1e-6)

	assert.Zero(t, coord.Handles(), "run frees every handle")
	assert.Equal(t, 1, coord.Buildings())
}

func TestRunner_StopsAtEvents(t *testing.T) {
	steps, _, err := runOffice(t, func(sc *Scenario) { sc.Step = 2500 })
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2500, 3600, 6100, 7200}, times(steps))
}

func TestRunner_ObserverError(t *testing.T) {
	sc, err := Parse([]byte(officeYAML))
	require.NoError(t, err)
	coord := coupling.New()
	defer coord.Close(context.Background())

	stop := stderrors.New("stop")
	n := 0
	err = NewRunner(sc, coord, nil).Run(context.Background(), func(Step) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
	assert.Zero(t, coord.Handles())
}

func TestRunner_AllocationError(t *testing.T) {
	_, coord, err := runOffice(t, func(sc *Scenario) {
		b := &sc.Buildings[0]
		dup := b.Zones[0]
		dup.Instance = "office.core2"
		b.Zones = append(b.Zones, dup)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
	assert.Contains(t, err.Error(), "office.core2")
	assert.Zero(t, coord.Handles(), "handles of the first zone are released")
}

func TestRunner_Cancelled(t *testing.T) {
	sc, err := Parse([]byte(officeYAML))
	require.NoError(t, err)
	coord := coupling.New()
	defer coord.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	err = NewRunner(sc, coord, nil).Run(ctx, func(s Step) error {
		if !s.Initial {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, coord.Handles())
}
