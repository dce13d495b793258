package coupling

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/metrics"
	"github.com/wippyai/spawn/recorder"
)

// Recorder receives every exchanged value in caller units.
type Recorder interface {
	Record(ctx context.Context, samples ...recorder.Sample) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLoader sets the engine loader. The default loads builtin engines only.
func WithLoader(l engine.Loader) Option {
	return func(c *Coordinator) { c.loader = l }
}

// WithUnits sets the unit converter. The default is units.New().
func WithUnits(u spawn.UnitConverter) Option {
	return func(c *Coordinator) { c.units = u }
}

// WithLogger sets the logger. The default is the package Logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithMetrics enables Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRecorder records every exchanged value.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.rec = r }
}

// WithMaxBuildings limits the number of buildings; 0 means no limit.
func WithMaxBuildings(n int) Option {
	return func(c *Coordinator) { c.maxBuildings = n }
}
