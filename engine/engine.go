package engine

import (
	"context"
	"strings"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/errors"
)

// Image describes the inputs used to produce a building's engine.
type Image struct {
	// IDF is the building model the engine was configured from.
	IDF string
	// Weather is the weather file the engine reads.
	Weather string
	// Path locates the engine image: a file path, an s3:// URL or builtin:<name>.
	Path string
	// Precompiled marks Path as supplied by the host rather than generated.
	Precompiled bool
}

// Engine is one running simulation engine instance.
type Engine interface {
	// Describe returns the model description of the loaded image.
	Describe() *ModelDescription

	// Setup configures the experiment start time and enters initialization mode.
	Setup(ctx context.Context, startTime float64) error

	ExitInitializationMode(ctx context.Context) error
	EnterEventMode(ctx context.Context) error
	EnterContinuousTimeMode(ctx context.Context) error

	// NewDiscreteStates runs an event iteration and reports the next event time.
	NewDiscreteStates(ctx context.Context) (next float64, defined bool, err error)

	SetTime(ctx context.Context, t float64) error
	SetReal(ctx context.Context, refs []spawn.ValueRef, vals []float64) error
	GetReal(ctx context.Context, refs []spawn.ValueRef, vals []float64) error

	Close(ctx context.Context) error
}

// Loader produces an engine from an image.
type Loader interface {
	Load(ctx context.Context, img Image) (Engine, error)
}

// Matcher is implemented by loaders that only handle some image paths.
type Matcher interface {
	Accepts(path string) bool
}

// Loaders routes an image to the first loader that accepts its path.
// A loader without Accepts matches everything.
type Loaders []Loader

// Load implements Loader.
func (ls Loaders) Load(ctx context.Context, img Image) (Engine, error) {
	for _, l := range ls {
		if m, ok := l.(Matcher); ok && !m.Accepts(img.Path) {
			continue
		}
		return l.Load(ctx, img)
	}
	return nil, errors.Load("no loader accepts image "+quote(img.Path), nil)
}

func checkLen(refs []spawn.ValueRef, vals []float64) error {
	if len(refs) != len(vals) {
		return errors.InvalidInput(errors.PhaseExchange, "value references and values differ in length")
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
