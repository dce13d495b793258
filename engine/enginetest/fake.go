package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/engine"
)

// Engine is a recording in-process engine. Values are kept per reference;
// Compute, when set, runs before every GetReal.
type Engine struct {
	Model     *engine.ModelDescription
	Values    map[spawn.ValueRef]float64
	NextEvent float64
	HasEvent  bool
	Compute   func(e *Engine)

	// FailOn makes the named call return an error.
	FailOn string

	Calls  []string
	Time   float64
	Closed bool
}

// NewEngine returns an engine with every variable at its start value.
func NewEngine(md *engine.ModelDescription) *Engine {
	e := &Engine{Model: md, Values: make(map[spawn.ValueRef]float64)}
	for _, v := range md.Variables {
		e.Values[v.ValueRef] = v.Start
	}
	return e
}

func (e *Engine) record(call string) error {
	e.Calls = append(e.Calls, call)
	if e.FailOn == call {
		return fmt.Errorf("%s failed", call)
	}
	return nil
}

// Count returns how often call was made.
func (e *Engine) Count(call string) int {
	n := 0
	for _, c := range e.Calls {
		if c == call {
			n++
		}
	}
	return n
}

func (e *Engine) Describe() *engine.ModelDescription { return e.Model }

func (e *Engine) Setup(_ context.Context, startTime float64) error {
	e.Time = startTime
	return e.record("Setup")
}

func (e *Engine) ExitInitializationMode(context.Context) error {
	return e.record("ExitInitializationMode")
}

func (e *Engine) EnterEventMode(context.Context) error {
	return e.record("EnterEventMode")
}

func (e *Engine) EnterContinuousTimeMode(context.Context) error {
	return e.record("EnterContinuousTimeMode")
}

func (e *Engine) NewDiscreteStates(context.Context) (float64, bool, error) {
	return e.NextEvent, e.HasEvent, e.record("NewDiscreteStates")
}

func (e *Engine) SetTime(_ context.Context, t float64) error {
	e.Time = t
	return e.record("SetTime")
}

func (e *Engine) SetReal(_ context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := e.record("SetReal"); err != nil {
		return err
	}
	for i, r := range refs {
		e.Values[r] = vals[i]
	}
	return nil
}

func (e *Engine) GetReal(_ context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := e.record("GetReal"); err != nil {
		return err
	}
	if e.Compute != nil {
		e.Compute(e)
	}
	for i, r := range refs {
		vals[i] = e.Values[r]
	}
	return nil
}

func (e *Engine) Close(context.Context) error {
	e.Closed = true
	return e.record("Close")
}

// Loader hands out engines built by New and records every image it loads.
type Loader struct {
	New func(img engine.Image) (*Engine, error)

	mu      sync.Mutex
	Images  []engine.Image
	Engines []*Engine
}

// NewLoader returns a loader producing engines for md.
func NewLoader(md *engine.ModelDescription) *Loader {
	return &Loader{New: func(engine.Image) (*Engine, error) { return NewEngine(md), nil }}
}

// Load implements engine.Loader.
func (l *Loader) Load(_ context.Context, img engine.Image) (engine.Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Images = append(l.Images, img)
	e, err := l.New(img)
	if err != nil {
		return nil, err
	}
	l.Engines = append(l.Engines, e)
	return e, nil
}

// Loads returns the number of Load calls.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Images)
}

// Model builds a validated description from vars.
func Model(name string, vars ...engine.Variable) *engine.ModelDescription {
	md, err := engine.ParseModelDescription(MustModelYAML(&engine.ModelDescription{Name: name, Variables: vars}))
	if err != nil {
		panic(err)
	}
	return md
}
