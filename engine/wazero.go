package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/errors"
)

// Config holds configuration for a WazeroLoader.
type Config struct {
	// MemoryLimitPages sets the maximum memory per engine instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// Source fetches image bytes. Nil reads local files only.
	Source Source
}

// WazeroLoader loads WebAssembly engine images with a shared wazero runtime.
type WazeroLoader struct {
	runtime wazero.Runtime
	source  Source
}

// NewWazeroLoader creates a loader with its own wazero runtime.
func NewWazeroLoader(ctx context.Context, cfg *Config) *WazeroLoader {
	runtimeCfg := wazero.NewRuntimeConfig().WithCustomSections(true)
	var source Source = Sources{}
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Source != nil {
			source = cfg.Source
		}
	}
	return &WazeroLoader{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		source:  source,
	}
}

// Accepts reports whether path names an image rather than a builtin engine.
func (l *WazeroLoader) Accepts(path string) bool {
	return path != "" && !strings.HasPrefix(path, builtinScheme)
}

// Load implements Loader.
func (l *WazeroLoader) Load(ctx context.Context, img Image) (Engine, error) {
	log := Logger().With(zap.String("image", img.Path))

	data, err := l.source.Fetch(ctx, img.Path)
	if err != nil {
		return nil, errors.Load("fetch image "+quote(img.Path), err)
	}
	compiled, err := l.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Load("compile image "+quote(img.Path), err)
	}
	if err := checkExports(compiled.ExportedFunctions()); err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Load("image "+quote(img.Path)+" does not implement the engine interface", err)
	}

	md, err := l.describe(ctx, img.Path, compiled)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Load("model description of "+quote(img.Path), err)
	}

	mod, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Load("instantiate image "+quote(img.Path), err)
	}

	log.Debug("engine image loaded",
		zap.String("model", md.Name),
		zap.Int("variables", len(md.Variables)),
		zap.Int("bytes", len(data)))

	return &WazeroEngine{
		compiled: compiled,
		module:   mod,
		model:    md,
	}, nil
}

func (l *WazeroLoader) describe(ctx context.Context, path string, compiled wazero.CompiledModule) (*ModelDescription, error) {
	for _, s := range compiled.CustomSections() {
		if s.Name() == modelSection {
			return ParseModelDescription(s.Data())
		}
	}
	data, err := l.source.Fetch(ctx, sidecarPath(path))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no %q section and no sidecar %s", modelSection, sidecarPath(path))
		}
		return nil, err
	}
	return ParseModelDescription(data)
}

// Close releases the runtime and every engine loaded from it.
func (l *WazeroLoader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// WazeroEngine is an engine backed by an instantiated WebAssembly module.
type WazeroEngine struct {
	compiled wazero.CompiledModule
	module   api.Module
	model    *ModelDescription
}

// Describe implements Engine.
func (e *WazeroEngine) Describe() *ModelDescription { return e.model }

// Setup implements Engine.
func (e *WazeroEngine) Setup(ctx context.Context, startTime float64) error {
	return e.status(ctx, exportSetup, api.EncodeF64(startTime))
}

// ExitInitializationMode implements Engine.
func (e *WazeroEngine) ExitInitializationMode(ctx context.Context) error {
	return e.status(ctx, exportExitInit)
}

// EnterEventMode implements Engine.
func (e *WazeroEngine) EnterEventMode(ctx context.Context) error {
	return e.status(ctx, exportEnterEvent)
}

// EnterContinuousTimeMode implements Engine.
func (e *WazeroEngine) EnterContinuousTimeMode(ctx context.Context) error {
	return e.status(ctx, exportEnterContinuous)
}

// NewDiscreteStates implements Engine.
func (e *WazeroEngine) NewDiscreteStates(ctx context.Context) (float64, bool, error) {
	fn := e.module.ExportedFunction(exportNextEvent)
	if fn == nil {
		return 0, false, nil
	}
	res, err := fn.Call(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", exportNextEvent, err)
	}
	next := api.DecodeF64(res[0])
	if next < 0 {
		return 0, false, nil
	}
	return next, true, nil
}

// SetTime implements Engine.
func (e *WazeroEngine) SetTime(ctx context.Context, t float64) error {
	return e.status(ctx, exportSetTime, api.EncodeF64(t))
}

// SetReal implements Engine.
func (e *WazeroEngine) SetReal(ctx context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := checkLen(refs, vals); err != nil {
		return err
	}
	for i, ref := range refs {
		if err := e.status(ctx, exportSet, api.EncodeU32(uint32(ref)), api.EncodeF64(vals[i])); err != nil {
			return err
		}
	}
	return nil
}

// GetReal implements Engine.
func (e *WazeroEngine) GetReal(ctx context.Context, refs []spawn.ValueRef, vals []float64) error {
	if err := checkLen(refs, vals); err != nil {
		return err
	}
	fn := e.module.ExportedFunction(exportGet)
	for i, ref := range refs {
		res, err := fn.Call(ctx, api.EncodeU32(uint32(ref)))
		if err != nil {
			return fmt.Errorf("%s(%d): %w", exportGet, ref, err)
		}
		vals[i] = api.DecodeF64(res[0])
	}
	return nil
}

// Close implements Engine.
func (e *WazeroEngine) Close(ctx context.Context) error {
	err := e.module.Close(ctx)
	if cerr := e.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// status calls an export returning a status code. Missing optional exports
// are treated as success.
func (e *WazeroEngine) status(ctx context.Context, name string, params ...uint64) error {
	fn := e.module.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if code := api.DecodeI32(res[0]); code != statusOK {
		return fmt.Errorf("%s returned status %d", name, code)
	}
	return nil
}
