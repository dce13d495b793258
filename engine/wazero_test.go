package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/engine/enginetest"
)

func testModel() *engine.ModelDescription {
	return enginetest.Model("echo",
		engine.Variable{Name: "Core_ZN_V", ValueRef: 0, Causality: engine.CausalityCalculated, Unit: "m3", Start: 300},
		engine.Variable{Name: "Core_ZN_T", ValueRef: 1, Causality: engine.CausalityInput, Unit: "K", Start: 293.15},
		engine.Variable{Name: "Core_ZN_TRad", ValueRef: enginetest.Mirror(1), Causality: engine.CausalityOutput, Unit: "K"},
		engine.Variable{Name: "Time", ValueRef: enginetest.Mirror(enginetest.TimeRef), Causality: engine.CausalityOutput, Unit: "s"},
	)
}

func writeImage(t *testing.T, img enginetest.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.wasm")
	if err := os.WriteFile(path, enginetest.Build(img), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadImage(t *testing.T, img enginetest.Image) (engine.Engine, error) {
	t.Helper()
	ctx := context.Background()
	l := engine.NewWazeroLoader(ctx, nil)
	t.Cleanup(func() { _ = l.Close(ctx) })
	return l.Load(ctx, engine.Image{Path: writeImage(t, img)})
}

func TestWazeroLoader_SetGet(t *testing.T) {
	ctx := context.Background()
	e, err := loadImage(t, enginetest.Image{Model: testModel(), NextEvent: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer e.Close(ctx)

	if e.Describe().Name != "echo" {
		t.Errorf("model name = %q", e.Describe().Name)
	}

	vals := make([]float64, 2)
	if err := e.GetReal(ctx, []spawn.ValueRef{0, 1}, vals); err != nil {
		t.Fatalf("GetReal failed: %v", err)
	}
	if vals[0] != 300 || vals[1] != 293.15 {
		t.Errorf("start values = %v, want [300 293.15]", vals)
	}

	if err := e.SetReal(ctx, []spawn.ValueRef{1}, []float64{295}); err != nil {
		t.Fatalf("SetReal failed: %v", err)
	}
	out := make([]float64, 1)
	if err := e.GetReal(ctx, []spawn.ValueRef{enginetest.Mirror(1)}, out); err != nil {
		t.Fatalf("GetReal failed: %v", err)
	}
	if out[0] != 295 {
		t.Errorf("mirrored output = %v, want 295", out[0])
	}

	if err := e.SetReal(ctx, []spawn.ValueRef{1, 2}, []float64{1}); err == nil {
		t.Error("SetReal should reject mismatched lengths")
	}
}

func TestWazeroLoader_Time(t *testing.T) {
	ctx := context.Background()
	e, err := loadImage(t, enginetest.Image{Model: testModel(), NextEvent: 3600})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer e.Close(ctx)

	timeRef := []spawn.ValueRef{enginetest.Mirror(enginetest.TimeRef)}
	got := make([]float64, 1)

	if err := e.Setup(ctx, 60); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	_ = e.GetReal(ctx, timeRef, got)
	if got[0] != 60 {
		t.Errorf("time after Setup = %v, want 60", got[0])
	}

	for _, step := range []func(context.Context) error{e.ExitInitializationMode, e.EnterEventMode, e.EnterContinuousTimeMode} {
		if err := step(ctx); err != nil {
			t.Fatalf("mode change failed: %v", err)
		}
	}
	if err := e.SetTime(ctx, 120); err != nil {
		t.Fatalf("SetTime failed: %v", err)
	}
	_ = e.GetReal(ctx, timeRef, got)
	if got[0] != 120 {
		t.Errorf("time after SetTime = %v, want 120", got[0])
	}

	next, defined, err := e.NewDiscreteStates(ctx)
	if err != nil || !defined || next != 3600 {
		t.Errorf("NewDiscreteStates = %v, %v, %v", next, defined, err)
	}
}

func TestWazeroLoader_NoEvent(t *testing.T) {
	ctx := context.Background()
	for _, img := range []enginetest.Image{
		{Model: testModel(), NextEvent: -1},
		{Model: testModel(), OmitOptional: true},
	} {
		e, err := loadImage(t, img)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if err := e.Setup(ctx, 0); err != nil {
			t.Errorf("Setup failed: %v", err)
		}
		if _, defined, err := e.NewDiscreteStates(ctx); err != nil || defined {
			t.Errorf("NewDiscreteStates defined=%v err=%v, want no event", defined, err)
		}
		_ = e.Close(ctx)
	}
}

func TestWazeroLoader_Status(t *testing.T) {
	ctx := context.Background()
	e, err := loadImage(t, enginetest.Image{Model: testModel(), Fail: "spawn_set_time"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer e.Close(ctx)

	err = e.SetTime(ctx, 1)
	if err == nil || !strings.Contains(err.Error(), "status 1") {
		t.Errorf("SetTime error = %v, want status failure", err)
	}
}

func TestWazeroLoader_Sidecar(t *testing.T) {
	ctx := context.Background()
	path := writeImage(t, enginetest.Image{Model: testModel(), OmitModel: true})

	l := engine.NewWazeroLoader(ctx, nil)
	defer l.Close(ctx)

	if _, err := l.Load(ctx, engine.Image{Path: path}); err == nil || !strings.Contains(err.Error(), "sidecar") {
		t.Fatalf("Load without model error = %v, want sidecar hint", err)
	}

	sidecar := strings.TrimSuffix(path, ".wasm") + ".yaml"
	if err := os.WriteFile(sidecar, enginetest.MustModelYAML(testModel()), 0o600); err != nil {
		t.Fatal(err)
	}
	e, err := l.Load(ctx, engine.Image{Path: path})
	if err != nil {
		t.Fatalf("Load with sidecar failed: %v", err)
	}
	defer e.Close(ctx)
	if _, ok := e.Describe().Lookup("Core_ZN_TRad"); !ok {
		t.Error("sidecar model should be used")
	}
}

func TestWazeroLoader_Invalid(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		path     func(t *testing.T) string
		contains string
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.wasm") },
			contains: "fetch image",
		},
		{
			name: "not wasm",
			path: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "bad.wasm")
				_ = os.WriteFile(p, []byte("not wasm"), 0o600)
				return p
			},
			contains: "compile image",
		},
		{
			name: "wrong signature",
			path: func(t *testing.T) string {
				return writeImage(t, enginetest.Image{Model: testModel(), BadGet: true})
			},
			contains: "spawn_get",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := engine.NewWazeroLoader(ctx, &engine.Config{MemoryLimitPages: 16})
			defer l.Close(ctx)
			_, err := l.Load(ctx, engine.Image{Path: tt.path(t)})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}

func TestWazeroLoader_SharedRuntime(t *testing.T) {
	ctx := context.Background()
	path := writeImage(t, enginetest.Image{Model: testModel()})
	l := engine.NewWazeroLoader(ctx, nil)
	defer l.Close(ctx)

	a, err := l.Load(ctx, engine.Image{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Load(ctx, engine.Image{Path: path})
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	_ = a.SetReal(ctx, []spawn.ValueRef{1}, []float64{1})
	_ = b.SetReal(ctx, []spawn.ValueRef{1}, []float64{2})

	got := make([]float64, 1)
	_ = a.GetReal(ctx, []spawn.ValueRef{1}, got)
	if got[0] != 1 {
		t.Errorf("engines share state: got %v, want 1", got[0])
	}
}

func TestWazeroLoader_Accepts(t *testing.T) {
	l := engine.NewWazeroLoader(context.Background(), nil)
	defer l.Close(context.Background())
	if !l.Accepts("a.wasm") || !l.Accepts("s3://b/a.wasm") {
		t.Error("should accept image paths")
	}
	if l.Accepts("builtin:rc-zone") || l.Accepts("") {
		t.Error("should not accept builtin or empty paths")
	}
}
