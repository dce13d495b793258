package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testModel = `
name: office
variables:
  - name: Core_ZN_V
    valueReference: 0
    causality: calculatedParameter
    unit: m3
    start: 300
  - name: Core_ZN_T
    valueReference: 1
    causality: input
    unit: K
  - name: Core_ZN_TRad
    valueReference: 2
    causality: output
    unit: K
  - name: Notes
    valueReference: 3
`

func TestParseModelDescription(t *testing.T) {
	md, err := ParseModelDescription([]byte(testModel))
	if err != nil {
		t.Fatalf("ParseModelDescription failed: %v", err)
	}
	if md.Name != "office" {
		t.Errorf("Name = %q, want office", md.Name)
	}
	if len(md.Variables) != 4 {
		t.Fatalf("len(Variables) = %d, want 4", len(md.Variables))
	}

	v, ok := md.Lookup("Core_ZN_V")
	if !ok {
		t.Fatal("Lookup(Core_ZN_V) failed")
	}
	if v.ValueRef != 0 || v.Unit != "m3" || v.Start != 300 || v.Causality != CausalityCalculated {
		t.Errorf("unexpected variable %+v", v)
	}
	if v, _ := md.Lookup("Notes"); v.Causality != CausalityLocal {
		t.Errorf("default causality = %q, want local", v.Causality)
	}
	if _, ok := md.Lookup("Core_ZN_X"); ok {
		t.Error("Lookup should fail for an unknown name")
	}
}

func TestParseModelDescription_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{"not yaml", "variables: [", "decode"},
		{"no name", "variables:\n  - valueReference: 1\n", "no name"},
		{"duplicate name", "variables:\n  - {name: a, valueReference: 1}\n  - {name: a, valueReference: 2}\n", "declared twice"},
		{"shared ref", "variables:\n  - {name: a, valueReference: 1}\n  - {name: b, valueReference: 1}\n", "share value reference"},
		{"reserved ref", "variables:\n  - {name: a, valueReference: 4294967295}\n", "reserved"},
		{"bad causality", "variables:\n  - {name: a, valueReference: 1, causality: state}\n", "unknown causality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelDescription([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}

func TestModelDescription_RoundTrip(t *testing.T) {
	md, err := ParseModelDescription([]byte(testModel))
	if err != nil {
		t.Fatal(err)
	}
	data, err := md.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	back, err := ReadModelDescription(path)
	if err != nil {
		t.Fatalf("ReadModelDescription failed: %v", err)
	}
	if v, ok := back.Lookup("Core_ZN_TRad"); !ok || v.ValueRef != 2 {
		t.Errorf("Lookup after round trip = %+v, %v", v, ok)
	}
}

func TestModelDescription_LookupWithoutParse(t *testing.T) {
	md := &ModelDescription{Variables: []Variable{{Name: "a", ValueRef: 7, Causality: CausalityInput}}}
	v, ok := md.Lookup("a")
	if !ok || v.ValueRef != 7 {
		t.Errorf("Lookup = %+v, %v", v, ok)
	}
}
