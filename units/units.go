// Package units converts real values between caller and engine units.
//
// Every unit is an affine map onto the SI unit of its quantity:
// si = value*Scale + Offset. Two units convert only when they measure the
// same quantity.
package units

import (
	"fmt"
	"sync"
)

// Unit is one entry of the conversion table.
type Unit struct {
	Symbol   string
	Quantity string
	Scale    float64
	Offset   float64
}

// Table is a unit conversion service. It implements spawn.UnitConverter.
type Table struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// New returns a table holding the units building models exchange.
func New() *Table {
	t := &Table{units: make(map[string]Unit)}
	for _, u := range defaults {
		t.units[u.Symbol] = u
	}
	return t
}

// Register adds or replaces a unit.
func (t *Table) Register(u Unit) error {
	if u.Symbol == "" || u.Quantity == "" {
		return fmt.Errorf("unit needs a symbol and a quantity")
	}
	if u.Scale == 0 {
		return fmt.Errorf("unit %q has zero scale", u.Symbol)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units[u.Symbol] = u
	return nil
}

// Lookup returns the unit registered under symbol.
func (t *Table) Lookup(symbol string) (Unit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.units[symbol]
	return u, ok
}

// Convert maps value from unit from to unit to. Empty or equal units are the
// identity.
func (t *Table) Convert(value float64, from, to string) (float64, error) {
	if from == to || from == "" || to == "" {
		return value, nil
	}
	f, ok := t.Lookup(from)
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", from)
	}
	g, ok := t.Lookup(to)
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", to)
	}
	if f.Quantity != g.Quantity {
		return 0, fmt.Errorf("cannot convert %s (%s) to %s (%s)", from, f.Quantity, to, g.Quantity)
	}
	return (value*f.Scale + f.Offset - g.Offset) / g.Scale, nil
}

// ToEngine converts a caller value into the engine unit.
func (t *Table) ToEngine(value float64, callerUnit, engineUnit string) (float64, error) {
	return t.Convert(value, callerUnit, engineUnit)
}

// FromEngine converts an engine value into the caller unit.
func (t *Table) FromEngine(value float64, engineUnit, callerUnit string) (float64, error) {
	return t.Convert(value, engineUnit, callerUnit)
}

var defaults = []Unit{
	{"K", "temperature", 1, 0},
	{"degC", "temperature", 1, 273.15},
	{"degF", "temperature", 5.0 / 9.0, 273.15 - 32*5.0/9.0},

	{"W", "power", 1, 0},
	{"kW", "power", 1e3, 0},
	{"MW", "power", 1e6, 0},
	{"Btu/h", "power", 0.29307107, 0},

	{"J", "energy", 1, 0},
	{"kJ", "energy", 1e3, 0},
	{"kWh", "energy", 3.6e6, 0},

	{"m", "length", 1, 0},
	{"ft", "length", 0.3048, 0},
	{"m2", "area", 1, 0},
	{"ft2", "area", 0.09290304, 0},
	{"m3", "volume", 1, 0},
	{"ft3", "volume", 0.028316846592, 0},
	{"L", "volume", 1e-3, 0},

	{"s", "time", 1, 0},
	{"min", "time", 60, 0},
	{"h", "time", 3600, 0},
	{"d", "time", 86400, 0},

	{"Pa", "pressure", 1, 0},
	{"kPa", "pressure", 1e3, 0},
	{"bar", "pressure", 1e5, 0},

	{"kg/s", "mass_flow", 1, 0},
	{"kg/h", "mass_flow", 1.0 / 3600, 0},

	{"W/m2", "irradiance", 1, 0},
	{"m3/s", "volume_flow", 1, 0},
	{"L/s", "volume_flow", 1e-3, 0},
	{"kg/kg", "mass_fraction", 1, 0},
	{"g/kg", "mass_fraction", 1e-3, 0},

	{"1", "ratio", 1, 0},
	{"%", "ratio", 0.01, 0},
}
