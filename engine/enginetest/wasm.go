package enginetest

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/wippyai/spawn"
	"github.com/wippyai/spawn/engine"
)

const (
	// TimeRef is the cell the image stores the current time in.
	TimeRef spawn.ValueRef = 255
	// MirrorOffset maps a reference onto the cell of ref-MirrorOffset.
	MirrorOffset spawn.ValueRef = 256

	// ModelSection is the custom section holding the model description.
	ModelSection = "spawn-model"
)

// Mirror returns the reference that reads back the cell of ref.
func Mirror(ref spawn.ValueRef) spawn.ValueRef { return ref + MirrorOffset }

// Image configures an engine image.
type Image struct {
	Model *engine.ModelDescription

	// NextEvent is returned by spawn_next_event. Negative means no event.
	NextEvent float64

	// Fail names an export that returns a non-zero status.
	Fail string

	// OmitOptional leaves out every optional export.
	OmitOptional bool

	// OmitModel leaves out the model description section.
	OmitModel bool

	// BadGet gives spawn_get an i32 result.
	BadGet bool
}

// WebAssembly encoding constants.
const (
	secCustom   = 0
	secType     = 1
	secFunction = 3
	secMemory   = 5
	secExport   = 7
	secCode     = 10
	secData     = 11

	valI32 = 0x7f
	valF64 = 0x7c

	opEnd      = 0x0b
	opLocalGet = 0x20
	opF64Load  = 0x2b
	opF64Store = 0x39
	opI32Const = 0x41
	opF64Const = 0x44
	opI32And   = 0x71
	opI32Shl   = 0x74
)

type function struct {
	name   string
	params []byte
	result []byte
	body   []byte
}

// Build encodes the image as a core WebAssembly module.
func Build(img Image) []byte {
	funcs := []function{
		{name: "spawn_set_time", params: []byte{valF64}, result: []byte{valI32}, body: storeTime(img.status("spawn_set_time"))},
		{name: "spawn_set", params: []byte{valI32, valF64}, result: []byte{valI32}, body: setBody(img.status("spawn_set"))},
	}
	if img.BadGet {
		funcs = append(funcs, function{name: "spawn_get", params: []byte{valI32}, result: []byte{valI32},
			body: []byte{opLocalGet, 0, opEnd}})
	} else {
		funcs = append(funcs, function{name: "spawn_get", params: []byte{valI32}, result: []byte{valF64}, body: getBody()})
	}
	if !img.OmitOptional {
		funcs = append(funcs,
			function{name: "spawn_setup", params: []byte{valF64}, result: []byte{valI32}, body: storeTime(img.status("spawn_setup"))},
			function{name: "spawn_exit_init", result: []byte{valI32}, body: statusBody(img.status("spawn_exit_init"))},
			function{name: "spawn_enter_event", result: []byte{valI32}, body: statusBody(img.status("spawn_enter_event"))},
			function{name: "spawn_enter_continuous", result: []byte{valI32}, body: statusBody(img.status("spawn_enter_continuous"))},
			function{name: "spawn_next_event", result: []byte{valF64}, body: f64Body(img.NextEvent)},
		)
	}

	var types [][]byte
	typeIndex := func(params, results []byte) uint32 {
		t := append([]byte{0x60}, vec(len(params), params)...)
		t = append(t, vec(len(results), results)...)
		for i, existing := range types {
			if bytes.Equal(existing, t) {
				return uint32(i)
			}
		}
		types = append(types, t)
		return uint32(len(types) - 1)
	}
	var funcSec, exportSec, codeSec []byte
	for i, f := range funcs {
		funcSec = append(funcSec, uleb(uint64(typeIndex(f.params, f.result)))...)
		exportSec = append(exportSec, name(f.name)...)
		exportSec = append(exportSec, 0x00)
		exportSec = append(exportSec, uleb(uint64(i))...)
		code := append([]byte{0x00}, f.body...)
		codeSec = append(codeSec, uleb(uint64(len(code)))...)
		codeSec = append(codeSec, code...)
	}

	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	section(&out, secType, vec(len(types), bytes.Join(types, nil)))
	section(&out, secFunction, vec(len(funcs), funcSec))
	section(&out, secMemory, []byte{0x01, 0x00, 0x01})
	section(&out, secExport, vec(len(funcs), exportSec))
	section(&out, secCode, vec(len(funcs), codeSec))
	if data := img.data(); len(data) > 0 {
		section(&out, secData, data)
	}
	if !img.OmitModel && img.Model != nil {
		section(&out, secCustom, append(name(ModelSection), MustModelYAML(img.Model)...))
	}
	return out.Bytes()
}

// MustModelYAML encodes a model description or panics.
func MustModelYAML(md *engine.ModelDescription) []byte {
	data, err := md.Marshal()
	if err != nil {
		panic(err)
	}
	return data
}

func (img Image) status(export string) byte {
	if img.Fail == export {
		return 1
	}
	return 0
}

// data initializes the cell of every variable below MirrorOffset with its start value.
func (img Image) data() []byte {
	if img.Model == nil {
		return nil
	}
	var segs []byte
	n := 0
	for _, v := range img.Model.Variables {
		if v.ValueRef >= MirrorOffset || v.Start == 0 {
			continue
		}
		segs = append(segs, 0x00, opI32Const)
		segs = append(segs, sleb(int64(v.ValueRef)*8)...)
		segs = append(segs, opEnd)
		segs = append(segs, vec(8, f64(v.Start))...)
		n++
	}
	if n == 0 {
		return nil
	}
	return vec(n, segs)
}

func storeTime(status byte) []byte {
	b := []byte{opI32Const}
	b = append(b, sleb(int64(TimeRef)*8)...)
	return append(b, opLocalGet, 0, opF64Store, 3, 0, opI32Const, status, opEnd)
}

func setBody(status byte) []byte {
	b := []byte{opLocalGet, 0, opI32Const}
	b = append(b, sleb(0xff)...)
	return append(b, opI32And, opI32Const, 3, opI32Shl, opLocalGet, 1, opF64Store, 3, 0, opI32Const, status, opEnd)
}

func getBody() []byte {
	b := []byte{opLocalGet, 0, opI32Const}
	b = append(b, sleb(0xff)...)
	return append(b, opI32And, opI32Const, 3, opI32Shl, opF64Load, 3, 0, opEnd)
}

func statusBody(status byte) []byte {
	return []byte{opI32Const, status, opEnd}
}

func f64Body(v float64) []byte {
	return append(append([]byte{opF64Const}, f64(v)...), opEnd)
}

func section(out *bytes.Buffer, id byte, content []byte) {
	out.WriteByte(id)
	out.Write(uleb(uint64(len(content))))
	out.Write(content)
}

func vec(n int, content []byte) []byte {
	return append(uleb(uint64(n)), content...)
}

func name(s string) []byte {
	return vec(len(s), []byte(s))
}

func f64(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func uleb(v uint64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func sleb(v int64) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		b = append(b, c)
		if done {
			return b
		}
	}
}
