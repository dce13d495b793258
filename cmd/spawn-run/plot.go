package main

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"

	"github.com/wippyai/spawn/scenario"
)

// plotter collects the trajectories of selected series.
type plotter struct {
	names []string
	data  map[string][]float64
}

func newPlotter(names []string) *plotter {
	return &plotter{names: names, data: make(map[string][]float64)}
}

func (p *plotter) add(s scenario.Step) {
	for _, n := range p.names {
		if v, ok := s.Lookup(n); ok {
			p.data[n] = append(p.data[n], v)
		}
	}
}

func (p *plotter) graph(name string, width int) string {
	data := p.data[name]
	if len(data) < 2 {
		return ""
	}
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(width),
		asciigraph.Caption(name),
	)
}

func (p *plotter) render(w io.Writer, width int) {
	for _, n := range p.names {
		if g := p.graph(n, width); g != "" {
			fmt.Fprintf(w, "\n%s\n", g)
		}
	}
}
