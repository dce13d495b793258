package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/spawn/scenario"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	unitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

// gate holds the runner between steps while the view is paused.
type gate struct {
	mu     sync.Mutex
	paused bool
	wake   chan struct{}
}

func newGate() *gate {
	return &gate{wake: make(chan struct{})}
}

func (g *gate) toggle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = !g.paused
	if !g.paused {
		g.release()
	}
	return g.paused
}

// step lets one step through while paused.
func (g *gate) step() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.release()
	}
}

func (g *gate) release() {
	close(g.wake)
	g.wake = make(chan struct{})
}

func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return nil
	}
	wake := g.wake
	g.mu.Unlock()
	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type keyMap struct {
	Pause key.Binding
	Step  key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Pause, k.Step, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Pause: key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p/space", "pause/resume")),
	Step:  key.NewBinding(key.WithKeys("s", "right"), key.WithHelp("s/→", "single step")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type stepMsg scenario.Step

type doneMsg struct {
	err error
}

type interactiveModel struct {
	sc       *scenario.Scenario
	cancel   context.CancelFunc
	gate     *gate
	plot     *plotter
	progress progress.Model
	help     help.Model
	step     scenario.Step
	steps    int
	width    int
	paused   bool
	done     bool
	err      error
}

func newInteractiveModel(sc *scenario.Scenario, cancel context.CancelFunc, g *gate, plot *plotter) *interactiveModel {
	return &interactiveModel{
		sc:       sc,
		cancel:   cancel,
		gate:     g,
		plot:     plot,
		progress: progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		width:    80,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancel()
			return m, tea.Quit
		case key.Matches(msg, keys.Pause):
			if !m.done {
				m.paused = m.gate.toggle()
			}
		case key.Matches(msg, keys.Step):
			m.gate.step()
		}

	case tea.WindowSizeMsg:
		m.width = min(msg.Width-4, 100)
		m.progress.Width = m.width
		m.help.Width = msg.Width

	case stepMsg:
		m.step = scenario.Step(msg)
		m.steps++
		m.plot.add(m.step)

	case doneMsg:
		m.done = true
		if !stderrors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}
	}
	return m, nil
}

func (m *interactiveModel) fraction() float64 {
	span := m.sc.Stop - m.sc.Start
	return min(max((m.step.Time-m.sc.Start)/span, 0), 1)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("spawn-run"))
	b.WriteString(" ")
	b.WriteString(m.sc.Name)
	b.WriteString("\n\n")
	b.WriteString(m.progress.ViewAs(m.fraction()))
	b.WriteString(fmt.Sprintf("\n\nt = %g s of %g s, step %d", m.step.Time, m.sc.Stop, m.steps))

	switch {
	case m.err != nil:
		b.WriteString("  ")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.done:
		b.WriteString("  ")
		b.WriteString(doneStyle.Render("done"))
	case m.paused:
		b.WriteString("  ")
		b.WriteString(pausedStyle.Render(" paused "))
	}
	b.WriteString("\n\n")
	b.WriteString(renderValues(m.step))

	if m.done {
		for _, n := range m.plot.names {
			if g := m.plot.graph(n, m.width); g != "" {
				b.WriteString("\n")
				b.WriteString(g)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func runInteractive(ctx context.Context, sc *scenario.Scenario, runner *scenario.Runner, plot *plotter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := newGate()
	p := tea.NewProgram(newInteractiveModel(sc, cancel, g, plot), tea.WithAltScreen())

	var runErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		runErr = runner.Run(ctx, func(s scenario.Step) error {
			p.Send(stepMsg(s))
			return g.wait(ctx)
		})
		p.Send(doneMsg{err: runErr})
	}()

	_, err := p.Run()
	cancel()
	<-finished
	if err != nil {
		return err
	}
	if runErr != nil && !stderrors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
