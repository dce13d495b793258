package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/spawn/coupling"
	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/metrics"
	"github.com/wippyai/spawn/recorder"
	"github.com/wippyai/spawn/report"
	"github.com/wippyai/spawn/scenario"
)

func newLogger(level string, interactive bool) (*zap.Logger, error) {
	if interactive {
		return zap.NewNop(), nil
	}
	l, err := report.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return report.NewLogger(l)
}

func run(ctx context.Context, out io.Writer, path string, opts *options) (err error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if err := checkSeries(sc, opts.plot); err != nil {
		return err
	}
	if opts.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("--interactive needs a terminal on stdout")
	}

	log, err := newLogger(opts.logLevel, opts.interactive)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	coupling.SetLogger(log)
	engine.SetLogger(log)

	images := make([]string, len(sc.Buildings))
	for i, b := range sc.Buildings {
		images[i] = b.Image
	}
	loader, closeLoader, err := newLoader(ctx, images, opts)
	if err != nil {
		return err
	}
	defer func() { err = stderrors.Join(err, closeLoader(context.Background())) }()

	reg := prometheus.NewRegistry()
	copts := []coupling.Option{
		coupling.WithLoader(loader),
		coupling.WithLogger(log),
		coupling.WithMetrics(metrics.New(reg)),
		coupling.WithMaxBuildings(opts.maxBuildings),
	}
	if opts.record != "" {
		rec, rerr := recorder.Open(ctx, opts.record, runName(sc))
		if rerr != nil {
			return rerr
		}
		defer func() { err = stderrors.Join(err, rec.Close()) }()
		copts = append(copts, coupling.WithRecorder(rec))
		log.Info("recording", zap.String("location", opts.record), zap.String("run", rec.Run()))
	}
	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr, reg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	coord := coupling.New(copts...)
	defer func() { err = stderrors.Join(err, coord.Close(context.Background())) }()
	runner := scenario.NewRunner(sc, coord, log)

	if opts.interactive {
		return runInteractive(ctx, sc, runner, newPlotter(opts.plot))
	}

	plot := newPlotter(opts.plot)
	var last scenario.Step
	steps := 0
	err = runner.Run(ctx, func(s scenario.Step) error {
		plot.add(s)
		last = s
		steps++
		return nil
	})
	if err != nil {
		return err
	}
	printSummary(out, sc, last, steps)
	plot.render(out, 80)
	return nil
}

func runName(sc *scenario.Scenario) string {
	name := sc.Name
	if name == "" {
		name = "run"
	}
	return name + "-" + time.Now().UTC().Format("20060102T150405")
}

func checkSeries(sc *scenario.Scenario, names []string) error {
	known := sc.Series()
	for _, n := range names {
		i := sort.SearchStrings(known, n)
		if i == len(known) || known[i] != n {
			return fmt.Errorf("unknown series %q; available: %v", n, known)
		}
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printSummary(w io.Writer, sc *scenario.Scenario, last scenario.Step, steps int) {
	fmt.Fprintf(w, "%s %s: %d steps, t = %g s\n\n", titleStyle.Render("spawn-run"), sc.Name, steps, last.Time)
	fmt.Fprint(w, renderValues(last))
}

func renderValues(s scenario.Step) string {
	width := 0
	for _, v := range s.Values {
		width = max(width, lipgloss.Width(v.Series))
	}
	var out string
	for _, v := range s.Values {
		out += fmt.Sprintf("  %-*s %s %s\n", width, v.Series, valueStyle.Render(fmt.Sprintf("%12.4f", v.Value)), unitStyle.Render(v.Unit))
	}
	return out
}
