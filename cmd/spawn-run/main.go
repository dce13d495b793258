// Command spawn-run replays a YAML co-simulation scenario against building
// engines and reports the exchanged values.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/wippyai/spawn/engine"
)

type options struct {
	logLevel     string
	record       string
	plot         []string
	interactive  bool
	maxBuildings int
	memoryPages  uint32
	imageDir     string
	metricsAddr  string
	s3           engine.S3Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "spawn-run SCENARIO",
		Short: "Replay a co-simulation scenario against building engines",
		Long: `spawn-run allocates, instantiates and steps every zone, input variable and
output variable of a scenario file, the way an equation-based solver would.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "quiet", "verbosity: errors, warnings, quiet, medium or timestep (or 1..5)")
	pf.StringVar(&opts.imageDir, "image-dir", "", "directory for relative engine image paths")
	pf.Uint32Var(&opts.memoryPages, "memory-pages", 0, "memory limit per WASM engine in 64KiB pages (0 = runtime default)")
	pf.StringVar(&opts.s3.Region, "s3-region", "", "region for s3:// images")
	pf.StringVar(&opts.s3.Endpoint, "s3-endpoint", "", "custom S3 endpoint, such as a MinIO server")
	pf.BoolVar(&opts.s3.PathStyle, "s3-path-style", false, "use path-style S3 addressing")

	f := root.Flags()
	f.StringVar(&opts.record, "record", "", "record exchanged values to a SQLite path or postgres:// URL")
	f.StringSliceVar(&opts.plot, "plot", nil, "series to plot after the run, as instance.variable (repeatable)")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "step through the scenario in a terminal view")
	f.IntVar(&opts.maxBuildings, "max-buildings", 0, "limit the number of buildings (0 = no limit)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	root.AddCommand(newDescribeCmd(opts), newSeriesCmd())
	return root
}
