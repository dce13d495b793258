package main

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/spawn/engine"
	"github.com/wippyai/spawn/scenario"
)

func newDescribeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "describe IMAGE",
		Short: "Print the model description of an engine image as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			loader, closeLoader, err := newLoader(ctx, args, opts)
			if err != nil {
				return err
			}
			defer func() { err = stderrors.Join(err, closeLoader(context.Background())) }()

			e, err := loader.Load(ctx, engine.Image{Path: args[0]})
			if err != nil {
				return err
			}
			defer func() { err = stderrors.Join(err, e.Close(context.Background())) }()

			data, err := e.Describe().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newSeriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "series SCENARIO",
		Short: "List the series a scenario produces, for use with --plot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			for _, s := range sc.Series() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}
