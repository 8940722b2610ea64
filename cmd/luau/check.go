// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"luaugo.256lights.llc/pkg/internal/harness"
)

type checkOptions struct {
	runs        int
	parallelism int
}

func newCheckCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "check [options]",
		Short:                 "verify that the linked engine works",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(checkOptions)
	c.Flags().IntVarP(&opts.runs, "runs", "n", 1, "`number` of fresh engine instances to check")
	c.Flags().IntVarP(&opts.parallelism, "jobs", "j", runtime.NumCPU(), "run up to `n` checks in parallel")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), g, opts)
	}
	return c
}

func runCheck(ctx context.Context, g *globalConfig, opts *checkOptions) error {
	report, err := harness.Check(ctx, opts.runs, opts.parallelism, &harness.RunOptions{
		Interpreted: !g.Codegen,
	})
	if err != nil {
		return err
	}
	mode := "interpreted"
	if report.Run.Native {
		mode = "native"
	}
	fmt.Printf("%s: %s (%s): %s(%d, %d) = %d\n",
		plural(report.Runs, "run", "runs"),
		report.Run.Version,
		mode,
		harness.SumChunkName,
		harness.SumA,
		harness.SumB,
		report.Run.Sum,
	)
	fmt.Printf("error propagation: status %d: %s\n", report.Error.Status, report.Error.Message)
	return nil
}
