// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"zombiezen.com/go/log"
)

func newCacheCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "cache COMMAND",
		Short:                 "manage the bytecode cache",
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.AddCommand(
		newCachePruneCommand(g),
		newCacheStatsCommand(g),
	)
	return c
}

func newCachePruneCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "prune [options]",
		Short:                 "delete bytecode that has not been used recently",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	maxAge := c.Flags().Duration("older-than", 30*24*time.Hour, "delete entries unused for `duration`")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		if *maxAge < 0 {
			return errors.New("--older-than must not be negative")
		}
		return runCachePrune(cmd.Context(), g, time.Now().Add(-*maxAge))
	}
	return c
}

func runCachePrune(ctx context.Context, g *globalConfig, cutoff time.Time) error {
	cache, err := g.openCache()
	if err != nil {
		return err
	}
	if cache == nil {
		log.Infof(ctx, "Bytecode cache disabled; nothing to prune")
		return nil
	}
	defer closeCache(ctx, cache)

	n, err := cache.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Infof(ctx, "Deleted %s", plural(n, "entry", "entries"))
	return nil
}

func newCacheStatsCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "stats",
		Short:                 "show bytecode cache information",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return runCacheStats(cmd.Context(), g)
	}
	return c
}

func runCacheStats(ctx context.Context, g *globalConfig) error {
	cache, err := g.openCache()
	if err != nil {
		return err
	}
	if cache == nil {
		fmt.Println("Cache:   disabled")
		return nil
	}
	defer closeCache(ctx, cache)

	n, err := cache.Len(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Cache:   %s\nEntries: %d\n", g.CacheDB, n)
	return nil
}
