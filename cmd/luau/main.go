// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"luaugo.256lights.llc/pkg/internal/bytecodecache"
	"luaugo.256lights.llc/pkg/internal/luau"
	"zombiezen.com/go/bass/sigterm"
	"zombiezen.com/go/log"
)

func main() {
	rootCommand := &cobra.Command{
		Use:           "luau",
		Short:         "compile and run Luau code",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	g := defaultGlobalConfig()
	if err := g.mergeFiles(configFiles()); err != nil {
		initLogging(false)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
	if err := g.mergeEnvironment(); err != nil {
		initLogging(false)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}

	rootCommand.PersistentFlags().StringVar(&g.CacheDB, "cache", g.CacheDB, "`path` to bytecode cache database")
	rootCommand.PersistentFlags().BoolVar(&g.DisableCache, "no-cache", g.DisableCache, "do not use the bytecode cache")
	rootCommand.PersistentFlags().BoolVar(&g.Codegen, "codegen", g.Codegen, "compile loaded functions to native code when supported")
	rootCommand.PersistentFlags().BoolVar(&g.Debug, "debug", g.Debug, "show debugging output")

	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(g.Debug)
		return g.validate()
	}

	rootCommand.AddCommand(
		newCompileCommand(g),
		newRunCommand(g),
		newCheckCommand(g),
		newCacheCommand(g),
		newVersionCommand(g),
	)

	ignoreSIGPIPE()
	ctx, cancel := signal.NotifyContext(context.Background(), sigterm.Signals()...)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(g.Debug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

// configFiles returns the configuration file paths
// in increasing order of preference.
func configFiles() func(yield func(string) bool) {
	return func(yield func(string) bool) {
		for dir := range systemConfigDirs() {
			if !yield(filepath.Join(dir, "luaugo", "config.jwcc")) {
				return
			}
		}
	}
}

// openCache opens the bytecode cache,
// or returns nil if caching is disabled.
func (g *globalConfig) openCache() (*bytecodecache.Cache, error) {
	if g.DisableCache || g.CacheDB == "" {
		return nil, nil
	}
	return bytecodecache.Open(g.CacheDB)
}

// compile compiles source with the configured options,
// consulting and filling the bytecode cache when cache is not nil.
// The returned bytecode is owned by Go:
// the engine's buffer is released before compile returns.
func (g *globalConfig) compile(ctx context.Context, cache *bytecodecache.Cache, source []byte) ([]byte, error) {
	opts := g.compileOptions()
	key := bytecodecache.KeyFor(source, opts.String())
	if cache != nil {
		bytecode, found, err := cache.Get(ctx, key)
		if err != nil {
			log.Warnf(ctx, "%v", err)
		} else if found {
			return bytecode, nil
		}
	}

	bc, err := luau.Compile(string(source), opts)
	if err != nil {
		return nil, err
	}
	bytecode := append([]byte(nil), bc.Bytes()...)
	bc.Free()
	if err := luau.BytecodeError(bytecode); err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.Put(ctx, key, bytecode); err != nil {
			log.Warnf(ctx, "%v", err)
		}
	}
	return bytecode, nil
}

func closeCache(ctx context.Context, cache *bytecodecache.Cache) {
	if cache == nil {
		return
	}
	if err := cache.Close(); err != nil {
		log.Errorf(ctx, "%v", err)
	}
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "luau: ", log.StdFlags, nil),
		})
	})
}

func plural(n int, unit, unitPlural string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %s", n, unitPlural)
}
