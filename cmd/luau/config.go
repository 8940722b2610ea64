// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/tailscale/hujson"
	"luaugo.256lights.llc/pkg/internal/luau"
)

type globalConfig struct {
	Debug             bool     `json:"debug"`
	CacheDB           string   `json:"cacheDB"`
	DisableCache      bool     `json:"disableCache"`
	Codegen           bool     `json:"codegen"`
	OptimizationLevel int      `json:"optimizationLevel"`
	DebugLevel        int      `json:"debugLevel"`
	MutableGlobals    []string `json:"mutableGlobals"`
}

// defaultGlobalConfig returns the configuration used
// in the absence of configuration files, environment variables, or flags.
func defaultGlobalConfig() *globalConfig {
	g := &globalConfig{
		Codegen:           true,
		OptimizationLevel: 1,
		DebugLevel:        1,
	}
	if cd := cacheDir(); cd != "" {
		g.CacheDB = filepath.Join(cd, "luaugo", "bytecode.db")
	}
	return g
}

func (g *globalConfig) mergeEnvironment() error {
	if path := os.Getenv("LUAUGO_CACHE"); path != "" {
		g.CacheDB = path
	}

	if s := os.Getenv("LUAUGO_CODEGEN"); s != "" {
		codegen, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("LUAUGO_CODEGEN: %v", err)
		}
		g.Codegen = codegen
	}

	return nil
}

func (g *globalConfig) mergeFiles(paths iter.Seq[string]) error {
	for path := range paths {
		huJSONData, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		jsonData, err := hujson.Standardize(huJSONData)
		if err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
		if err := jsonv2.Unmarshal(jsonData, g, jsonv2.RejectUnknownMembers(false)); err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
	}

	return nil
}

// UnmarshalJSONFrom unmarshals the configuration object from the JSON decoder,
// merging any fields in the JSON object with existing values.
func (g *globalConfig) UnmarshalJSONFrom(in *jsontext.Decoder) error {
	tok, err := in.ReadToken()
	if err != nil {
		return err
	}
	if got := tok.Kind(); got != '{' {
		return fmt.Errorf("config must be an object not a %v", got)
	}

	for {
		keyToken, err := in.ReadToken()
		if err != nil {
			return err
		}
		switch kind := keyToken.Kind(); kind {
		case '}':
			return nil
		case '"':
			// Keep going.
		default:
			return fmt.Errorf("unexpected non-string key (%v) in object", kind)
		}

		switch k := keyToken.String(); k {
		case "debug":
			if err := jsonv2.UnmarshalDecode(in, &g.Debug); err != nil {
				return fmt.Errorf("unmarshal config.debug: %w", err)
			}
		case "cacheDB":
			if err := jsonv2.UnmarshalDecode(in, &g.CacheDB); err != nil {
				return fmt.Errorf("unmarshal config.cacheDB: %w", err)
			}
		case "disableCache":
			if err := jsonv2.UnmarshalDecode(in, &g.DisableCache); err != nil {
				return fmt.Errorf("unmarshal config.disableCache: %w", err)
			}
		case "codegen":
			if err := jsonv2.UnmarshalDecode(in, &g.Codegen); err != nil {
				return fmt.Errorf("unmarshal config.codegen: %w", err)
			}
		case "optimizationLevel":
			if err := jsonv2.UnmarshalDecode(in, &g.OptimizationLevel); err != nil {
				return fmt.Errorf("unmarshal config.optimizationLevel: %w", err)
			}
		case "debugLevel":
			if err := jsonv2.UnmarshalDecode(in, &g.DebugLevel); err != nil {
				return fmt.Errorf("unmarshal config.debugLevel: %w", err)
			}
		case "mutableGlobals":
			// Use any unused capacity at end of the slice.
			newGlobals := g.MutableGlobals[len(g.MutableGlobals):]

			if err := jsonv2.UnmarshalDecode(in, &newGlobals); err != nil {
				return fmt.Errorf("unmarshal config.mutableGlobals: %w", err)
			}
			g.MutableGlobals = append(g.MutableGlobals, newGlobals...)
		default:
			if reject, _ := jsonv2.GetOption(in.Options(), jsonv2.RejectUnknownMembers); reject {
				return fmt.Errorf("unmarshal config: unknown field %q", k)
			}
			if err := in.SkipValue(); err != nil {
				return err
			}
		}
	}
}

func (g *globalConfig) validate() error {
	if g.OptimizationLevel < 0 || g.OptimizationLevel > 2 {
		return fmt.Errorf("optimization level %d out of range [0, 2]", g.OptimizationLevel)
	}
	if g.DebugLevel < 0 || g.DebugLevel > 2 {
		return fmt.Errorf("debug level %d out of range [0, 2]", g.DebugLevel)
	}
	if !g.DisableCache && g.CacheDB == "" {
		return fmt.Errorf("cache database not set (use --no-cache to run without one)")
	}
	return nil
}

func (g *globalConfig) compileOptions() *luau.CompileOptions {
	return &luau.CompileOptions{
		OptimizationLevel: g.OptimizationLevel,
		DebugLevel:        g.DebugLevel,
		MutableGlobals:    g.MutableGlobals,
	}
}
