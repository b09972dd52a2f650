// Package main provides the statecraft CLI: a one-shot invocation of the
// compiler/runtime against a local environment tree, without the
// daemon's REST/MCP control surfaces (§6 "Run invocation surface").
//
// Usage:
//
//	statecraft apply <agent-id> [environment]   Compile and execute the highstate
//	statecraft test <agent-id> [environment]    Dry-run the highstate
//	statecraft show-top                         Show parsed top-file data
//	statecraft show-highstate <agent-id> [env]  Show rendered, merged high data
//	statecraft show-lowstate <agent-id> [env]   Show the compiled, ordered chunk list
//	statecraft version                          Show version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattferris/statecraft/internal/config"
	"github.com/mattferris/statecraft/internal/engine"
	"github.com/mattferris/statecraft/internal/environment"
	"github.com/mattferris/statecraft/internal/seed"
	"github.com/mattferris/statecraft/pkg/doer"
	"github.com/mattferris/statecraft/pkg/top"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch cmd := args[0]; cmd {
	case "version", "-v", "--version":
		fmt.Printf("statecraft version %s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "apply":
		return cmdRun(args[1:], false)
	case "test":
		return cmdRun(args[1:], true)
	case "show-top":
		return cmdShowTop()
	case "show-highstate":
		return cmdShowHighstate(args[1:])
	case "show-lowstate":
		return cmdShowLowstate(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage() {
	fmt.Println(`statecraft - declarative state compiler and requisite-ordered runtime

Usage:
  statecraft apply <agent-id> [environment]
  statecraft test <agent-id> [environment]
  statecraft show-top
  statecraft show-highstate <agent-id> [environment]
  statecraft show-lowstate <agent-id> [environment]
  statecraft version

Configuration is read from the file named by STATECRAFT_CONFIG, defaulting to
~/.statecraftd/config.toml (the same file statecraftd uses).`)
}

func configPath() string {
	if p := os.Getenv("STATECRAFT_CONFIG"); p != "" {
		return p
	}
	return config.DefaultConfigPath()
}

func buildEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	roots := environment.Roots(cfg.Environments.Roots)
	mgr := environment.NewManager(roots)

	grains, err := seed.Load(cfg.Grains.File)
	if err != nil {
		return nil, nil, fmt.Errorf("load grains: %w", err)
	}
	pillar, err := seed.Load(cfg.Pillar.File)
	if err != nil {
		return nil, nil, fmt.Errorf("load pillar: %w", err)
	}

	registry := doer.NewRegistry()
	doer.RegisterBuiltins(registry)

	eng := engine.New(mgr, registry, grains, pillar)
	eng.Opts = engine.Options{
		AutoOrder:                   cfg.Compiler.AutoOrder,
		ExcludeBeforeDuplicateCheck: cfg.Compiler.ExcludeBeforeDuplicateCheck,
		TopFileMergingStrategy:      top.MergeStrategy(cfg.Compiler.TopFileMergingStrategy),
		DefaultTop:                  cfg.Compiler.DefaultTop,
		StateTopSaltenv:             cfg.Compiler.StateTopSaltenv,
		FailhardGlobal:              cfg.Compiler.FailhardGlobal,
		AggregateEnabled:            cfg.Compiler.AggregateEnabled,
		MaxConcurrency:              cfg.Compiler.MaxConcurrency,
		TopUnitName:                 cfg.Compiler.TopUnitName,
	}
	return eng, cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdRun(args []string, testMode bool) error {
	if len(args) == 0 {
		return fmt.Errorf("agent-id is required")
	}
	eng, cfg, err := buildEngine()
	if err != nil {
		return err
	}
	saltenv := cfg.Compiler.DefaultTop
	if len(args) > 1 {
		saltenv = args[1]
	}

	record, err := eng.Run(context.Background(), args[0], saltenv, testMode)
	if err != nil {
		return err
	}
	if err := printJSON(record); err != nil {
		return err
	}
	if !record.Succeeded() {
		os.Exit(1)
	}
	return nil
}

func cmdShowTop() error {
	eng, _, err := buildEngine()
	if err != nil {
		return err
	}
	data, err := eng.ShowTop()
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdShowHighstate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("agent-id is required")
	}
	eng, cfg, err := buildEngine()
	if err != nil {
		return err
	}
	saltenv := cfg.Compiler.DefaultTop
	if len(args) > 1 {
		saltenv = args[1]
	}
	units, err := eng.ShowHighstate(args[0], saltenv)
	if err != nil {
		return err
	}
	return printJSON(units)
}

func cmdShowLowstate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("agent-id is required")
	}
	eng, cfg, err := buildEngine()
	if err != nil {
		return err
	}
	saltenv := cfg.Compiler.DefaultTop
	if len(args) > 1 {
		saltenv = args[1]
	}
	ls, diags, err := eng.ShowLowstate(args[0], saltenv)
	if err != nil {
		return err
	}
	return printJSON(struct {
		Chunks      any `json:"chunks"`
		Diagnostics any `json:"diagnostics,omitempty"`
	}{Chunks: ls.Chunks, Diagnostics: diags})
}
