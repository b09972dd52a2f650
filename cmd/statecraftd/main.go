// Package main provides the entry point for statecraftd.
//
// statecraftd is a standalone daemon hosting:
//   - a REST API for compiling and running highstates
//   - an MCP server for AI-assistant-driven compile/apply/test
//
// Usage:
//
//	statecraftd                    Start the daemon (default)
//	statecraftd serve              Start the daemon
//	statecraftd version            Show version
//	statecraftd status             Show daemon status
//	statecraftd stop                Stop the running daemon
//	statecraftd mcp                Start MCP server (stdio mode)
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattferris/statecraft/internal/api"
	"github.com/mattferris/statecraft/internal/config"
	"github.com/mattferris/statecraft/internal/engine"
	"github.com/mattferris/statecraft/internal/environment"
	"github.com/mattferris/statecraft/internal/logger"
	"github.com/mattferris/statecraft/internal/mcpapi"
	"github.com/mattferris/statecraft/internal/seed"
	"github.com/mattferris/statecraft/internal/service"
	"github.com/mattferris/statecraft/pkg/doer"
	"github.com/mattferris/statecraft/pkg/state"
	"github.com/mattferris/statecraft/pkg/top"
)

// version is set via -ldflags at build time.
var version = "dev"

var configPath string

func main() {
	api.SetVersion(version)

	args := os.Args[1:]
	command := ""
	cmdArgs := []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
		} else if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
		} else if strings.HasPrefix(arg, "-") {
			// ignore unknown flags
		} else if command == "" {
			command = arg
		} else {
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if command == "" {
		command = "serve"
	}

	var err error
	switch command {
	case "serve", "start":
		err = cmdServe(cmdArgs)
	case "version", "-v", "--version":
		cmdVersion()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "mcp", "mcp-server":
		err = cmdMCP()
	case "init-config":
		err = cmdInitConfig()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`statecraftd - declarative state compiler and requisite-ordered runtime daemon

Usage:
  statecraftd [flags] [command] [args]

Commands:
  serve         Start the daemon (default)
  version       Show version information
  status        Show daemon status
  stop          Stop the running daemon
  mcp           Start MCP server (stdio mode for AI-assistant integration)
  init-config   Create example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.statecraftd/config.toml)

Environment:
  STATECRAFT_CONFIG    Path to configuration file (alternative to --config)
  STATECRAFT_DATA_DIR  Override data directory

Examples:
  statecraftd                          Start the daemon with defaults
  statecraftd --config /path/to.toml   Start with custom config
  statecraftd mcp                      Start MCP server
  statecraftd init-config              Create example config file
  curl localhost:8420/health           Check daemon health`)
}

func cmdVersion() {
	fmt.Printf("statecraftd version %s\n", version)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("STATECRAFT_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("STATECRAFT_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildEngine wires a Manager, seeded grains/pillar, the builtin doer
// registry, and a fresh Engine from cfg.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	roots := environment.Roots(cfg.Environments.Roots)
	mgr := environment.NewManager(roots)

	grains, err := seed.Load(cfg.Grains.File)
	if err != nil {
		return nil, fmt.Errorf("load grains: %w", err)
	}
	pillar, err := seed.Load(cfg.Pillar.File)
	if err != nil {
		return nil, fmt.Errorf("load pillar: %w", err)
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
	if len(cfg.Compiler.AggregateModules) > 0 {
		eng.Opts.AggregateModules = make(map[string]bool, len(cfg.Compiler.AggregateModules))
		for _, m := range cfg.Compiler.AggregateModules {
			eng.Opts.AggregateModules[m] = true
		}
	}

	return eng, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logger.SetupLogger(cfg)
	defer logger.Stop()

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	watcher, err := environment.NewWatcher(eng.Loader, 0)
	if err == nil {
		if err := watcher.Start(); err == nil {
			defer watcher.Stop()
		}
	}

	apiServer := api.NewServer(cfg, eng)
	daemon := service.NewDaemon(cfg)
	daemon.OnShutdown(func() {
		runs := eng.Runs.List()
		if len(runs) == 0 {
			return
		}
		last, ok := eng.Runs.Get(runs[0])
		if !ok || last.Record == nil {
			return
		}
		fmt.Printf("statecraftd: %d run(s) recorded; last run %s finished at %s (%s)\n",
			len(runs), last.Record.ID, last.Record.Finished.Format("15:04:05"), summarizeRun(last.Record))
	})

	if err := daemon.Start(apiServer.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("statecraftd v%s started on %s\n", version, cfg.Address())
	fmt.Printf("API: http://%s/health\n", cfg.Address())

	daemon.Wait()
	return nil
}

// summarizeRun renders a one-line ok/fail/skipped tally for a shutdown
// log line, e.g. "3 ok, 1 fail, 0 skipped".
func summarizeRun(r *state.RunRecord) string {
	var ok, fail, skipped int
	for _, res := range r.Results {
		switch res.Status {
		case state.StatusOK, state.StatusPending:
			ok++
		case state.StatusFail:
			fail++
		case state.StatusSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("%d ok, %d fail, %d skipped", ok, fail, skipped)
}

func cmdStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if running {
		fmt.Printf("statecraftd: running (PID %d)\n", pid)
		fmt.Printf("Address: %s\n", cfg.Address())
		fmt.Printf("Config: %s\n", getConfigPath())
		fmt.Printf("Data: %s\n", cfg.Service.DataDir)
	} else {
		fmt.Println("statecraftd: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("statecraftd is not running")
		return nil
	}

	fmt.Printf("Stopping statecraftd (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}
	fmt.Println("statecraftd stopped")
	return nil
}

func cmdMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	mcpServer := mcpapi.NewServer(eng)
	return mcpServer.ServeStdio()
}

func cmdInitConfig() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := config.WriteExampleConfig(path); err != nil {
		return err
	}
	fmt.Printf("Created example configuration: %s\n", path)
	return nil
}
