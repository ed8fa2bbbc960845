// Command xide runs the companion file service (serve) or an interactive
// client of the file-system layer (shell).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/choraleia/xide/pkg/config"
	"github.com/choraleia/xide/pkg/db"
	"github.com/choraleia/xide/pkg/service"
	"github.com/choraleia/xide/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "Config file (default: ~/.xide/config.yaml)")
	backend := flag.String("backend", "", "Force the shell backend: local or remote")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	utils.InitLogger(utils.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger := utils.GetLogger()
	logger.Debug("Loaded config", "path", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "serve":
		err = runServe(ctx, cfg)
	case "shell":
		if *backend != "" {
			cfg.Client.BackendOverride = *backend
			if err = cfg.Validate(); err != nil {
				break
			}
		}
		err = runShell(ctx, cfg, os.Stdin, os.Stdout)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("Command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.AppConfig, string, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, path, err
	}
	if _, err := config.EnsureDefaultConfig(); err != nil {
		utils.GetLogger().Warn("Could not write default config", "error", err)
	}
	return config.Load()
}

func runServe(ctx context.Context, cfg *config.AppConfig) error {
	logger := utils.GetLogger()

	reg, err := service.NewFSRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	gdb, err := db.Open(dbPath)
	if err != nil {
		// Recents are optional; the file service still works without them.
		logger.Warn("Recent store unavailable", "path", dbPath, "error", err)
		gdb = nil
	}

	return NewServer(cfg, reg, gdb).Start(ctx)
}

func printUsage() {
	fmt.Println(`xide - file-system layer and companion file service

Usage: xide [flags] <command>

Flags:
  -config <file>     Config file (default: ~/.xide/config.yaml)
  -backend <name>    Shell backend: local or remote (default: detected)

Commands:
  serve              Run the companion file service
  shell              Open an interactive file-system shell
  help               Show this help message

Examples:
  xide serve
  XIDE_PORT=9000 xide serve
  xide -backend remote shell`)
}
