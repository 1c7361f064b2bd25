package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gagyebu/internal/cli"
	applog "gagyebu/internal/log"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cli.LoadEnvFile()
	// Logs go to stderr so command output stays pipeable.
	logger := cli.SetupLogger(applog.ComponentCLI, os.Stderr)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	be := cli.InitBackend(ctx, logger, cfg, nil)
	defer be.Cleanup()

	a := &app{
		store:           be.Store,
		markers:         be.Markers,
		out:             os.Stdout,
		defaultStartDay: cfg.DefaultMonthStartDay,
		now:             time.Now,
	}
	if err := cmd.run(ctx, a, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("Command failed", "command", name, "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("gagyebu - household budget CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  gagyebu <command> [options]")
	fmt.Println("\nCommands:")
	for _, name := range commandOrder {
		fmt.Printf("  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'gagyebu <command> -h' for more information on a command.")
}
