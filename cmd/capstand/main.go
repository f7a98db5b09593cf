// Command capstand runs the capstan daemon in the foreground. It is the
// supervisor-friendly twin of `capstan daemon`: same bootstrap, no CLI
// surface. systemd units and launchd plists point here.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"capstan/internal/config"
	"capstan/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	diagnostic := flag.Bool("diagnostic", false, "enable diagnostic mode with separate DEBUG logs")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:   level,
		Diagnostic: *diagnostic,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "capstand: %v\n", err)
		os.Exit(1)
	}
}
