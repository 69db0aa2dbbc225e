package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "linkaudit.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkaudit validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to the provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	fmt.Fprintf(stdout, "OK: direct timeout %v, relay timeout %v, batch size %d, %d relay endpoint(s)\n",
		cfg.DirectTimeout, cfg.RelayTimeout, cfg.BatchSize, len(cfg.RelayEndpoints))
	fmt.Fprintln(stdout, "Configuration valid.")
	return 0
}
