package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/storage"
)

// runHistory handles the history subcommand
func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file (defaults apply when omitted)")
	pageURL := fs.String("page", "", "Limit to audits of one page (optional)")
	limit := fs.Int("limit", 20, "Maximum number of runs to list")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkaudit history [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doHistory(*configFile, *pageURL, *limit, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doHistory lists stored runs and writes output to the provided writers.
// Returns exit code (0 = success, 1 = error).
func doHistory(configPath, pageURL string, limit int, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr)
	log.SetLevel(logrus.WarnLevel)

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	cfg.Validate()

	store, err := storage.NewBadgerStore(cfg.StateDir, logrus.NewEntry(log))
	if err != nil {
		fmt.Fprintf(stderr, "Error opening history database: %v\n", err)
		return 1
	}
	defer store.Close()

	runs, err := store.ListRuns(pageURL, limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error listing runs: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No audit runs found.")
		return 0
	}

	fmt.Fprintf(stdout, "%-36s  %-19s  %7s  %7s  %6s  %s\n", "RUN ID", "STARTED", "TOTAL", "WORKING", "BROKEN", "PAGE")
	for _, run := range runs {
		fmt.Fprintf(stdout, "%-36s  %-19s  %7d  %7d  %6d  %s\n",
			run.RunID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.TotalLinks,
			run.WorkingLinks,
			run.BrokenLinks,
			run.PageURL)
	}
	return 0
}
