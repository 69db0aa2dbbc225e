package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/orchestrate"
	"github.com/rgolusuTR/linkaudit/pkg/storage"
	"github.com/rgolusuTR/linkaudit/pkg/watch"
)

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file (defaults apply when omitted)")
	interval := fs.String("interval", "24h", "Re-audit interval (examples: 30m, 1h, 24h, 7d)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")
	saveHistory := fs.Bool("save-history", false, "Persist each run to the local history database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkaudit watch [options] <page-url> [<page-url>...]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  linkaudit watch -interval 1h https://example.com/docs/
  linkaudit watch -interval 7d -save-history https://example.com/ https://example.com/blog/
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one page URL is required")
		fs.Usage()
		os.Exit(1)
	}

	exitCode := doWatch(*configFile, fs.Args(), *interval, *logLevel, *saveHistory, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doWatch is the testable implementation of the watch subcommand.
// Returns exit code (0 = success, 1 = error).
func doWatch(configPath string, pages []string, intervalStr, logLevel string, saveHistory bool, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', using 'info'", logLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	interval, err := watch.ParseInterval(intervalStr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := orchestrate.ValidatePageURLs(pages); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	for _, w := range cfg.Validate() {
		log.Warn(w)
	}

	scheduler := watch.NewScheduler(cfg, pages, interval, logrus.NewEntry(log))

	if saveHistory || cfg.HistoryEnabled {
		store, err := storage.NewBadgerStore(cfg.StateDir, logrus.NewEntry(log))
		if err != nil {
			fmt.Fprintf(stderr, "Error opening history database: %v\n", err)
			return 1
		}
		defer store.Close()
		scheduler.SetStore(store)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Stopping watch...", sig)
		scheduler.Stop()
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded. Forcing exit.")
			os.Exit(1)
		}
	}()

	fmt.Fprintf(stdout, "Watching %d page(s) every %s\n", len(pages), watch.FormatInterval(interval))
	if err := scheduler.Run(); err != nil {
		fmt.Fprintf(stderr, "Watch error: %v\n", err)
		return 1
	}
	return 0
}
