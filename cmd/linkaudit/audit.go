package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/report"
	"github.com/rgolusuTR/linkaudit/pkg/storage"
	"github.com/rgolusuTR/linkaudit/pkg/validate"
)

// runAudit handles the audit subcommand
func runAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to YAML config file (defaults apply when omitted)")
	formats := fs.String("formats", "", "Comma-separated report formats: markdown, html, xlsx, json")
	outputDir := fs.String("output", "", "Report output directory")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	timeout := fs.Duration("timeout", 0, "Overall audit timeout (0 = none)")
	saveHistory := fs.Bool("save-history", false, "Persist the run to the local history database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkaudit audit [options] <page-url>\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  linkaudit audit https://example.com/docs/
  linkaudit audit -formats markdown,xlsx -output ./reports https://example.com/
  linkaudit audit -config linkaudit.yaml -save-history https://example.com/
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one page URL is required")
		fs.Usage()
		os.Exit(1)
	}

	var formatList []string
	for _, f := range strings.Split(*formats, ",") {
		if f = strings.TrimSpace(f); f != "" {
			formatList = append(formatList, f)
		}
	}

	exitCode := doAudit(auditOptions{
		ConfigPath:  *configFile,
		PageURL:     fs.Arg(0),
		Formats:     formatList,
		OutputDir:   *outputDir,
		LogLevel:    *logLevel,
		Timeout:     *timeout,
		SaveHistory: *saveHistory,
	}, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

type auditOptions struct {
	ConfigPath  string
	PageURL     string
	Formats     []string
	OutputDir   string
	LogLevel    string
	Timeout     time.Duration
	SaveHistory bool
}

// doAudit is the testable implementation of the audit subcommand.
// Returns exit code (0 = success, 1 = error).
func doAudit(opts auditOptions, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})

	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', using 'info'", opts.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	for _, w := range cfg.Validate() {
		log.Warn(w)
	}
	if opts.OutputDir != "" {
		cfg.Report.OutputDir = opts.OutputDir
	}
	if len(opts.Formats) > 0 {
		cfg.Report.Formats = opts.Formats
	}

	// Context, timeout, and signal handling
	var ctx context.Context
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Cancelling audit...", sig)
		cancel()
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded. Forcing exit.")
			os.Exit(1)
		}
	}()

	// Progress stream: batches logged as they settle
	progress := make(chan models.ProgressEvent, 64)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for event := range progress {
			entry := log.WithFields(logrus.Fields{"checked": event.Current, "total": event.Total})
			if event.Strategy != "" {
				entry = entry.WithField("wave", event.Strategy)
			}
			entry.Info("Validation progress")
		}
	}()

	engine := validate.New(cfg, logrus.NewEntry(log), validate.WithProgress(progress))
	auditReport, err := engine.Audit(ctx, opts.PageURL)
	close(progress)
	<-progressDone

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Audit cancelled.")
		} else if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Audit timed out.")
		} else {
			log.Errorf("Audit failed: %v", err)
		}
		return 1
	}

	printSummary(stdout, auditReport)

	writer := report.NewWriter(cfg.Report, logrus.NewEntry(log))
	paths, err := writer.Write(auditReport)
	if err != nil {
		log.Errorf("Failed to write reports: %v", err)
		return 1
	}
	for _, p := range paths {
		fmt.Fprintf(stdout, "Report written: %s\n", p)
	}

	if opts.SaveHistory || cfg.HistoryEnabled {
		if err := persistRun(cfg.StateDir, auditReport, logrus.NewEntry(log)); err != nil {
			log.Errorf("Failed to save run to history: %v", err)
			return 1
		}
		fmt.Fprintf(stdout, "Run %s saved to history\n", auditReport.RunID)
	}
	return 0
}

func persistRun(stateDir string, auditReport *models.AuditReport, log *logrus.Entry) error {
	store, err := storage.NewBadgerStore(stateDir, log)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(auditReport)
}

// printSummary writes the human-readable result overview to stdout
func printSummary(w io.Writer, auditReport *models.AuditReport) {
	stats := auditReport.Stats
	fmt.Fprintf(w, "\nAudit of %s (run %s)\n", auditReport.PageURL, auditReport.RunID)
	fmt.Fprintf(w, "  Links:    %d total, %d working, %d broken\n", stats.TotalLinks, stats.WorkingLinks, stats.BrokenLinks)
	fmt.Fprintf(w, "  Scope:    %d internal, %d external\n", stats.InternalLinks, stats.ExternalLinks)
	fmt.Fprintf(w, "  Recovery: %d via relay/sandbox, %d redirected, %d timed out\n",
		stats.CORSHandledCount, stats.RedirectCount, stats.TimeoutCount)
	fmt.Fprintf(w, "  Latency:  %d ms average\n", stats.AvgResponseTimeMs)

	if stats.BrokenLinks > 0 {
		fmt.Fprintln(w, "\nBroken links:")
		for _, r := range auditReport.Results {
			if r.IsWorking {
				continue
			}
			status := "-"
			if r.StatusCode != 0 {
				status = fmt.Sprintf("%d", r.StatusCode)
			}
			fmt.Fprintf(w, "  [%s] %s (%s)\n", status, r.URL, r.ErrorKind)
		}
	}
	fmt.Fprintln(w)
}
