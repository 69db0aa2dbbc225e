package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/mcp"
	"github.com/rgolusuTR/linkaudit/pkg/storage"
)

// runMcpServer handles the mcp-server subcommand
func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (defaults apply when omitted)")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: linkaudit mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Start with stdio transport
  linkaudit mcp-server -config linkaudit.yaml

  # Start with SSE transport on port 8080
  linkaudit mcp-server -transport sse -port 8080

Available MCP Tools:
  audit_page        Start a background link audit of a page
  get_audit_status  Check progress of an audit job
  get_audit_report  Read the full report of a completed audit
  list_audits       List past audit runs
  cancel_audit      Cancel a running audit
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doMcpServer(*configFile, *transport, *port, *logLevel, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doMcpServer is the testable implementation of the MCP server subcommand
func doMcpServer(configPath, transport string, port int, logLevel string, stdout, stderr io.Writer) int {
	// MCP stdio transport owns stdout, logs go to stderr
	log := logrus.New()
	log.SetOutput(stderr)
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	for _, w := range cfg.Validate() {
		log.Warn(w)
	}

	serverCfg := &mcp.ServerConfig{
		AppConfig:  cfg,
		ConfigPath: configPath,
		Transport:  transport,
		Port:       port,
		Logger:     log,
	}

	// Audit history backs the list_audits tool when enabled
	if cfg.HistoryEnabled {
		store, err := storage.NewBadgerStore(cfg.StateDir, logrus.NewEntry(log))
		if err != nil {
			fmt.Fprintf(stderr, "Error opening history database: %v\n", err)
			return 1
		}
		defer store.Close()
		serverCfg.Store = store
	}

	server, err := mcp.NewServer(serverCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
