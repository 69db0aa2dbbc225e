package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/rgolusuTR/linkaudit/pkg/config"
)

const version = "1.0.0"

func main() {
	// Optional .env for local overrides; absence is fine
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "audit":
		runAudit(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("linkaudit %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `linkaudit - Page link validation engine

Usage:
  linkaudit <command> [options]

Commands:
  audit       Validate every link on a page and write a report
  watch       Re-audit a set of pages on a fixed interval
  history     List past audit runs from the local history database
  validate    Validate configuration file
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'linkaudit <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file; an empty path yields defaults
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
