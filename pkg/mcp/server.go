// Package mcp exposes the link audit engine over the Model Context Protocol
// so agent tooling can start audits and read back results.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/config"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/storage"
	"github.com/rgolusuTR/linkaudit/pkg/validate"
)

const (
	serverName    = "linkaudit"
	serverVersion = "1.0.0"
)

// AuditFunc runs one full page audit. Swappable for tests.
type AuditFunc func(ctx context.Context, pageURL string, progress chan<- models.ProgressEvent) (*models.AuditReport, error)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
	Store      storage.AuditStore // Optional audit history
	Audit      AuditFunc          // Defaults to a validate.Engine per job
}

// Server wraps the MCP server with link audit functionality
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
	audit      AuditFunc
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
		audit:      cfg.Audit,
	}
	if s.audit == nil {
		s.audit = s.engineAudit
	}

	s.registerTools()
	return s, nil
}

// engineAudit is the default AuditFunc: one engine run per job
func (s *Server) engineAudit(ctx context.Context, pageURL string, progress chan<- models.ProgressEvent) (*models.AuditReport, error) {
	engine := validate.New(s.cfg.AppConfig, s.log, validate.WithProgress(progress))
	return engine.Audit(ctx, pageURL)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	auditPageTool := mcp.NewTool("audit_page",
		mcp.WithDescription("Start a background link audit of a page. Returns immediately with a job ID."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page URL whose links should be validated"),
		),
	)
	s.mcpServer.AddTool(auditPageTool, s.handleAuditPage)

	getStatusTool := mcp.NewTool("get_audit_status",
		mcp.WithDescription("Get the status and progress of an audit job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by audit_page"),
		),
	)
	s.mcpServer.AddTool(getStatusTool, s.handleGetAuditStatus)

	getReportTool := mcp.NewTool("get_audit_report",
		mcp.WithDescription("Get the full report of a completed audit job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by audit_page"),
		),
		mcp.WithBoolean("broken_only",
			mcp.Description("Return only broken links (default: false)"),
		),
	)
	s.mcpServer.AddTool(getReportTool, s.handleGetAuditReport)

	listAuditsTool := mcp.NewTool("list_audits",
		mcp.WithDescription("List past audit runs, newest first"),
		mcp.WithString("page_url",
			mcp.Description("Limit to audits of one page (optional)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of runs to return (default: 20, max: 100)"),
		),
	)
	s.mcpServer.AddTool(listAuditsTool, s.handleListAudits)

	cancelAuditTool := mcp.NewTool("cancel_audit",
		mcp.WithDescription("Cancel a pending or running audit job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by audit_page"),
		),
	)
	s.mcpServer.AddTool(cancelAuditTool, s.handleCancelAudit)

	s.log.Infof("Registered %d MCP tools", 5)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
