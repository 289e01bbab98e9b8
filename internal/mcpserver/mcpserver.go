// Package mcpserver exposes clone checks as MCP tools over stdio.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/scheduler"
)

// Engine is the clone-check engine behind the tools.
type Engine interface {
	RequestCheck(ctx context.Context, courseID int) ([]scheduler.Request, error)
	Report(ctx context.Context, submissionID int) (models.ReportRow, error)
	Summary(ctx context.Context, courseID int) (models.CourseSummary, error)
	Queue() (scheduler.Stats, []scheduler.TaskInfo)
}

// Server wraps the MCP server and registers the klone tools.
type Server struct {
	server *mcp.Server
	engine Engine
}

// NewServer creates a new MCP server backed by engine.
func NewServer(version string, engine Engine) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "klone",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, engine: engine}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "request_clone_check",
		Description: describeRequestCheck,
	}, s.handleRequestCheck)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_clone_report",
		Description: describeCloneReport,
	}, s.handleCloneReport)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_course_summary",
		Description: describeCourseSummary,
	}, s.handleCourseSummary)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_queue",
		Description: describeQueue,
	}, s.handleQueue)
}
