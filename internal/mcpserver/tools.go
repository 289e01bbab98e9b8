package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/klone/internal/output"
)

// CheckInput selects the course to check.
type CheckInput struct {
	CourseID int `json:"course_id" jsonschema:"Id of the course whose submissions are compared."`
}

// ReportInput selects a submission report.
type ReportInput struct {
	SubmissionID int    `json:"submission_id" jsonschema:"Id of the submission."`
	Format       string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// SummaryInput selects a course summary.
type SummaryInput struct {
	CourseID int    `json:"course_id" jsonschema:"Id of the course."`
	Format   string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// QueueInput configures the queue listing.
type QueueInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

func getFormat(format string) output.Format {
	switch format {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func formatOutput(r output.Renderable, format output.Format) (string, error) {
	if format == output.FormatTOON {
		return output.MarshalTOON(r.RenderData())
	}
	var sb strings.Builder
	if err := output.NewWriterFormatter(format, &sb, false).Output(r); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func toolResult(r output.Renderable, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(r, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func (s *Server) handleRequestCheck(ctx context.Context, _ *mcp.CallToolRequest, input CheckInput) (*mcp.CallToolResult, any, error) {
	reqs, err := s.engine.RequestCheck(ctx, input.CourseID)
	if err != nil {
		return toolError(err.Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Queued %d requests for course %d:\n", len(reqs), input.CourseID)
	for _, r := range reqs {
		sb.WriteString("- " + r.String() + "\n")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: sb.String()}},
	}, nil, nil
}

func (s *Server) handleCloneReport(ctx context.Context, _ *mcp.CallToolRequest, input ReportInput) (*mcp.CallToolResult, any, error) {
	row, err := s.engine.Report(ctx, input.SubmissionID)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(output.CloneReport(row), getFormat(input.Format))
}

func (s *Server) handleCourseSummary(ctx context.Context, _ *mcp.CallToolRequest, input SummaryInput) (*mcp.CallToolResult, any, error) {
	sum, err := s.engine.Summary(ctx, input.CourseID)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(output.CourseSummary(sum), getFormat(input.Format))
}

func (s *Server) handleQueue(_ context.Context, _ *mcp.CallToolRequest, input QueueInput) (*mcp.CallToolResult, any, error) {
	stats, pending := s.engine.Queue()
	return toolResult(output.Queue(stats, pending), getFormat(input.Format))
}
