package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-pdf-filler/internal/config"
	"github.com/a3tai/mcp-pdf-filler/internal/descriptions"
	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
	"github.com/a3tai/mcp-pdf-filler/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config      *config.Config
	formService *service.Service
	mcpServer   *server.MCPServer

	stdin  io.Reader
	stdout io.Writer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, formService *service.Service) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if formService == nil {
		return nil, fmt.Errorf("formService cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:      cfg,
		formService: formService,
		mcpServer:   mcpServer,
		stdin:       os.Stdin,
		stdout:      os.Stdout,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	listTemplatesTool := mcp.NewTool(
		"form_list_templates",
		mcp.WithDescription(descriptions.GetToolDescription("form_list_templates")),
		mcp.WithString("query",
			mcp.Description("Optional case-insensitive text matched against template id, title and description"),
		),
	)
	s.mcpServer.AddTool(listTemplatesTool, s.handleListTemplates)

	templateFieldsTool := mcp.NewTool(
		"form_template_fields",
		mcp.WithDescription(descriptions.GetToolDescription("form_template_fields")),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("Template id as returned by form_list_templates"),
		),
	)
	s.mcpServer.AddTool(templateFieldsTool, s.handleTemplateFields)

	templateSchemaTool := mcp.NewTool(
		"form_template_schema",
		mcp.WithDescription(descriptions.GetToolDescription("form_template_schema")),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("Template id as returned by form_list_templates"),
		),
		mcp.WithBoolean("normalize",
			mcp.Description("Hand container rectangles down to children without geometry"),
		),
	)
	s.mcpServer.AddTool(templateSchemaTool, s.handleTemplateSchema)

	resolveTool := mcp.NewTool(
		"form_resolve",
		mcp.WithDescription(descriptions.GetToolDescription("form_resolve")),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("Template id as returned by form_list_templates"),
		),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Questionnaire answers keyed by logical key"),
		),
	)
	s.mcpServer.AddTool(resolveTool, s.handleResolve)

	renderTool := mcp.NewTool(
		"form_render",
		mcp.WithDescription(descriptions.GetToolDescription("form_render")),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("Template id as returned by form_list_templates"),
		),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Questionnaire answers keyed by logical key"),
		),
	)
	s.mcpServer.AddTool(renderTool, s.handleRender)

	serverInfoTool := mcp.NewTool(
		"form_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("form_server_info")),
	)
	s.mcpServer.AddTool(serverInfoTool, s.handleServerInfo)
}

// Handler functions
func (s *Server) handleListTemplates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := ""
	if q, ok := request.GetArguments()["query"].(string); ok {
		query = q
	}

	result, err := s.formService.Templates(query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatTemplatesResult(result)), nil
}

func (s *Server) handleTemplateFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.formService.Fields(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatFieldsResult(result)), nil
}

func (s *Server) handleTemplateSchema(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	normalize, _ := request.GetArguments()["normalize"].(bool)

	result, err := s.formService.Schema(service.SchemaRequest{TemplateID: id, Normalize: normalize})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Schema for template %s (source: %s, normalized: %t)\n", result.TemplateID, result.Source, result.Normalized)
	text += fmt.Sprintf("Fields: %d\n\n", len(result.Schema.Fields))
	body, err := toJSON(result.Schema)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text + body), nil
}

func (s *Server) handleResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := parseData(request.GetArguments()["data"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.formService.Resolve(ctx, service.ResolveRequest{TemplateID: id, Data: data})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, err := s.formatResolveResult(result)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleRender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("template_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := parseData(request.GetArguments()["data"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.formService.Render(ctx, service.RenderRequest{TemplateID: id, Data: data})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatRenderResult(result)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.formService.ServerInfo(ctx, s.config.ServerName, s.config.Version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatServerInfoResult(result)), nil
}

// parseData accepts the data argument as a JSON object or as a string
// holding one.
func parseData(raw any) (mapping.FormData, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("required argument \"data\" not found")
	case map[string]any:
		return mapping.FormData(v), nil
	case string:
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		var data mapping.FormData
		if err := dec.Decode(&data); err != nil {
			return nil, fmt.Errorf("data must be a JSON object: %w", err)
		}
		if data == nil {
			return nil, fmt.Errorf("data must be a JSON object")
		}
		return data, nil
	default:
		return nil, fmt.Errorf("data must be a JSON object, got %T", raw)
	}
}

func toJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return buf.String(), nil
}

// Formatting methods
func (s *Server) formatTemplatesResult(result *service.TemplatesResult) string {
	if result.TotalCount == 0 {
		text := fmt.Sprintf("No templates found in: %s", result.Root)
		if result.Query != "" {
			text += fmt.Sprintf(" (searched for: %s)", result.Query)
		}
		return text
	}

	text := fmt.Sprintf("Found %d template(s) in: %s\n", result.TotalCount, result.Root)
	if result.Query != "" {
		text += fmt.Sprintf("Search query: %s\n", result.Query)
	}
	text += "\nTemplates:\n"
	for i, tpl := range result.Templates {
		text += fmt.Sprintf("%d. %s\n", i+1, tpl.ID)
		if tpl.Title != "" {
			text += fmt.Sprintf("   Title: %s\n", tpl.Title)
		}
		if tpl.Description != "" {
			text += fmt.Sprintf("   Description: %s\n", tpl.Description)
		}
		text += fmt.Sprintf("   PDF: %s (engine: %s)\n", tpl.PDF, tpl.Engine)
	}
	return text
}

func (s *Server) formatFieldsResult(result *service.FieldsResult) string {
	text := fmt.Sprintf("Template %s: %d field(s) on %d page(s)\n\n", result.TemplateID, result.TotalCount, result.PageCount)

	for _, f := range result.Fields {
		text += fmt.Sprintf("• %s [%s]", f.Name, f.Kind)
		if len(f.OnValues) > 0 {
			text += fmt.Sprintf(" states: %s", strings.Join(f.OnValues, ", "))
		}
		if f.Value != "" {
			text += fmt.Sprintf(" value: %q", f.Value)
		}
		if f.ReadOnly {
			text += " (read-only)"
		}
		text += "\n"
	}

	if len(result.UnknownTargets) > 0 {
		text += "\n⚠️  Mapping targets with no matching field:\n"
		for _, name := range result.UnknownTargets {
			text += fmt.Sprintf("   - %s\n", name)
		}
	}
	return text
}

func (s *Server) formatResolveResult(result *service.ResolveResult) (string, error) {
	text := fmt.Sprintf("Resolved %d field value(s) and %d signature overlay(s) for template %s\n",
		len(result.Values), len(result.Overlays), result.TemplateID)
	text += formatWarnings(result.Warnings)

	body, err := toJSON(map[string]any{
		"values":   result.Values,
		"overlays": result.Overlays,
	})
	if err != nil {
		return "", err
	}
	return text + "\n" + body, nil
}

func (s *Server) formatRenderResult(result *service.RenderResult) string {
	text := fmt.Sprintf("Rendered template %s\n", result.TemplateID)
	text += fmt.Sprintf("Output: %s\n", result.Path)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Field values: %d (filled: %d)\n", result.FieldCount, len(result.Filled))
	text += fmt.Sprintf("Signature overlays: %d\n", result.OverlayCount)
	if len(result.Unmatched) > 0 {
		text += fmt.Sprintf("Unmatched: %s\n", strings.Join(result.Unmatched, ", "))
	}
	text += formatWarnings(result.Warnings)
	return text
}

func formatWarnings(warnings []*ferrors.FormError) string {
	if len(warnings) == 0 {
		return ""
	}
	text := fmt.Sprintf("\n⚠️  %d warning(s):\n", len(warnings))
	for _, w := range warnings {
		text += "   - " + w.Error()
		if w.Key != "" {
			text += fmt.Sprintf(" (key: %s)", w.Key)
		}
		if w.Field != "" {
			text += fmt.Sprintf(" (field: %s)", w.Field)
		}
		text += "\n"
	}
	return text
}

func (s *Server) formatServerInfoResult(result *service.ServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Templates: %s\n", result.TemplatesRoot)
	text += fmt.Sprintf("📤 Output: %s\n", result.OutputDirectory)
	text += fmt.Sprintf("📏 Max Template Size: %d MB\n\n", result.MaxFileSize/(1024*1024))

	if len(result.Templates) > 0 {
		text += fmt.Sprintf("📂 Templates (%d found):\n", len(result.Templates))
		for i, tpl := range result.Templates {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more templates\n", len(result.Templates)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s", i+1, tpl.ID)
			if tpl.Title != "" {
				text += fmt.Sprintf(" - %s", tpl.Title)
			}
			text += "\n"
		}
		text += "\n"
	} else {
		text += "📂 Templates: none found\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	if len(result.SupportedFormats) > 0 {
		text += "\n🖼️  Signature Image Formats: " + strings.Join(result.SupportedFormats, ", ") + "\n"
	}

	text += "\n" + result.UsageGuidance
	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves MCP over stdin and stdout until ctx is done or input ends
func (s *Server) runStdioMode(ctx context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting form filler MCP server in stdio mode")
		log.Printf("Templates directory: %s", s.config.TemplatesDirectory)
		log.Printf("Output directory: %s", s.config.OutputDirectory)
	}

	stdio := server.NewStdioServer(s.mcpServer)
	if !s.config.IsDebug() {
		stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	}

	err := stdio.Listen(ctx, s.stdin, s.stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over SSE on the configured address until ctx is done
func (s *Server) runServerMode(ctx context.Context) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(s.config.BaseURL()))

	log.Printf("Starting form filler MCP server (SSE) on %s", s.config.Address())
	if s.config.IsDebug() {
		log.Printf("Templates directory: %s", s.config.TemplatesDirectory)
		log.Printf("Output directory: %s", s.config.OutputDirectory)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(s.config.Address())
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve SSE: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down SSE server: %w", err)
		}
		return nil
	}
}
