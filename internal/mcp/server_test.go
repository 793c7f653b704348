package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-filler/internal/config"
	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
	"github.com/a3tai/mcp-pdf-filler/internal/pdf/acroform/acroformtest"
	"github.com/a3tai/mcp-pdf-filler/internal/service"
)

const testMapping = `{
  "full_name": "name",
  "consent": {"type": "checkbox", "field": "agree"},
  "tin": {"type": "tin_split", "ssn": ["form.ssn.a", "form.ssn.b", "form.ssn.c"]},
  "ghost": "nowhere"
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Mode:               config.ModeStdio,
		Host:               "127.0.0.1",
		Port:               8080,
		TemplatesDirectory: filepath.Join(root, "templates"),
		OutputDirectory:    filepath.Join(root, "output"),
		Version:            "1.0.0",
		ServerName:         "test-server",
		LogLevel:           "info",
		MaxFileSize:        10 * 1024 * 1024,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig(t)

	dir := filepath.Join(cfg.TemplatesDirectory, "w9")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "template.json"),
		[]byte(`{"pdf": "form.pdf", "title": "Form W-9", "description": "Taxpayer identification"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapping.json"), []byte(testMapping), 0o644))
	_, err := acroformtest.WriteFile(dir, "form.pdf", acroformtest.Sample()...)
	require.NoError(t, err)

	svc, err := service.NewService(cfg.TemplatesDirectory, cfg.OutputDirectory, cfg.MaxFileSize, false)
	require.NoError(t, err)
	server, err := NewServer(cfg, svc)
	require.NoError(t, err)
	return server
}

func callTool(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// extractTextFromResult returns the first text content of a tool result
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}

	return ""
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	svc, err := service.NewService(cfg.TemplatesDirectory, cfg.OutputDirectory, cfg.MaxFileSize, false)
	require.NoError(t, err)

	server, err := NewServer(cfg, svc)
	require.NoError(t, err)
	assert.Same(t, cfg, server.config)
	assert.Same(t, svc, server.formService)
	assert.NotNil(t, server.mcpServer)

	_, err = NewServer(nil, svc)
	assert.Error(t, err)

	_, err = NewServer(cfg, nil)
	assert.Error(t, err)
}

func TestServer_HandleListTemplates(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name     string
		args     map[string]any
		contains []string
	}{
		{"all", map[string]any{}, []string{"Found 1 template(s)", "w9", "Form W-9"}},
		{"query", map[string]any{"query": "taxpayer"}, []string{"Search query: taxpayer", "w9"}},
		{"no match", map[string]any{"query": "i-9"}, []string{"No templates found", "searched for: i-9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleListTemplates(context.Background(), callTool(tt.args))
			require.NoError(t, err)
			assert.False(t, result.IsError)

			text := extractTextFromResult(result)
			for _, want := range tt.contains {
				assert.Contains(t, text, want)
			}
		})
	}
}

func TestServer_HandleTemplateFields(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleTemplateFields(context.Background(), callTool(map[string]any{"template_id": "w9"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Template w9: 6 field(s) on 1 page(s)")
	assert.Contains(t, text, "• status [button] states: 1, 2")
	assert.Contains(t, text, "nowhere")
}

func TestServer_HandleTemplateSchema(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleTemplateSchema(context.Background(),
		callTool(map[string]any{"template_id": "w9", "normalize": true}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := extractTextFromResult(result)
	assert.Contains(t, text, "source: document, normalized: true")
	assert.Contains(t, text, `"id": "form.ssn.a"`)
	assert.Contains(t, text, `"page_index": 0`)
}

func TestServer_HandleResolve(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name     string
		data     any
		contains []string
	}{
		{
			name:     "object",
			data:     map[string]any{"full_name": "Ada", "tin": "123456789"},
			contains: []string{"Resolved 4 field value(s)", `"form.ssn.c": "6789"`, `"name": "Ada"`},
		},
		{
			name:     "json string",
			data:     `{"consent": 1}`,
			contains: []string{"Resolved 1 field value(s)", `"agree": "/Yes"`},
		},
		{
			name:     "warning",
			data:     map[string]any{"tin": "12345"},
			contains: []string{"1 warning(s)", "INVALID_TIN", "(key: tin)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := server.handleResolve(context.Background(),
				callTool(map[string]any{"template_id": "w9", "data": tt.data}))
			require.NoError(t, err)
			require.False(t, result.IsError, extractTextFromResult(result))

			text := extractTextFromResult(result)
			for _, want := range tt.contains {
				assert.Contains(t, text, want)
			}
		})
	}
}

func TestServer_HandleRender(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleRender(context.Background(), callTool(map[string]any{
		"template_id": "w9",
		"data":        map[string]any{"full_name": "Ada", "consent": true, "ghost": "x"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Rendered template w9")
	assert.Contains(t, text, "Field values: 3 (filled: 2)")
	assert.Contains(t, text, "Unmatched: nowhere")
	assert.Contains(t, text, "MISSING_FIELD")

	var path string
	for _, line := range strings.Split(text, "\n") {
		if p, ok := strings.CutPrefix(line, "Output: "); ok {
			path = p
		}
	}
	require.NotEmpty(t, path)
	assert.FileExists(t, path)
	assert.Equal(t, server.config.OutputDirectory, filepath.Dir(path))
}

func TestServer_HandleServerInfo(t *testing.T) {
	server := newTestServer(t)

	result, err := server.handleServerInfo(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := extractTextFromResult(result)
	assert.Contains(t, text, "test-server v1.0.0")
	assert.Contains(t, text, "1. w9 - Form W-9")
	for _, tool := range []string{"form_list_templates", "form_render", "form_server_info"} {
		assert.Contains(t, text, tool)
	}
}

func TestServer_InvalidArguments(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]any
	}{
		{"fields without id", server.handleTemplateFields, map[string]any{}},
		{"fields unknown id", server.handleTemplateFields, map[string]any{"template_id": "i9"}},
		{"fields escaping id", server.handleTemplateFields, map[string]any{"template_id": "../w9"}},
		{"schema without id", server.handleTemplateSchema, map[string]any{}},
		{"resolve without data", server.handleResolve, map[string]any{"template_id": "w9"}},
		{"resolve bad data", server.handleResolve, map[string]any{"template_id": "w9", "data": 12}},
		{"resolve bad json", server.handleResolve, map[string]any{"template_id": "w9", "data": "{"}},
		{"render without id", server.handleRender, map[string]any{"data": map[string]any{}}},
		{"render unknown id", server.handleRender, map[string]any{"template_id": "i9", "data": map[string]any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, callTool(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.NotEmpty(t, extractTextFromResult(result))
		})
	}
}

func TestParseData(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected mapping.FormData
		wantErr  bool
	}{
		{"object", map[string]any{"a": "b"}, mapping.FormData{"a": "b"}, false},
		{"string", `{"a": "b"}`, mapping.FormData{"a": "b"}, false},
		{"null string", `null`, nil, true},
		{"array string", `[1]`, nil, true},
		{"missing", nil, nil, true},
		{"number", 3.5, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := parseData(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, data)
		})
	}
}

func TestFormatWarnings(t *testing.T) {
	assert.Empty(t, formatWarnings(nil))

	text := formatWarnings([]*ferrors.FormError{
		ferrors.NewFormError(ferrors.ErrorTypePatternMismatch, "2 field(s) but 3 pattern segment(s)").WithKey("phone"),
		ferrors.NewFormError(ferrors.ErrorTypeMissingField, "no field").WithField("x"),
	})
	assert.Contains(t, text, "2 warning(s)")
	assert.Contains(t, text, "[PATTERN_MISMATCH] 2 field(s) but 3 pattern segment(s) (key: phone)")
	assert.Contains(t, text, "(field: x)")
}
