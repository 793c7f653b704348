package service

import (
	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
	"github.com/a3tai/mcp-pdf-filler/internal/schema"
)

// RenderRequest represents a request to fill a template with form data
type RenderRequest struct {
	TemplateID string           `json:"template_id"`
	Data       mapping.FormData `json:"data"`
}

// RenderResult represents the outcome of a render
type RenderResult struct {
	TemplateID   string               `json:"template_id"`
	Path         string               `json:"path"`
	Size         int64                `json:"size"`
	FieldCount   int                  `json:"field_count"`
	OverlayCount int                  `json:"overlay_count"`
	Filled       []string             `json:"filled"`
	Unmatched    []string             `json:"unmatched,omitempty"`
	Warnings     []*ferrors.FormError `json:"warnings"`
}

// ResolveRequest represents a dry-run resolve of form data
type ResolveRequest struct {
	TemplateID string           `json:"template_id"`
	Data       mapping.FormData `json:"data"`
}

// ResolveResult represents resolved field values without touching the document
type ResolveResult struct {
	TemplateID string                     `json:"template_id"`
	Values     mapping.Values             `json:"values"`
	Overlays   []mapping.SignatureOverlay `json:"overlays"`
	Warnings   []*ferrors.FormError       `json:"warnings"`
}

// FieldInfo describes one fillable field of a template document
type FieldInfo struct {
	Name     string      `json:"name"`
	Kind     schema.Kind `json:"kind"`
	OnValues []string    `json:"on_values,omitempty"`
	Value    string      `json:"value,omitempty"`
	ReadOnly bool        `json:"read_only,omitempty"`
	Pages    []int       `json:"pages,omitempty"`
}

// FieldsResult lists the fields a template document exposes
type FieldsResult struct {
	TemplateID string      `json:"template_id"`
	PageCount  int         `json:"page_count"`
	Fields     []FieldInfo `json:"fields"`
	TotalCount int         `json:"total_count"`
	// UnknownTargets are mapping targets that match no field, even by leaf name.
	UnknownTargets []string `json:"unknown_targets,omitempty"`
}

// SchemaRequest represents a request for a template's widget schema
type SchemaRequest struct {
	TemplateID string `json:"template_id"`
	Normalize  bool   `json:"normalize"`
}

// SchemaResult carries a template's widget schema
type SchemaResult struct {
	TemplateID string         `json:"template_id"`
	Source     string         `json:"source"` // "file" or "document"
	Normalized bool           `json:"normalized"`
	Schema     *schema.Schema `json:"schema"`
}

// LabelResult represents the labeled debug copy of a template document
type LabelResult struct {
	TemplateID string `json:"template_id"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Labels     int    `json:"labels"`
}

// TemplateInfo summarizes one template of the store
type TemplateInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Engine      string `json:"engine"`
	PDF         string `json:"pdf"`
}

// TemplatesResult lists the templates matching a query
type TemplatesResult struct {
	Root       string         `json:"root"`
	Query      string         `json:"query,omitempty"`
	Templates  []TemplateInfo `json:"templates"`
	TotalCount int            `json:"total_count"`
}

// ServerInfoResult represents server information and usage guidance
type ServerInfoResult struct {
	ServerName       string         `json:"server_name"`
	Version          string         `json:"version"`
	TemplatesRoot    string         `json:"templates_root"`
	OutputDirectory  string         `json:"output_directory"`
	MaxFileSize      int64          `json:"max_file_size"`
	AvailableTools   []ToolInfo     `json:"available_tools"`
	Templates        []TemplateInfo `json:"templates"`
	SupportedFormats []string       `json:"supported_signature_formats"`
	UsageGuidance    string         `json:"usage_guidance"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
