package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/a3tai/mcp-pdf-filler/internal/descriptions"
)

const (
	catalogTTL     = 5 * time.Minute
	catalogTimeout = 3 * time.Second
	catalogLimit   = 100
)

// catalogCache keeps the last template listing for a short while so repeated
// server info calls do not rescan the templates directory.
type catalogCache struct {
	mu         sync.RWMutex
	templates  []TemplateInfo
	lastUpdate time.Time
	ttl        time.Duration
}

func (c *catalogCache) get() ([]TemplateInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.templates == nil || time.Since(c.lastUpdate) > c.ttl {
		return nil, false
	}
	return c.templates, true
}

func (c *catalogCache) set(templates []TemplateInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates = templates
	c.lastUpdate = time.Now()
}

func (c *catalogCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates = nil
}

// ServerInfo returns server configuration, the tool list and up to 100
// templates. A template scan that outlasts the context or three seconds
// yields an empty template list rather than an error.
func (s *Service) ServerInfo(ctx context.Context, serverName, version string) (*ServerInfoResult, error) {
	templates, ok := s.catalog.get()
	if !ok {
		templates = s.scanCatalog(ctx)
	}

	return &ServerInfoResult{
		ServerName:       serverName,
		Version:          version,
		TemplatesRoot:    s.store.Root(),
		OutputDirectory:  s.outputDir,
		MaxFileSize:      s.maxFileSize,
		AvailableTools:   availableTools(),
		Templates:        templates,
		SupportedFormats: []string{"png", "jpeg", "gif", "webp"},
		UsageGuidance:    s.usageGuidance(),
	}, nil
}

func (s *Service) scanCatalog(ctx context.Context) []TemplateInfo {
	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()

	resultChan := make(chan []TemplateInfo, 1)
	errorChan := make(chan error, 1)

	go func() {
		res, err := s.Templates("")
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- res.Templates
	}()

	select {
	case templates := <-resultChan:
		if len(templates) > catalogLimit {
			templates = templates[:catalogLimit]
		}
		s.catalog.set(templates)
		return templates
	case err := <-errorChan:
		if s.debugMode {
			log.Printf("Template scan failed: %v", err)
		}
	case <-ctx.Done():
		if s.debugMode {
			log.Printf("Template scan abandoned: %v", ctx.Err())
		}
	}
	return []TemplateInfo{}
}

// ClearCache drops the cached template listing.
func (s *Service) ClearCache() {
	s.catalog.clear()
}

func availableTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "form_list_templates",
			Description: descriptions.GetToolDescription("form_list_templates"),
			Usage:       "Use this tool to find the id of the template to fill.",
			Parameters:  "query (optional): Case-insensitive text matched against id, title and description",
		},
		{
			Name:        "form_template_fields",
			Description: descriptions.GetToolDescription("form_template_fields"),
			Usage:       "Use this tool to see which fields a template's PDF exposes and which rule targets miss.",
			Parameters:  "template_id (required): Template id",
		},
		{
			Name:        "form_template_schema",
			Description: descriptions.GetToolDescription("form_template_schema"),
			Usage:       "Use this tool to get widget rectangles per field, raw or normalized.",
			Parameters:  "template_id (required): Template id, normalize (optional): Hand container rects down to children",
		},
		{
			Name:        "form_resolve",
			Description: descriptions.GetToolDescription("form_resolve"),
			Usage:       "Use this tool to preview the field values a set of answers produces.",
			Parameters:  "template_id (required): Template id, data (required): JSON object of answers",
		},
		{
			Name:        "form_render",
			Description: descriptions.GetToolDescription("form_render"),
			Usage:       "Use this tool to write the filled PDF to the output directory.",
			Parameters:  "template_id (required): Template id, data (required): JSON object of answers",
		},
		{
			Name:        "form_server_info",
			Description: descriptions.GetToolDescription("form_server_info"),
			Usage:       "Use this tool to get server configuration and the template catalog.",
			Parameters:  "none",
		},
	}
}

func (s *Service) usageGuidance() string {
	limit := "unlimited"
	if s.maxFileSize > 0 {
		limit = fmt.Sprintf("%dMB", s.maxFileSize/(1024*1024))
	}

	return fmt.Sprintf(`PDF Form Filler Usage Guide:

1. FIND A TEMPLATE:
   - Use 'form_list_templates' to list templates, optionally with a query

2. INSPECT IT:
   - Use 'form_template_fields' for field names, kinds and button export states
   - Use 'form_template_schema' for widget rectangles (set normalize to fill in child geometry)

3. PREVIEW:
   - Use 'form_resolve' with the answers to see every field value before writing anything
   - Answers missing from data are skipped; they never clear a field

4. RENDER:
   - Use 'form_render' to write the filled PDF; the response carries its path
   - Drawn signatures are accepted as data:image/... URLs and stamped into the rule's rect

IMPORTANT NOTES:
- Templates live in %s
- Output files are written to %s
- Template PDFs up to %s are accepted
- 'warnings' and 'unmatched' in responses explain every value that did not reach the PDF`,
		s.store.Root(), s.outputDir, limit)
}
