// Package service ties the template store, the rule resolver and the
// AcroForm document layer together into the operations exposed by the MCP
// server and the formfill CLI.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
	"github.com/a3tai/mcp-pdf-filler/internal/fieldname"
	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
	"github.com/a3tai/mcp-pdf-filler/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-filler/internal/schema"
	"github.com/a3tai/mcp-pdf-filler/internal/template"
)

// Service provides form filling operations over a template store
type Service struct {
	store       *template.Store
	resolver    *mapping.Resolver
	stamper     *acroform.Stamper
	catalog     *catalogCache
	outputDir   string
	maxFileSize int64
	debugMode   bool
}

// NewService creates a new form service reading templates from templatesDir
// and writing rendered documents to outputDir.
func NewService(templatesDir, outputDir string, maxFileSize int64, debugMode bool) (*Service, error) {
	store, err := template.NewStore(templatesDir, maxFileSize, debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to open template store: %w", err)
	}
	if outputDir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}

	return &Service{
		store:       store,
		resolver:    mapping.NewResolver(debugMode),
		stamper:     acroform.NewStamper(debugMode),
		catalog:     &catalogCache{ttl: catalogTTL},
		outputDir:   absOut,
		maxFileSize: maxFileSize,
		debugMode:   debugMode,
	}, nil
}

// TemplatesRoot returns the absolute templates directory.
func (s *Service) TemplatesRoot() string {
	return s.store.Root()
}

// OutputDir returns the absolute output directory.
func (s *Service) OutputDir() string {
	return s.outputDir
}

// Templates lists the templates whose id, title or description match query.
func (s *Service) Templates(query string) (*TemplatesResult, error) {
	metas, err := s.store.Catalog(query)
	if err != nil {
		return nil, err
	}

	infos := make([]TemplateInfo, 0, len(metas))
	for _, m := range metas {
		infos = append(infos, TemplateInfo{
			ID:          m.ID,
			Title:       m.Title,
			Description: m.Description,
			Engine:      m.Engine,
			PDF:         m.PDF,
		})
	}

	return &TemplatesResult{
		Root:       s.store.Root(),
		Query:      query,
		Templates:  infos,
		TotalCount: len(infos),
	}, nil
}

// Resolve resolves form data against a template's rule table without
// opening its document.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tpl, err := s.store.Load(req.TemplateID)
	if err != nil {
		return nil, err
	}

	res := s.resolver.Resolve(req.Data, tpl.Mapping)
	return &ResolveResult{
		TemplateID: tpl.Meta.ID,
		Values:     res.Values,
		Overlays:   res.Overlays,
		Warnings:   warningsOf(res.Warnings, tpl.Meta.ID),
	}, nil
}

// Render fills a template with form data and writes the result to
// <output>/<template id>_<uuid>.pdf. The context is checked between stages;
// a cancelled render leaves no output file behind.
func (s *Service) Render(ctx context.Context, req RenderRequest) (*RenderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tpl, err := s.store.Load(req.TemplateID)
	if err != nil {
		return nil, err
	}
	id := tpl.Meta.ID

	res := s.resolver.Resolve(req.Data, tpl.Mapping)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := acroform.Open(tpl.PDFPath, s.debugMode)
	if err != nil {
		return nil, ferrors.WrapError(ferrors.ErrorTypeInvalidDocument, err).WithTemplate(id)
	}

	values := mapping.Values(fieldname.Reconcile(res.Values, doc.Names()))
	report, err := doc.Fill(values)
	if err != nil {
		return nil, ferrors.WrapError(ferrors.ErrorTypeFillFailed, err).WithTemplate(id)
	}
	s.warnUnmatched(res.Warnings, report, res.Values)

	var filled bytes.Buffer
	if err := doc.Write(&filled); err != nil {
		return nil, ferrors.WrapError(ferrors.ErrorTypeFillFailed, err).WithTemplate(id)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	skippedBefore := len(res.Warnings.ByType(ferrors.ErrorTypeInvalidImage))
	out, err := s.stamper.StampOverlays(filled.Bytes(), res.Overlays, res.Warnings)
	if err != nil {
		return nil, ferrors.WrapError(ferrors.ErrorTypeFillFailed, err).WithTemplate(id)
	}
	stamped := len(res.Overlays) - (len(res.Warnings.ByType(ferrors.ErrorTypeInvalidImage)) - skippedBefore)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.writeOutput(id, "", out)
	if err != nil {
		return nil, err
	}

	if s.debugMode {
		log.Printf("Rendered %s to %s: %d field value(s), %d overlay(s); %s",
			id, path, len(res.Values), stamped, res.Warnings.Summary())
	}

	return &RenderResult{
		TemplateID:   id,
		Path:         path,
		Size:         int64(len(out)),
		FieldCount:   len(res.Values),
		OverlayCount: stamped,
		Filled:       report.Filled,
		Unmatched:    report.Unmatched,
		Warnings:     warningsOf(res.Warnings, id),
	}, nil
}

// warnUnmatched records a MissingField warning for every resolved value that
// reached no field. Leaf copies added by reconciliation are not reported, and
// neither is a qualified key whose leaf copy was filled.
func (s *Service) warnUnmatched(warnings *ferrors.ErrorCollection, report *acroform.FillReport, resolved mapping.Values) {
	filled := fieldname.NewNameSet(report.Filled...)
	for _, key := range report.Unmatched {
		if leaf := fieldname.Leaf(key); leaf != key && filled.Has(leaf) {
			continue
		}
		if _, ok := resolved[key]; !ok {
			continue
		}
		warnings.Add(ferrors.NewFormError(ferrors.ErrorTypeMissingField,
			fmt.Sprintf("document has no field named %q", key)).WithField(key))
	}
}

// Fields lists the fillable fields of a template document and the mapping
// targets that would not reach any of them.
func (s *Service) Fields(id string) (*FieldsResult, error) {
	tpl, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}
	doc, err := acroform.Open(tpl.PDFPath, s.debugMode)
	if err != nil {
		return nil, ferrors.WrapError(ferrors.ErrorTypeInvalidDocument, err).WithTemplate(tpl.Meta.ID)
	}

	fields := make([]FieldInfo, 0, len(doc.Fields()))
	for _, f := range doc.Fields() {
		if !f.Terminal || f.IsPushbutton() {
			continue
		}
		info := FieldInfo{
			Name:     f.Name,
			Kind:     f.Kind(),
			OnValues: f.OnValues(),
			Value:    f.Value,
			ReadOnly: f.ReadOnly(),
		}
		for _, r := range f.Rects() {
			info.Pages = appendUnique(info.Pages, r.PageIndex)
		}
		fields = append(fields, info)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	return &FieldsResult{
		TemplateID:     tpl.Meta.ID,
		PageCount:      tpl.PageCount,
		Fields:         fields,
		TotalCount:     len(fields),
		UnknownTargets: unknownTargets(tpl.Mapping, doc),
	}, nil
}

// unknownTargets returns the rule targets that match no field of doc by
// qualified name, partial name or leaf.
func unknownTargets(table *mapping.Table, doc *acroform.Document) []string {
	known := make(map[string]bool)
	for _, f := range doc.Fields() {
		if !f.Terminal {
			continue
		}
		known[f.Name] = true
		known[f.Partial] = true
	}

	var unknown []string
	for _, target := range table.Fields() {
		if known[target] || known[fieldname.Leaf(target)] {
			continue
		}
		unknown = append(unknown, target)
	}
	sort.Strings(unknown)
	return unknown
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Schema returns the widget schema of a template: the template's schema file
// when it ships one, otherwise the schema introspected from its document.
func (s *Service) Schema(req SchemaRequest) (*SchemaResult, error) {
	tpl, err := s.store.Load(req.TemplateID)
	if err != nil {
		return nil, err
	}
	return s.schemaOf(tpl, req.Normalize)
}

func (s *Service) schemaOf(tpl *template.Template, normalize bool) (*SchemaResult, error) {
	result := &SchemaResult{TemplateID: tpl.Meta.ID, Source: "file", Schema: tpl.Schema}

	if !tpl.HasSchema {
		doc, err := acroform.Open(tpl.PDFPath, s.debugMode)
		if err != nil {
			return nil, ferrors.WrapError(ferrors.ErrorTypeInvalidDocument, err).WithTemplate(tpl.Meta.ID)
		}
		result.Source = "document"
		result.Schema = doc.Schema()
	}

	if normalize {
		result.Schema = schema.Normalize(result.Schema)
		result.Normalized = true
	}
	return result, nil
}

// Label writes a copy of the template document with each widget rectangle
// stamped with its field's leaf name, to <output>/<template id>_labeled_<uuid>.pdf.
func (s *Service) Label(ctx context.Context, req SchemaRequest) (*LabelResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tpl, err := s.store.Load(req.TemplateID)
	if err != nil {
		return nil, err
	}
	sch, err := s.schemaOf(tpl, req.Normalize)
	if err != nil {
		return nil, err
	}

	in, err := os.ReadFile(tpl.PDFPath)
	if err != nil {
		return nil, ferrors.WrapError(ferrors.ErrorTypeInvalidDocument, err).WithTemplate(tpl.Meta.ID)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := s.stamper.Label(in, sch.Schema)
	if err != nil {
		return nil, ferrors.WrapError(ferrors.ErrorTypeInvalidDocument, err).WithTemplate(tpl.Meta.ID)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.writeOutput(tpl.Meta.ID, "labeled", out)
	if err != nil {
		return nil, err
	}

	labels := 0
	for _, f := range sch.Schema.Fields {
		if fieldname.Leaf(f.ID) != "" {
			labels += len(f.Rects)
		}
	}

	return &LabelResult{
		TemplateID: tpl.Meta.ID,
		Path:       path,
		Size:       int64(len(out)),
		Labels:     labels,
	}, nil
}

// writeOutput stores data under a fresh unique name in the output directory.
func (s *Service) writeOutput(id, suffix string, data []byte) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	name := id
	if suffix != "" {
		name += "_" + suffix
	}
	path := filepath.Join(s.outputDir, fmt.Sprintf("%s_%s.pdf", name, uuid.NewString()))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// warningsOf flattens a collection into one list tagged with the template id.
func warningsOf(ec *ferrors.ErrorCollection, id string) []*ferrors.FormError {
	out := make([]*ferrors.FormError, 0, len(ec.Errors)+len(ec.Warnings))
	for _, e := range append(append([]*ferrors.FormError{}, ec.Errors...), ec.Warnings...) {
		out = append(out, e.WithTemplate(id))
	}
	return out
}
