// Package template loads fill templates from disk. Each template lives in
// its own folder under the templates root:
//
//	<root>/<id>/template.json   metadata, see Meta
//	<root>/<id>/<pdf>           the fillable document
//	<root>/<id>/schema.json     optional widget schema
//	<root>/<id>/mapping.json    optional rule table (mapping.yaml and mapping.yml are also accepted)
package template

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
	"github.com/a3tai/mcp-pdf-filler/internal/schema"
)

const (
	MetaFile       = "template.json"
	DefaultEngine  = "acroform"
	DefaultSchema  = "schema.json"
	DefaultMapping = "mapping.json"
)

// mappingAlternates are tried in order when the default mapping file is absent.
var mappingAlternates = []string{"mapping.yaml", "mapping.yml"}

// Meta is the content of template.json.
type Meta struct {
	ID          string         `json:"id"`
	Engine      string         `json:"engine,omitempty"`
	PDF         string         `json:"pdf"`
	Schema      string         `json:"schema,omitempty"`
	Mapping     string         `json:"mapping,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Extra       map[string]any `json:"-"`
}

// Template is a fully loaded template.
type Template struct {
	Meta      Meta
	Dir       string
	PDFPath   string
	PageCount int
	Schema    *schema.Schema
	// HasSchema is false when the template ships no schema file.
	HasSchema bool
	Mapping   *mapping.Table
}

// Store reads templates below a root directory.
type Store struct {
	paths     *PathValidator
	validator *Validator
	debugMode bool
}

// NewStore creates a template store rooted at root.
func NewStore(root string, maxFileSize int64, debugMode bool) (*Store, error) {
	paths, err := NewPathValidator(root)
	if err != nil {
		return nil, err
	}
	return &Store{
		paths:     paths,
		validator: NewValidator(maxFileSize),
		debugMode: debugMode,
	}, nil
}

// Root returns the absolute templates root.
func (s *Store) Root() string {
	return s.paths.Root()
}

func notFound(id, message string) *ferrors.FormError {
	return ferrors.NewFormError(ferrors.ErrorTypeTemplateNotFound, message).WithTemplate(id)
}

func invalid(id, message string) *ferrors.FormError {
	return ferrors.NewFormError(ferrors.ErrorTypeInvalidTemplate, message).WithTemplate(id)
}

// List returns the sorted ids of the template folders. A non-empty query
// keeps the ids whose id, title or description contain it, ignoring case.
func (s *Store) List(query string) ([]string, error) {
	entries, err := os.ReadDir(s.paths.Root())
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if query != "" && !s.matches(e.Name(), query) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) matches(id, query string) bool {
	if strings.Contains(strings.ToLower(id), query) {
		return true
	}
	meta, err := s.LoadMeta(id)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(meta.Title), query) ||
		strings.Contains(strings.ToLower(meta.Description), query)
}

// Catalog returns the metadata of every listed template that has a
// readable template.json.
func (s *Store) Catalog(query string) ([]Meta, error) {
	ids, err := s.List(query)
	if err != nil {
		return nil, err
	}

	metas := make([]Meta, 0, len(ids))
	for _, id := range ids {
		meta, err := s.LoadMeta(id)
		if err != nil {
			if s.debugMode {
				log.Printf("Skipping template %s: %v", id, err)
			}
			continue
		}
		metas = append(metas, *meta)
	}
	return metas, nil
}

// LoadMeta reads template.json without touching the other files.
func (s *Store) LoadMeta(id string) (*Meta, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}

	metaPath := filepath.Join(dir, MetaFile)
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return nil, notFound(id, fmt.Sprintf("%s not found in %s", MetaFile, dir))
	}
	if err != nil {
		return nil, invalid(id, fmt.Sprintf("failed to read %s: %v", MetaFile, err))
	}

	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, invalid(id, fmt.Sprintf("failed to parse %s: %v", MetaFile, err))
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, invalid(id, fmt.Sprintf("failed to parse %s: %v", MetaFile, err))
	}

	meta.ID = id
	if meta.Engine == "" {
		meta.Engine = DefaultEngine
	}
	if meta.Schema == "" {
		meta.Schema = DefaultSchema
	}
	for _, k := range []string{"id", "engine", "pdf", "schema", "mapping", "title", "description"} {
		delete(extra, k)
	}
	if len(extra) > 0 {
		meta.Extra = extra
	}
	return &meta, nil
}

func (s *Store) dir(id string) (string, error) {
	if err := s.paths.ValidateID(id); err != nil {
		return "", ferrors.NewFormError(ferrors.ErrorTypeSecurityRestriction, err.Error()).WithTemplate(id)
	}
	dir, err := s.paths.Resolve(s.paths.Root(), id)
	if err != nil {
		return "", ferrors.NewFormError(ferrors.ErrorTypeSecurityRestriction, err.Error()).WithTemplate(id)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", notFound(id, fmt.Sprintf("template folder not found: %s", id))
	}
	return dir, nil
}

// Load reads a template with its document, schema and rule table. A missing
// schema file yields an empty schema and a missing mapping file an empty
// table; a malformed one of either is an error.
func (s *Store) Load(id string) (*Template, error) {
	meta, err := s.LoadMeta(id)
	if err != nil {
		return nil, err
	}
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}

	if meta.Engine != DefaultEngine {
		return nil, invalid(id, fmt.Sprintf("unsupported engine %q", meta.Engine))
	}
	if meta.PDF == "" {
		return nil, invalid(id, fmt.Sprintf("%s must contain 'pdf'", MetaFile))
	}

	tpl := &Template{Meta: *meta, Dir: dir}

	if tpl.PDFPath, err = s.paths.Resolve(dir, meta.PDF); err != nil {
		return nil, ferrors.NewFormError(ferrors.ErrorTypeSecurityRestriction, err.Error()).WithTemplate(id)
	}
	if !exists(tpl.PDFPath) {
		return nil, notFound(id, fmt.Sprintf("PDF not found: %s", meta.PDF))
	}
	if tpl.PageCount, err = s.validator.ValidateFile(tpl.PDFPath); err != nil {
		return nil, invalid(id, err.Error())
	}

	if err := s.loadSchema(tpl); err != nil {
		return nil, err
	}
	if err := s.loadMapping(tpl); err != nil {
		return nil, err
	}

	if s.debugMode {
		log.Printf("Loaded template %s: %d page(s), %d schema field(s), %d rule(s)",
			id, tpl.PageCount, len(tpl.Schema.Fields), tpl.Mapping.Len())
	}
	return tpl, nil
}

func (s *Store) loadSchema(tpl *Template) error {
	id := tpl.Meta.ID
	path, err := s.paths.Resolve(tpl.Dir, tpl.Meta.Schema)
	if err != nil {
		return ferrors.NewFormError(ferrors.ErrorTypeSecurityRestriction, err.Error()).WithTemplate(id)
	}

	if !exists(path) {
		tpl.Schema = &schema.Schema{Fields: []schema.Field{}}
		return nil
	}
	if tpl.Schema, err = schema.LoadFile(path); err != nil {
		return invalid(id, err.Error())
	}
	tpl.HasSchema = true
	return nil
}

func (s *Store) loadMapping(tpl *Template) error {
	id := tpl.Meta.ID
	candidates := []string{tpl.Meta.Mapping}
	if tpl.Meta.Mapping == "" {
		candidates = append([]string{DefaultMapping}, mappingAlternates...)
	}

	for _, name := range candidates {
		path, err := s.paths.Resolve(tpl.Dir, name)
		if err != nil {
			return ferrors.NewFormError(ferrors.ErrorTypeSecurityRestriction, err.Error()).WithTemplate(id)
		}
		if !exists(path) {
			continue
		}
		table, err := mapping.LoadFile(path)
		if err != nil {
			return ferrors.WrapError(ferrors.ErrorTypeInvalidRule, err).WithTemplate(id)
		}
		if s.debugMode {
			for key, defects := range table.Defects() {
				log.Printf("Template %s: rule %q loaded with defects: %v", id, key, defects)
			}
		}
		tpl.Mapping = table
		return nil
	}

	tpl.Mapping = mapping.NewTable()
	return nil
}
