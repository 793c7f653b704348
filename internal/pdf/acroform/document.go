// Package acroform reads and writes the interactive form of a PDF document
// with pdfcpu: it lists the widgets a document exposes, writes field values
// into them and stamps signature images and debug labels onto pages.
package acroform

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-filler/internal/fieldname"
	"github.com/a3tai/mcp-pdf-filler/internal/schema"
)

// Field flags (Ff) used when filling buttons.
const (
	flagReadOnly   = 1 << 0
	flagRadio      = 1 << 15
	flagPushbutton = 1 << 16
)

// maxDepth bounds the field tree walk on malformed documents.
const maxDepth = 32

// Widget is one widget annotation of a field.
type Widget struct {
	Page   int         // 0-based
	Rect   schema.Rect // normalized so that x1 <= x2 and y1 <= y2
	States []string    // appearance states other than Off, sorted
	State  string      // current AS
	dict   types.Dict
}

// Field is a node of the AcroForm field tree.
type Field struct {
	Name     string // fully qualified
	Partial  string // T entry
	Type     string // FT, inherited from ancestors when absent
	Flags    int
	Value    string
	Terminal bool
	Widgets  []Widget
	dict     types.Dict
}

// Kind returns the fill semantics of the field. Non-terminal fields are
// containers and report unknown.
func (f *Field) Kind() schema.Kind {
	if !f.Terminal {
		return schema.KindUnknown
	}
	return schema.KindFromFieldType(f.Type)
}

// IsPushbutton reports whether the field is a button that holds no value.
func (f *Field) IsPushbutton() bool {
	return f.Type == "Btn" && f.Flags&flagPushbutton != 0
}

// IsRadio reports whether the field is a radio button group.
func (f *Field) IsRadio() bool {
	return f.Type == "Btn" && f.Flags&flagRadio != 0
}

// ReadOnly reports whether the document marks the field read-only.
func (f *Field) ReadOnly() bool {
	return f.Flags&flagReadOnly != 0
}

// OnValues returns the union of the widget appearance states other than Off.
func (f *Field) OnValues() []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range f.Widgets {
		for _, s := range w.States {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Rects returns the placed rectangles of the field's widgets.
func (f *Field) Rects() []schema.PlacedRect {
	rects := make([]schema.PlacedRect, 0, len(f.Widgets))
	for _, w := range f.Widgets {
		rects = append(rects, schema.PlacedRect{PageIndex: w.Page, Rect: w.Rect})
	}
	return rects
}

// Document is an opened PDF with its form field tree.
type Document struct {
	ctx       *model.Context
	acroForm  types.Dict
	fields    []*Field
	debugMode bool
}

// fieldAttrs are the inheritable entries of the field tree.
type fieldAttrs struct {
	name  string
	ft    string
	flags int
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open reads a document from path.
func Open(path string, debugMode bool) (*Document, error) {
	if debugMode {
		log.Printf("Opening form document: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF file: %w", err)
	}
	return Read(bytes.NewReader(data), debugMode)
}

// Read reads a document from rs.
func Read(rs io.ReadSeeker, debugMode bool) (*Document, error) {
	ctx, err := api.ReadContext(rs, newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	doc := &Document{ctx: ctx, debugMode: debugMode}
	if err := doc.load(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) load() error {
	rootDict, err := d.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		if d.debugMode {
			log.Printf("No AcroForm dictionary found in document")
		}
		return nil
	}

	acroFormDict, err := d.ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroFormDict == nil {
		return nil
	}
	d.acroForm = acroFormDict

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		if d.debugMode {
			log.Printf("No Fields array found in AcroForm")
		}
		return nil
	}

	fieldsArray, err := d.ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	pages := d.pageLookup(rootDict)
	visited := make(map[int]bool)
	for _, obj := range fieldsArray {
		d.walk(obj, fieldAttrs{}, pages, visited, 0)
	}

	if d.debugMode {
		log.Printf("Loaded %d form field(s), %d page(s)", len(d.fields), d.ctx.PageCount)
	}
	return nil
}

// pageLookup maps page and annotation object numbers to 0-based page indexes.
type pageLookup struct {
	byPage  map[int]int
	byAnnot map[int]int
}

func objectNumber(obj types.Object) (int, bool) {
	switch ref := obj.(type) {
	case types.IndirectRef:
		return int(ref.ObjectNumber), true
	case *types.IndirectRef:
		if ref != nil {
			return int(ref.ObjectNumber), true
		}
	}
	return 0, false
}

func (d *Document) pageLookup(rootDict types.Dict) pageLookup {
	lookup := pageLookup{byPage: make(map[int]int), byAnnot: make(map[int]int)}

	pagesObj, found := rootDict.Find("Pages")
	if !found {
		return lookup
	}

	var refs []types.Object
	d.collectPages(pagesObj, &refs, make(map[int]bool), 0)

	for i, ref := range refs {
		if nr, ok := objectNumber(ref); ok {
			lookup.byPage[nr] = i
		}
		pageDict, err := d.ctx.DereferenceDict(ref)
		if err != nil || pageDict == nil {
			continue
		}
		annotsObj, found := pageDict.Find("Annots")
		if !found {
			continue
		}
		annots, err := d.ctx.DereferenceArray(annotsObj)
		if err != nil {
			continue
		}
		for _, a := range annots {
			if nr, ok := objectNumber(a); ok {
				lookup.byAnnot[nr] = i
			}
		}
	}
	return lookup
}

func (d *Document) collectPages(obj types.Object, refs *[]types.Object, visited map[int]bool, depth int) {
	if depth > maxDepth {
		return
	}
	if nr, ok := objectNumber(obj); ok {
		if visited[nr] {
			return
		}
		visited[nr] = true
	}

	node, err := d.ctx.DereferenceDict(obj)
	if err != nil || node == nil {
		return
	}

	kidsObj, found := node.Find("Kids")
	if !found {
		*refs = append(*refs, obj)
		return
	}
	kids, err := d.ctx.DereferenceArray(kidsObj)
	if err != nil {
		return
	}
	for _, kid := range kids {
		d.collectPages(kid, refs, visited, depth+1)
	}
}

func (d *Document) walk(obj types.Object, parent fieldAttrs, pages pageLookup, visited map[int]bool, depth int) {
	if depth > maxDepth {
		return
	}
	objNr, hasNr := objectNumber(obj)
	if hasNr {
		if visited[objNr] {
			return
		}
		visited[objNr] = true
	}

	dict, err := d.ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		if d.debugMode {
			log.Printf("Skipping field object: %v", err)
		}
		return
	}

	field := &Field{dict: dict}
	attrs := parent

	if nameObj, found := dict.Find("T"); found {
		if partial, err := d.ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil {
			field.Partial = partial
		}
	}
	switch {
	case parent.name == "":
		attrs.name = field.Partial
	case field.Partial != "":
		attrs.name = parent.name + fieldname.Separator + field.Partial
	}

	if ftObj, found := dict.Find("FT"); found {
		if ft, err := d.ctx.DereferenceName(ftObj, model.V10, nil); err == nil {
			attrs.ft = string(ft)
		}
	}
	if flagsObj, found := dict.Find("Ff"); found {
		if flags, err := d.ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
			attrs.flags = int(*flags)
		}
	}

	field.Name = attrs.name
	field.Type = attrs.ft
	field.Flags = attrs.flags
	field.Value = d.value(dict)

	if _, found := dict.Find("Rect"); found {
		field.Widgets = append(field.Widgets, d.widget(dict, objNr, hasNr, pages))
	}

	var kidFields []types.Object
	if kidsObj, found := dict.Find("Kids"); found {
		if kids, err := d.ctx.DereferenceArray(kidsObj); err == nil {
			for _, kid := range kids {
				kidDict, err := d.ctx.DereferenceDict(kid)
				if err != nil || kidDict == nil {
					continue
				}
				if _, named := kidDict.Find("T"); named {
					kidFields = append(kidFields, kid)
					continue
				}
				kidNr, kidHasNr := objectNumber(kid)
				field.Widgets = append(field.Widgets, d.widget(kidDict, kidNr, kidHasNr, pages))
			}
		}
	}

	field.Terminal = len(kidFields) == 0
	if field.Name != "" && (field.Terminal || len(field.Widgets) > 0) {
		d.fields = append(d.fields, field)
		if d.debugMode {
			log.Printf("Field %s (type: %s, widgets: %d)", field.Name, field.Type, len(field.Widgets))
		}
	}

	for _, kid := range kidFields {
		d.walk(kid, attrs, pages, visited, depth+1)
	}
}

func (d *Document) value(dict types.Dict) string {
	valueObj, found := dict.Find("V")
	if !found {
		return ""
	}
	if name, err := d.ctx.DereferenceName(valueObj, model.V10, nil); err == nil && name != "" {
		return "/" + string(name)
	}
	if s, err := d.ctx.DereferenceStringOrHexLiteral(valueObj, model.V10, nil); err == nil {
		return s
	}
	return ""
}

func (d *Document) widget(dict types.Dict, objNr int, hasNr bool, pages pageLookup) Widget {
	w := Widget{dict: dict}

	if rectObj, found := dict.Find("Rect"); found {
		if arr, err := d.ctx.DereferenceArray(rectObj); err == nil && len(arr) == 4 {
			var c [4]float64
			for i, o := range arr {
				if f, err := d.ctx.DereferenceNumber(o); err == nil {
					c[i] = f
				}
			}
			w.Rect = schema.Rect{min(c[0], c[2]), min(c[1], c[3]), max(c[0], c[2]), max(c[1], c[3])}
		}
	}

	if page, ok := pages.byAnnot[objNr]; hasNr && ok {
		w.Page = page
	} else if pObj, found := dict.Find("P"); found {
		if nr, ok := objectNumber(pObj); ok {
			w.Page = pages.byPage[nr]
		}
	}

	if asObj, found := dict.Find("AS"); found {
		if as, err := d.ctx.DereferenceName(asObj, model.V10, nil); err == nil {
			w.State = string(as)
		}
	}

	w.States = d.appearanceStates(dict)
	return w
}

// appearanceStates lists the keys of the normal appearance dictionary
// other than Off.
func (d *Document) appearanceStates(dict types.Dict) []string {
	apObj, found := dict.Find("AP")
	if !found {
		return nil
	}
	ap, err := d.ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return nil
	}
	nObj, found := ap.Find("N")
	if !found {
		return nil
	}
	n, err := d.ctx.DereferenceDict(nObj)
	if err != nil || n == nil {
		return nil
	}

	var states []string
	for k := range n {
		if k != "Off" {
			states = append(states, k)
		}
	}
	sort.Strings(states)
	return states
}

// Fields returns the terminal fields and the containers that carry widgets,
// in document order.
func (d *Document) Fields() []*Field {
	return d.fields
}

// Field returns the field with the given fully qualified name.
func (d *Document) Field(name string) (*Field, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Names returns the fully qualified names of the terminal fields.
func (d *Document) Names() fieldname.NameSet {
	set := make(fieldname.NameSet, len(d.fields))
	for _, f := range d.fields {
		if f.Terminal {
			set[f.Name] = struct{}{}
		}
	}
	return set
}

// Schema describes the document's widgets.
func (d *Document) Schema() *schema.Schema {
	s := &schema.Schema{Fields: make([]schema.Field, 0, len(d.fields))}
	for _, f := range d.fields {
		s.Fields = append(s.Fields, schema.Field{
			ID:       f.Name,
			Kind:     f.Kind(),
			OnValues: f.OnValues(),
			Rects:    f.Rects(),
		})
	}
	return s
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// HasForm reports whether the document carries an AcroForm dictionary.
func (d *Document) HasForm() bool {
	return d.acroForm != nil
}
