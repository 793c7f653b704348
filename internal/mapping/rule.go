// Package mapping turns named answers into the field states the widgets of a
// fillable document expect, driven by a per-template table of rules.
package mapping

import "sort"

// RuleKind identifies the variant of a Rule.
type RuleKind string

const (
	KindDirect            RuleKind = "direct"
	KindFanout            RuleKind = "fanout"
	KindCheckbox          RuleKind = "checkbox"
	KindRadio             RuleKind = "radio"
	KindRadioGroup        RuleKind = "radio_group"
	KindSplit             RuleKind = "split"
	KindSpread            RuleKind = "spread"
	KindValueToCheckboxes RuleKind = "value_to_checkboxes"
	KindSignature         RuleKind = "signature"
	KindTINSplit          RuleKind = "tin_split"
	KindFallback          RuleKind = "fallback"
)

// Default widget states used when a rule omits them.
const (
	DefaultCheckedValue   = "/Yes"
	DefaultUncheckedValue = "/Off"
	DefaultOffValue       = "/Off"
	DefaultExportOn       = "/1"
	DefaultSeparator      = ","
)

// Rule is one mapping rule. The set of implementations is closed; the
// resolver switches over them exhaustively.
type Rule interface {
	Kind() RuleKind
	// Fields lists every widget name the rule may write.
	Fields() []string
	isRule()
}

// Direct writes the stringified answer into one field.
type Direct struct {
	Field string
}

// Fanout writes the same stringified answer into every listed field.
type Fanout struct {
	Targets []string
}

// Checkbox writes CheckedValue when the answer is truthy, else UncheckedValue.
type Checkbox struct {
	Field          string
	CheckedValue   string
	UncheckedValue string
}

// Radio writes ValueMap[answer] into one field, or the answer itself when
// the map has no entry for it.
type Radio struct {
	Field    string
	ValueMap map[string]string
}

// Choice is one option of a RadioGroup.
type Choice struct {
	Value    string
	Field    string
	ExportOn string
}

// RadioGroup materializes an exclusive choice as independent widgets.
type RadioGroup struct {
	Choices  []Choice
	OffValue string
}

// Split partitions the digits of the answer into consecutive runs of the
// given lengths.
type Split struct {
	Targets []string
	Pattern []int
}

// Spread partitions the answer on Separator.
type Spread struct {
	Targets   []string
	Separator string
}

// ValueToCheckboxes switches every field in AllFields to OffValue and then
// applies the per-field states Mapping lists for the answer.
type ValueToCheckboxes struct {
	AllFields []string
	Mapping   map[string]map[string]string
	OffValue  string
}

// Signature writes a typed signature into Field, or turns an embedded image
// into an overlay placed at Rect on Page.
type Signature struct {
	Field string
	Page  int
	Rect  [4]float64
}

// TINPreference selects which widget group of a TINSplit is written.
type TINPreference string

const (
	PreferAuto TINPreference = "auto"
	PreferSSN  TINPreference = "ssn"
	PreferEIN  TINPreference = "ein"
)

// TINSplit routes a 9-digit taxpayer id to SSN-shaped (3-2-4) and/or
// EIN-shaped (2-7) widget groups.
type TINSplit struct {
	SSN    []string
	EIN    []string
	Prefer TINPreference
}

// Fallback writes the raw answer into Field. It stands in for object rules
// without a recognized type.
type Fallback struct {
	Field string
	Type  string // the unrecognized type, if any
}

func (Direct) Kind() RuleKind            { return KindDirect }
func (Fanout) Kind() RuleKind            { return KindFanout }
func (Checkbox) Kind() RuleKind          { return KindCheckbox }
func (Radio) Kind() RuleKind             { return KindRadio }
func (RadioGroup) Kind() RuleKind        { return KindRadioGroup }
func (Split) Kind() RuleKind             { return KindSplit }
func (Spread) Kind() RuleKind            { return KindSpread }
func (ValueToCheckboxes) Kind() RuleKind { return KindValueToCheckboxes }
func (Signature) Kind() RuleKind         { return KindSignature }
func (TINSplit) Kind() RuleKind          { return KindTINSplit }
func (Fallback) Kind() RuleKind          { return KindFallback }

func (r Direct) Fields() []string    { return nonEmpty(r.Field) }
func (r Fanout) Fields() []string    { return nonEmpty(r.Targets...) }
func (r Checkbox) Fields() []string  { return nonEmpty(r.Field) }
func (r Radio) Fields() []string     { return nonEmpty(r.Field) }
func (r Split) Fields() []string     { return nonEmpty(r.Targets...) }
func (r Spread) Fields() []string    { return nonEmpty(r.Targets...) }
func (r Signature) Fields() []string { return nonEmpty(r.Field) }
func (r Fallback) Fields() []string  { return nonEmpty(r.Field) }

func (r RadioGroup) Fields() []string {
	names := make([]string, 0, len(r.Choices))
	for _, ch := range r.Choices {
		names = append(names, ch.Field)
	}
	return nonEmpty(names...)
}

func (r ValueToCheckboxes) Fields() []string {
	names := append([]string(nil), r.AllFields...)
	var extra []string
	for _, states := range r.Mapping {
		for field := range states {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	return nonEmpty(append(names, extra...)...)
}

func (r TINSplit) Fields() []string {
	names := append([]string(nil), r.SSN...)
	return nonEmpty(append(names, r.EIN...)...)
}

func (Direct) isRule()            {}
func (Fanout) isRule()            {}
func (Checkbox) isRule()          {}
func (Radio) isRule()             {}
func (RadioGroup) isRule()        {}
func (Split) isRule()             {}
func (Spread) isRule()            {}
func (ValueToCheckboxes) isRule() {}
func (Signature) isRule()         {}
func (TINSplit) isRule()          {}
func (Fallback) isRule()          {}

// nonEmpty returns the distinct non-empty names in first-seen order.
func nonEmpty(names ...string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Entry binds a logical answer key to its rule. Defects lists the
// attributes that could not be decoded; the rule runs without them.
type Entry struct {
	Key     string
	Rule    Rule
	Defects []string
}

// Table is an ordered collection of rules keyed by logical answer key.
// Later entries for a key replace earlier ones in place.
type Table struct {
	entries []Entry
	index   map[string]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Set binds key to rule.
func (t *Table) Set(key string, rule Rule) {
	t.set(key, rule, nil)
}

func (t *Table) set(key string, rule Rule, defects []string) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	entry := Entry{Key: key, Rule: rule, Defects: defects}
	if i, ok := t.index[key]; ok {
		t.entries[i] = entry
		return
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, entry)
}

// Defects returns the decoding defects of every entry, keyed by logical key.
func (t *Table) Defects() map[string][]string {
	out := make(map[string][]string)
	for _, e := range t.Entries() {
		if len(e.Defects) > 0 {
			out[e.Key] = e.Defects
		}
	}
	return out
}

// Get returns the rule bound to key.
func (t *Table) Get(key string) (Rule, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return t.entries[i].Rule, true
}

// Entries returns the entries in table order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return t.entries
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Keys returns the logical keys in table order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, t.Len())
	for _, e := range t.Entries() {
		keys = append(keys, e.Key)
	}
	return keys
}

// Fields returns every widget name any rule may write, in table order.
func (t *Table) Fields() []string {
	var names []string
	for _, e := range t.Entries() {
		names = append(names, e.Rule.Fields()...)
	}
	return nonEmpty(names...)
}
