package mapping

import (
	"fmt"
	"log"
	"strings"

	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
)

// Result is the outcome of resolving form data against a table.
type Result struct {
	Values   Values                   `json:"values"`
	Overlays []SignatureOverlay       `json:"overlays"`
	Warnings *ferrors.ErrorCollection `json:"warnings"`
}

// Resolver turns form data into field values.
type Resolver struct {
	debugMode bool
}

// NewResolver creates a new resolver
func NewResolver(debugMode bool) *Resolver {
	return &Resolver{debugMode: debugMode}
}

// Resolve resolves data against table with a non-debug resolver.
func Resolve(data FormData, table *Table) *Result {
	return NewResolver(false).Resolve(data, table)
}

// Resolve applies every rule of table whose key is present in data.
//
// Keys missing from data are skipped and write nothing. Rules never fail:
// data that does not fit a rule degrades that rule alone and is recorded in
// Result.Warnings. A rule decoded with defects adds one InvalidRule warning
// per defect and runs on the attributes that did decode. When several keys
// write the same field, the later table entry wins.
func (r *Resolver) Resolve(data FormData, table *Table) *Result {
	res := &Result{
		Values:   make(Values),
		Overlays: make([]SignatureOverlay, 0),
		Warnings: ferrors.NewErrorCollection(),
	}

	for _, entry := range table.Entries() {
		value, ok := data[entry.Key]
		if !ok {
			continue
		}
		for _, defect := range entry.Defects {
			res.Warnings.Add(ferrors.NewFormError(ferrors.ErrorTypeInvalidRule, defect).WithKey(entry.Key))
		}
		r.apply(res, entry.Key, entry.Rule, value)
	}

	if r.debugMode {
		log.Printf("Resolved %d rule(s) into %d field value(s), %d overlay(s); %s",
			table.Len(), len(res.Values), len(res.Overlays), res.Warnings.Summary())
	}

	return res
}

func (r *Resolver) apply(res *Result, key string, rule Rule, value any) {
	w := writer{res: res, key: key}

	switch rule := rule.(type) {
	case Direct:
		w.set(rule.Field, Stringify(value))

	case Fanout:
		text := Stringify(value)
		for _, field := range rule.Targets {
			w.set(field, text)
		}

	case Checkbox:
		if Truthy(value) {
			w.set(rule.Field, rule.CheckedValue)
		} else {
			w.set(rule.Field, rule.UncheckedValue)
		}

	case Radio:
		if state, ok := rule.ValueMap[Stringify(value)]; ok {
			w.set(rule.Field, state)
		} else {
			w.set(rule.Field, value)
		}

	case RadioGroup:
		resolveRadioGroup(w, rule, Stringify(value))

	case Split:
		resolveSplit(w, rule, Digits(Stringify(value)))

	case Spread:
		resolveSpread(w, rule, Stringify(value))

	case ValueToCheckboxes:
		resolveValueToCheckboxes(w, rule, Stringify(value))

	case Signature:
		resolveSignature(w, rule, value)

	case TINSplit:
		resolveTINSplit(w, rule, Digits(Stringify(value)))

	case Fallback:
		if rule.Field == "" {
			w.warn(ferrors.ErrorTypeMissingField, fmt.Sprintf("rule type %q has no field", rule.Type))
			return
		}
		w.set(rule.Field, value)

	default:
		w.warn(ferrors.ErrorTypeInvalidRule, fmt.Sprintf("unsupported rule %T", rule))
	}

	if r.debugMode {
		log.Printf("Rule %q (%s) applied", key, rule.Kind())
	}
}

// writer records values and warnings for one logical key.
type writer struct {
	res *Result
	key string
}

func (w writer) set(field string, value any) {
	if field == "" {
		w.warn(ferrors.ErrorTypeMissingField, "rule names an empty field")
		return
	}
	w.res.Values[field] = value
}

func (w writer) warn(errorType ferrors.ErrorType, message string) {
	w.res.Warnings.Add(ferrors.NewFormError(errorType, message).WithKey(w.key))
}

func resolveRadioGroup(w writer, rule RadioGroup, selected string) {
	// every option goes off first so an earlier selection never survives
	for _, ch := range rule.Choices {
		if ch.Field != "" {
			w.res.Values[ch.Field] = rule.OffValue
		}
	}

	for _, ch := range rule.Choices {
		if ch.Value == selected {
			if ch.Field != "" {
				w.res.Values[ch.Field] = ch.ExportOn
			}
			return
		}
	}
	w.warn(ferrors.ErrorTypeUnmatchedValue, fmt.Sprintf("no choice matches %q", selected))
}

func resolveSplit(w writer, rule Split, digits string) {
	if len(rule.Targets) != len(rule.Pattern) {
		w.warn(ferrors.ErrorTypePatternMismatch,
			fmt.Sprintf("%d field(s) but %d pattern segment(s)", len(rule.Targets), len(rule.Pattern)))
		return
	}

	pos := 0
	for i, n := range rule.Pattern {
		if n < 0 {
			n = 0
		}
		end := min(pos+n, len(digits))
		w.set(rule.Targets[i], digits[pos:end])
		pos = end
	}
}

func resolveSpread(w writer, rule Spread, text string) {
	var tokens []string
	if rule.Separator == "" {
		tokens = []string{text}
	} else {
		tokens = strings.Split(text, rule.Separator)
	}

	i := 0
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if i >= len(rule.Targets) {
			break
		}
		w.set(rule.Targets[i], tok)
		i++
	}
}

func resolveValueToCheckboxes(w writer, rule ValueToCheckboxes, selected string) {
	for _, field := range rule.AllFields {
		if field != "" {
			w.res.Values[field] = rule.OffValue
		}
	}

	states, ok := rule.Mapping[selected]
	if !ok {
		w.warn(ferrors.ErrorTypeUnmatchedValue, fmt.Sprintf("no checkbox states for %q", selected))
		return
	}
	for field, state := range states {
		w.set(field, state)
	}
}

func resolveSignature(w writer, rule Signature, value any) {
	if !IsImageReference(value) {
		if rule.Field != "" {
			w.set(rule.Field, Stringify(value))
		}
		return
	}

	if rule.Field != "" {
		w.set(rule.Field, "")
	}

	img, err := DecodeImageReference(value.(string))
	if err != nil {
		w.res.Warnings.Add(ferrors.WrapError(ferrors.ErrorTypeInvalidImage, err).
			WithKey(w.key).WithField(rule.Field))
		return
	}

	w.res.Overlays = append(w.res.Overlays, SignatureOverlay{
		Field: rule.Field,
		Page:  rule.Page,
		Rect:  rule.Rect,
		Image: img,
	})
}

func resolveTINSplit(w writer, rule TINSplit, digits string) {
	if len(digits) != 9 {
		w.warn(ferrors.ErrorTypeInvalidTIN, fmt.Sprintf("expected 9 digits, got %d", len(digits)))
		switch {
		case len(rule.SSN) > 0:
			w.set(rule.SSN[0], digits)
		case len(rule.EIN) > 0:
			w.set(rule.EIN[0], digits)
		}
		return
	}

	wrote := false
	if (rule.Prefer == PreferAuto || rule.Prefer == PreferSSN) && len(rule.SSN) >= 3 {
		w.set(rule.SSN[0], digits[0:3])
		w.set(rule.SSN[1], digits[3:5])
		w.set(rule.SSN[2], digits[5:9])
		wrote = true
	}
	// under auto both groups are written when both are declared
	if (rule.Prefer == PreferAuto || rule.Prefer == PreferEIN) && len(rule.EIN) >= 2 {
		w.set(rule.EIN[0], digits[0:2])
		w.set(rule.EIN[1], digits[2:9])
		wrote = true
	}

	if !wrote {
		w.warn(ferrors.ErrorTypePatternMismatch,
			fmt.Sprintf("prefer %q has no usable field group (ssn=%d, ein=%d)", rule.Prefer, len(rule.SSN), len(rule.EIN)))
	}
}
