package mapping

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRule reports a rule whose shape is not a string, a list of
// strings, or an object. It is the only error the mapping layer returns.
// Attributes of the wrong shape inside an object rule do not produce it;
// they are recorded as defects on the table entry instead.
var ErrInvalidRule = errors.New("invalid mapping rule")

// UnmarshalYAML implements custom YAML unmarshaling for Table.
// The document must be a mapping from logical key to rule; file order is kept.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: mapping table must be an object, got %s", ErrInvalidRule, nodeKindName(node.Kind))
	}

	table := NewTable()
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("%w: invalid logical key at line %d: %v", ErrInvalidRule, node.Content[i].Line, err)
		}

		rule, defects, err := decodeRule(node.Content[i+1])
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		table.set(key, rule, defects)
	}

	*t = *table
	return nil
}

// decodeRule converts one rule node into its variant:
//   - string: Direct
//   - list of strings: Fanout
//   - object: selected by its "type" entry, Fallback when unrecognized
func decodeRule(node *yaml.Node) (Rule, []string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() != "!!str" {
			return nil, nil, fmt.Errorf("%w: expected string, list or object, got %s at line %d",
				ErrInvalidRule, node.ShortTag(), node.Line)
		}
		return Direct{Field: node.Value}, nil, nil

	case yaml.SequenceNode:
		var fields []string
		if err := node.Decode(&fields); err != nil {
			return nil, nil, fmt.Errorf("%w: list rule must contain field names: %v", ErrInvalidRule, err)
		}
		return Fanout{Targets: fields}, nil, nil

	case yaml.MappingNode:
		rule, defects := decodeObjectRule(node)
		return rule, defects, nil

	default:
		return nil, nil, fmt.Errorf("%w: expected string, list or object, got %s at line %d",
			ErrInvalidRule, nodeKindName(node.Kind), node.Line)
	}
}

// ruleObject gives keyed access to the entries of an object rule.
type ruleObject struct {
	entries map[string]*yaml.Node
	defects []string
}

func newRuleObject(node *yaml.Node) *ruleObject {
	obj := &ruleObject{entries: make(map[string]*yaml.Node, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		obj.entries[node.Content[i].Value] = node.Content[i+1]
	}
	return obj
}

// decode fills out from the entry named key when present and not null.
// An entry of the wrong shape is recorded as a defect and reported as absent;
// callers discard whatever out may hold then.
func (o *ruleObject) decode(key string, out any) bool {
	n, ok := o.entries[key]
	if !ok || n.ShortTag() == "!!null" {
		return false
	}
	if err := n.Decode(out); err != nil {
		o.defect("attribute %q has the wrong shape at line %d: %v", key, n.Line, err)
		return false
	}
	return true
}

func (o *ruleObject) defect(format string, args ...any) {
	o.defects = append(o.defects, fmt.Sprintf(format, args...))
}

func (o *ruleObject) str(key, fallback string) string {
	var s string
	if o.decode(key, &s) {
		return s
	}
	return fallback
}

func (o *ruleObject) list(key string) []string {
	var s []string
	if !o.decode(key, &s) {
		return nil
	}
	return s
}

type choiceSpec struct {
	Value    *string `yaml:"value"`
	Field    string  `yaml:"field"`
	ExportOn *string `yaml:"export_on"`
}

// decodeObjectRule never fails: attributes that cannot be decoded keep their
// zero value and are returned as defects.
func decodeObjectRule(node *yaml.Node) (Rule, []string) {
	obj := newRuleObject(node)
	ruleType := obj.str("type", "")

	var rule Rule
	switch RuleKind(ruleType) {
	case KindCheckbox:
		rule = Checkbox{
			Field:          obj.str("field", ""),
			CheckedValue:   obj.str("checked_value", DefaultCheckedValue),
			UncheckedValue: obj.str("unchecked_value", DefaultUncheckedValue),
		}

	case KindRadio:
		valueMap := map[string]string{}
		if !obj.decode("value_map", &valueMap) {
			valueMap = map[string]string{}
		}
		rule = Radio{Field: obj.str("field", ""), ValueMap: valueMap}

	case KindRadioGroup:
		var specs []choiceSpec
		if !obj.decode("choices", &specs) {
			specs = nil
		}
		choices := make([]Choice, 0, len(specs))
		for _, spec := range specs {
			ch := Choice{Field: spec.Field, ExportOn: DefaultExportOn}
			if spec.ExportOn != nil {
				ch.ExportOn = *spec.ExportOn
			}
			if spec.Value != nil {
				ch.Value = *spec.Value
			}
			choices = append(choices, ch)
		}
		rule = RadioGroup{Choices: choices, OffValue: obj.str("off_value", DefaultOffValue)}

	case KindSplit:
		var pattern []int
		if !obj.decode("pattern", &pattern) {
			pattern = nil
		}
		rule = Split{Targets: obj.list("fields"), Pattern: pattern}

	case KindSpread:
		rule = Spread{Targets: obj.list("fields"), Separator: obj.str("separator", DefaultSeparator)}

	case KindValueToCheckboxes:
		states := map[string]map[string]string{}
		if !obj.decode("mapping", &states) {
			states = map[string]map[string]string{}
		}
		rule = ValueToCheckboxes{
			AllFields: obj.list("all_fields"),
			Mapping:   states,
			OffValue:  obj.str("off_value", DefaultOffValue),
		}

	case KindSignature:
		sig := Signature{Field: obj.str("field", "")}
		if !obj.decode("page", &sig.Page) {
			sig.Page = 0
		}
		var rect []float64
		if obj.decode("rect", &rect) {
			if len(rect) == 4 {
				copy(sig.Rect[:], rect)
			} else {
				obj.defect("signature rect needs 4 numbers, got %d", len(rect))
			}
		}
		rule = sig

	case KindTINSplit:
		rule = TINSplit{
			SSN:    obj.list("ssn"),
			EIN:    obj.list("ein"),
			Prefer: TINPreference(obj.str("prefer", string(PreferAuto))),
		}

	default:
		rule = Fallback{Field: obj.str("field", ""), Type: ruleType}
	}

	return rule, obj.defects
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "object"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return fmt.Sprintf("kind %d", k)
	}
}

// Parse decodes a mapping table from JSON or YAML data.
// Empty input yields an empty table.
func Parse(data []byte) (*Table, error) {
	table := NewTable()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if doc.Kind == 0 || (doc.Kind == yaml.DocumentNode && len(doc.Content) == 0) {
		return table, nil
	}

	if err := table.UnmarshalYAML(&doc); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadFile loads and parses a mapping file from the given path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
	}

	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}
	return table, nil
}
