package mapping

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
)

func tableOf(entries ...Entry) *Table {
	t := NewTable()
	for _, e := range entries {
		t.Set(e.Key, e.Rule)
	}
	return t
}

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func fullTable() *Table {
	return tableOf(
		Entry{Key: "name", Rule: Direct{Field: "f_name"}},
		Entry{Key: "copies", Rule: Fanout{Targets: []string{"c1", "c2"}}},
		Entry{Key: "agree", Rule: Checkbox{Field: "cb", CheckedValue: "/Yes", UncheckedValue: "/Off"}},
		Entry{Key: "color", Rule: Radio{Field: "r", ValueMap: map[string]string{"red": "/0"}}},
		Entry{Key: "status", Rule: RadioGroup{OffValue: "/Off", Choices: []Choice{
			{Value: "single", Field: "s1", ExportOn: "/1"},
			{Value: "married", Field: "s2", ExportOn: "/2"},
		}}},
		Entry{Key: "phone", Rule: Split{Targets: []string{"p1", "p2"}, Pattern: []int{3, 4}}},
		Entry{Key: "tags", Rule: Spread{Targets: []string{"t1", "t2"}, Separator: ","}},
		Entry{Key: "kind", Rule: ValueToCheckboxes{AllFields: []string{"k1", "k2"}, OffValue: "/Off",
			Mapping: map[string]map[string]string{"a": {"k1": "/On"}}}},
		Entry{Key: "sig", Rule: Signature{Field: "sig_text", Page: 1, Rect: [4]float64{10, 20, 110, 60}}},
		Entry{Key: "tin", Rule: TINSplit{SSN: []string{"s_a", "s_b", "s_c"}, EIN: []string{"e_a", "e_b"}, Prefer: PreferAuto}},
		Entry{Key: "extra", Rule: Fallback{Field: "x", Type: "text"}},
	)
}

func TestResolve_EmptyDataWritesNothing(t *testing.T) {
	res := Resolve(FormData{}, fullTable())

	assert.Empty(t, res.Values)
	assert.Empty(t, res.Overlays)
	assert.True(t, res.Warnings.Empty())
}

func TestResolve_NilTable(t *testing.T) {
	res := Resolve(FormData{"a": "b"}, nil)
	assert.Empty(t, res.Values)
}

func TestResolve_Direct(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"string", "Ada", "Ada"},
		{"nil", nil, ""},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"whole float", 3.0, "3"},
		{"fraction", 2.5, "2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(FormData{"name": tt.value}, fullTable())
			assert.Equal(t, Values{"f_name": tt.expected}, res.Values)
		})
	}
}

func TestResolve_Fanout(t *testing.T) {
	res := Resolve(FormData{"copies": 7}, fullTable())
	assert.Equal(t, Values{"c1": "7", "c2": "7"}, res.Values)
}

func TestResolve_Checkbox(t *testing.T) {
	table := tableOf(Entry{Key: "agree", Rule: Checkbox{Field: "cb", CheckedValue: "/1", UncheckedValue: "/Off"}})

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"false", false, "/Off"},
		{"true", true, "/1"},
		{"truthy int", 1, "/1"},
		{"zero", 0, "/Off"},
		{"empty string", "", "/Off"},
		{"non-empty string", "no", "/1"},
		{"nil", nil, "/Off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(FormData{"agree": tt.value}, table)
			assert.Equal(t, tt.expected, res.Values["cb"])
		})
	}
}

func TestResolve_Radio(t *testing.T) {
	res := Resolve(FormData{"color": "red"}, fullTable())
	assert.Equal(t, "/0", res.Values["r"])

	// unmapped answers pass through untouched
	res = Resolve(FormData{"color": "/Choice3"}, fullTable())
	assert.Equal(t, "/Choice3", res.Values["r"])
}

func TestResolve_RadioGroup(t *testing.T) {
	table := fullTable()

	first := Resolve(FormData{"status": "married"}, table)
	assert.Equal(t, Values{"s1": "/Off", "s2": "/2"}, first.Values)

	again := Resolve(FormData{"status": "married"}, table)
	assert.Equal(t, first.Values, again.Values)

	// re-resolving into the same value set leaves exactly one widget on
	merged := first.Values
	for k, v := range Resolve(FormData{"status": "single"}, table).Values {
		merged[k] = v
	}
	on := 0
	for _, f := range []string{"s1", "s2"} {
		if merged[f] != "/Off" {
			on++
		}
	}
	assert.Equal(t, 1, on)
	assert.Equal(t, "/1", merged["s1"])
}

func TestResolve_RadioGroupUnmatched(t *testing.T) {
	res := Resolve(FormData{"status": "widowed"}, fullTable())

	assert.Equal(t, Values{"s1": "/Off", "s2": "/Off"}, res.Values)
	assert.Len(t, res.Warnings.ByType(ferrors.ErrorTypeUnmatchedValue), 1)
}

func TestResolve_RadioGroupFirstMatchWins(t *testing.T) {
	table := tableOf(Entry{Key: "q", Rule: RadioGroup{OffValue: "/Off", Choices: []Choice{
		{Value: "yes", Field: "a", ExportOn: "/1"},
		{Value: "yes", Field: "b", ExportOn: "/1"},
	}}})

	res := Resolve(FormData{"q": "yes"}, table)
	assert.Equal(t, Values{"a": "/1", "b": "/Off"}, res.Values)
}

func TestResolve_Split(t *testing.T) {
	table := tableOf(Entry{Key: "zip", Rule: Split{Targets: []string{"a", "b"}, Pattern: []int{3, 2}}})

	res := Resolve(FormData{"zip": "12-345"}, table)
	assert.Equal(t, Values{"a": "123", "b": "45"}, res.Values)

	t.Run("count mismatch writes nothing", func(t *testing.T) {
		bad := tableOf(Entry{Key: "zip", Rule: Split{Targets: []string{"a"}, Pattern: []int{3, 2}}})
		res := Resolve(FormData{"zip": "12345"}, bad)
		assert.Empty(t, res.Values)
		assert.Len(t, res.Warnings.ByType(ferrors.ErrorTypePatternMismatch), 1)
	})

	t.Run("short digit run is clamped", func(t *testing.T) {
		res := Resolve(FormData{"zip": "1234"}, table)
		assert.Equal(t, Values{"a": "123", "b": "4"}, res.Values)
	})

	t.Run("numeric answer", func(t *testing.T) {
		res := Resolve(FormData{"zip": 54321}, table)
		assert.Equal(t, Values{"a": "543", "b": "21"}, res.Values)
	})
}

func TestResolve_Spread(t *testing.T) {
	table := tableOf(Entry{Key: "list", Rule: Spread{Targets: []string{"x", "y", "z"}, Separator: ","}})

	tests := []struct {
		name     string
		value    string
		expected Values
	}{
		{"trims and drops empties", "  foo , bar ,, baz", Values{"x": "foo", "y": "bar", "z": "baz"}},
		{"extra tokens dropped", "1,2,3,4", Values{"x": "1", "y": "2", "z": "3"}},
		{"missing tokens leave fields untouched", "only", Values{"x": "only"}},
		{"blank", " , ", Values{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(FormData{"list": tt.value}, table)
			assert.Equal(t, tt.expected, res.Values)
		})
	}
}

func TestResolve_ValueToCheckboxes(t *testing.T) {
	table := tableOf(Entry{Key: "entity", Rule: ValueToCheckboxes{
		AllFields: []string{"c_corp", "s_corp", "llc"},
		OffValue:  "/Off",
		Mapping: map[string]map[string]string{
			"llc_c": {"llc": "/On", "llc_class": "C"},
		},
	}})

	res := Resolve(FormData{"entity": "llc_c"}, table)
	assert.Equal(t, Values{"c_corp": "/Off", "s_corp": "/Off", "llc": "/On", "llc_class": "C"}, res.Values)

	res = Resolve(FormData{"entity": "trust"}, table)
	assert.Equal(t, Values{"c_corp": "/Off", "s_corp": "/Off", "llc": "/Off"}, res.Values)
	assert.Len(t, res.Warnings.ByType(ferrors.ErrorTypeUnmatchedValue), 1)
}

func TestResolve_SignatureText(t *testing.T) {
	res := Resolve(FormData{"sig": "Ada Lovelace"}, fullTable())

	assert.Equal(t, Values{"sig_text": "Ada Lovelace"}, res.Values)
	assert.Empty(t, res.Overlays)
}

func TestResolve_SignatureImage(t *testing.T) {
	res := Resolve(FormData{"sig": pngDataURI(t, 4, 2)}, fullTable())

	assert.Equal(t, Values{"sig_text": ""}, res.Values)
	require.Len(t, res.Overlays, 1)

	overlay := res.Overlays[0]
	assert.Equal(t, "sig_text", overlay.Field)
	assert.Equal(t, 1, overlay.Page)
	assert.Equal(t, [4]float64{10, 20, 110, 60}, overlay.Rect)
	require.NotNil(t, overlay.Image)
	assert.Equal(t, "png", overlay.Image.Format)
	assert.Equal(t, 4, overlay.Image.Width)
	assert.Equal(t, 2, overlay.Image.Height)
}

func TestResolve_SignatureBadImageDropsOverlayOnly(t *testing.T) {
	res := Resolve(FormData{
		"sig":  "data:image/png;base64,bm90IGFuIGltYWdl",
		"name": "Ada",
	}, fullTable())

	assert.Empty(t, res.Overlays)
	assert.Equal(t, Values{"sig_text": "", "f_name": "Ada"}, res.Values)
	assert.Len(t, res.Warnings.ByType(ferrors.ErrorTypeInvalidImage), 1)
}

func TestResolve_SignatureWithoutField(t *testing.T) {
	table := tableOf(Entry{Key: "sig", Rule: Signature{Page: 0, Rect: [4]float64{0, 0, 50, 20}}})

	res := Resolve(FormData{"sig": pngDataURI(t, 1, 1)}, table)
	assert.Empty(t, res.Values)
	assert.Len(t, res.Overlays, 1)

	res = Resolve(FormData{"sig": "typed"}, table)
	assert.Empty(t, res.Values)
	assert.True(t, res.Warnings.Empty())
}

func TestResolve_TINSplit(t *testing.T) {
	both := TINSplit{SSN: []string{"s1", "s2", "s3"}, EIN: []string{"e1", "e2"}, Prefer: PreferAuto}

	tests := []struct {
		name     string
		rule     TINSplit
		value    any
		expected Values
		warning  ferrors.ErrorType
	}{
		{
			name:  "auto writes both groups",
			rule:  both,
			value: "123456789",
			expected: Values{
				"s1": "123", "s2": "45", "s3": "6789",
				"e1": "12", "e2": "3456789",
			},
		},
		{
			name:     "ssn only",
			rule:     TINSplit{SSN: both.SSN, EIN: both.EIN, Prefer: PreferSSN},
			value:    "123-45-6789",
			expected: Values{"s1": "123", "s2": "45", "s3": "6789"},
		},
		{
			name:     "ein only",
			rule:     TINSplit{SSN: both.SSN, EIN: both.EIN, Prefer: PreferEIN},
			value:    "12-3456789",
			expected: Values{"e1": "12", "e2": "3456789"},
		},
		{
			name:     "auto with only ein declared",
			rule:     TINSplit{EIN: both.EIN, Prefer: PreferAuto},
			value:    123456789,
			expected: Values{"e1": "12", "e2": "3456789"},
		},
		{
			name:     "wrong length goes to first ssn field",
			rule:     both,
			value:    "1234",
			expected: Values{"s1": "1234"},
			warning:  ferrors.ErrorTypeInvalidTIN,
		},
		{
			name:     "wrong length without ssn goes to first ein field",
			rule:     TINSplit{EIN: both.EIN},
			value:    "12345678901",
			expected: Values{"e1": "12345678901"},
			warning:  ferrors.ErrorTypeInvalidTIN,
		},
		{
			name:     "unknown preference writes nothing",
			rule:     TINSplit{SSN: both.SSN, EIN: both.EIN, Prefer: "itin"},
			value:    "123456789",
			expected: Values{},
			warning:  ferrors.ErrorTypePatternMismatch,
		},
		{
			name:     "too few ssn fields",
			rule:     TINSplit{SSN: []string{"s1"}, Prefer: PreferSSN},
			value:    "123456789",
			expected: Values{},
			warning:  ferrors.ErrorTypePatternMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(FormData{"tin": tt.value}, tableOf(Entry{Key: "tin", Rule: tt.rule}))
			assert.Equal(t, tt.expected, res.Values)
			if tt.warning != ferrors.ErrorTypeUnknown {
				assert.Len(t, res.Warnings.ByType(tt.warning), 1)
			} else {
				assert.True(t, res.Warnings.Empty())
			}
		})
	}
}

func TestResolve_Fallback(t *testing.T) {
	res := Resolve(FormData{"extra": 12.5}, fullTable())
	assert.Equal(t, Values{"x": 12.5}, res.Values)

	table := tableOf(Entry{Key: "extra", Rule: Fallback{Type: "mystery"}})
	res = Resolve(FormData{"extra": "v"}, table)
	assert.Empty(t, res.Values)
	assert.Len(t, res.Warnings.ByType(ferrors.ErrorTypeMissingField), 1)
}

func TestResolve_LastWriteWins(t *testing.T) {
	table := tableOf(
		Entry{Key: "first", Rule: Direct{Field: "shared"}},
		Entry{Key: "second", Rule: Direct{Field: "shared"}},
	)

	res := Resolve(FormData{"first": "one", "second": "two"}, table)
	assert.Equal(t, Values{"shared": "two"}, res.Values)

	res = Resolve(FormData{"first": "one"}, table)
	assert.Equal(t, Values{"shared": "one"}, res.Values)
}

func TestResolve_EmptyFieldNameIsSkipped(t *testing.T) {
	table := tableOf(Entry{Key: "a", Rule: Fanout{Targets: []string{"", "f"}}})

	res := Resolve(FormData{"a": "v"}, table)
	assert.Equal(t, Values{"f": "v"}, res.Values)

	warnings := res.Warnings.ByType(ferrors.ErrorTypeMissingField)
	require.Len(t, warnings, 1)
	assert.Equal(t, "a", warnings[0].Key)
}

func TestResolve_DefectiveRulesDegradeLocally(t *testing.T) {
	table, err := Parse([]byte(`{
  "name": "f_name",
  "zip": {"type": "split", "fields": ["z1", "z2"], "pattern": "5-4"},
  "sig": {"type": "signature", "field": "s", "rect": [1, 2, 3]}
}`))
	require.NoError(t, err)

	res := Resolve(FormData{"name": "Ada", "zip": "12345-6789", "sig": "Ada L."}, table)

	assert.Equal(t, Values{"f_name": "Ada", "s": "Ada L."}, res.Values)

	invalid := res.Warnings.ByType(ferrors.ErrorTypeInvalidRule)
	require.Len(t, invalid, 2)
	assert.Equal(t, "zip", invalid[0].Key)
	assert.Equal(t, "sig", invalid[1].Key)
	assert.Len(t, res.Warnings.ByType(ferrors.ErrorTypePatternMismatch), 1)

	res = Resolve(FormData{"name": "Ada"}, table)
	assert.Empty(t, res.Warnings.ByType(ferrors.ErrorTypeInvalidRule))
}

func TestResolve_DataIsNotMutated(t *testing.T) {
	data := FormData{"name": "Ada", "tin": "123-45-6789"}
	Resolve(data, fullTable())
	assert.Equal(t, FormData{"name": "Ada", "tin": "123-45-6789"}, data)
}

func TestResolver_DebugMode(t *testing.T) {
	r := NewResolver(true)
	res := r.Resolve(FormData{"phone": "555-1234"}, fullTable())
	assert.Equal(t, Values{"p1": "555", "p2": "1234"}, res.Values)
}
