package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rect(page int, x1, y1, x2, y2 float64) PlacedRect {
	return PlacedRect{PageIndex: page, Rect: Rect{x1, y1, x2, y2}}
}

func TestNormalize_DistributesWhenCountsMatch(t *testing.T) {
	in := &Schema{Fields: []Field{
		{ID: "form.tin", Kind: KindUnknown, Rects: []PlacedRect{rect(0, 10, 10, 40, 20), rect(0, 50, 10, 80, 20)}},
		{ID: "form.tin.f2", Kind: KindText},
		{ID: "form.tin.f1", Kind: KindText},
	}}

	got := Normalize(in)

	want := &Schema{Fields: []Field{
		{ID: "form.tin", Kind: KindUnknown, Rects: []PlacedRect{rect(0, 10, 10, 40, 20), rect(0, 50, 10, 80, 20)}},
		{ID: "form.tin.f2", Kind: KindText, Rects: []PlacedRect{rect(0, 50, 10, 80, 20)}},
		{ID: "form.tin.f1", Kind: KindText, Rects: []PlacedRect{rect(0, 10, 10, 40, 20)}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, in.Fields[1].Rects, "input must not be modified")
}

func TestNormalize_SkipsAmbiguousCardinality(t *testing.T) {
	in := &Schema{Fields: []Field{
		{ID: "c", Kind: KindUnknown, Rects: []PlacedRect{rect(0, 0, 0, 1, 1), rect(0, 2, 0, 3, 1)}},
		{ID: "c.a", Kind: KindText},
		{ID: "c.b", Kind: KindButton},
		{ID: "c.c", Kind: KindText},
	}}

	got := Normalize(in)

	for _, id := range []string{"c.a", "c.b", "c.c"} {
		f, ok := got.Field(id)
		require.True(t, ok)
		assert.Empty(t, f.Rects, "field %s should stay without geometry", id)
	}
}

func TestNormalize_DeepestContainerWins(t *testing.T) {
	in := &Schema{Fields: []Field{
		// outer container would match the two inner children if it went first
		{ID: "p", Kind: KindUnknown, Rects: []PlacedRect{rect(1, 0, 0, 5, 5), rect(1, 5, 0, 10, 5)}},
		{ID: "p.line", Kind: KindUnknown, Rects: []PlacedRect{rect(0, 100, 0, 110, 10), rect(0, 110, 0, 120, 10)}},
		{ID: "p.line.a", Kind: KindText},
		{ID: "p.line.b", Kind: KindText},
	}}

	got := Normalize(in)

	a, _ := got.Field("p.line.a")
	b, _ := got.Field("p.line.b")
	assert.Equal(t, []PlacedRect{rect(0, 100, 0, 110, 10)}, a.Rects)
	assert.Equal(t, []PlacedRect{rect(0, 110, 0, 120, 10)}, b.Rects)
}

func TestNormalize_IgnoresNonFillableAndPlacedChildren(t *testing.T) {
	in := &Schema{Fields: []Field{
		{ID: "g", Kind: KindUnknown, Rects: []PlacedRect{rect(0, 1, 1, 2, 2)}},
		{ID: "g.sub", Kind: KindChoice},
		{ID: "g.placed", Kind: KindText, Rects: []PlacedRect{rect(2, 9, 9, 9, 9)}},
		{ID: "g.target", Kind: KindButton, OnValues: []string{"/1"}},
		{ID: "gx.target", Kind: KindText},
	}}

	got := Normalize(in)

	target, _ := got.Field("g.target")
	assert.Equal(t, []PlacedRect{rect(0, 1, 1, 2, 2)}, target.Rects)
	sub, _ := got.Field("g.sub")
	assert.Empty(t, sub.Rects)
	placed, _ := got.Field("g.placed")
	assert.Equal(t, []PlacedRect{rect(2, 9, 9, 9, 9)}, placed.Rects)
	other, _ := got.Field("gx.target")
	assert.Empty(t, other.Rects)
}

func TestNormalize_DuplicateIDsCountSeparately(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
		want   [][]PlacedRect
	}{
		{
			name: "duplicate fills the second rect",
			fields: []Field{
				{ID: "c", Kind: KindUnknown, Rects: []PlacedRect{rect(0, 0, 0, 1, 1), rect(0, 2, 0, 3, 1)}},
				{ID: "c.a", Kind: KindText},
				{ID: "c.a", Kind: KindText},
			},
			want: [][]PlacedRect{{rect(0, 0, 0, 1, 1)}, {rect(0, 2, 0, 3, 1)}},
		},
		{
			name: "duplicate breaks the count",
			fields: []Field{
				{ID: "c", Kind: KindUnknown, Rects: []PlacedRect{rect(0, 0, 0, 1, 1), rect(0, 2, 0, 3, 1)}},
				{ID: "c.a", Kind: KindText},
				{ID: "c.a", Kind: KindText},
				{ID: "c.b", Kind: KindText},
			},
			want: [][]PlacedRect{nil, nil, nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(&Schema{Fields: tt.fields})
			for n, want := range tt.want {
				assert.Equal(t, want, got.Fields[n+1].Rects, "field %d", n+1)
			}
		})
	}
}

func TestNormalize_EmptySchema(t *testing.T) {
	got := Normalize(&Schema{})
	assert.Empty(t, got.Fields)
}

func TestParse(t *testing.T) {
	data := []byte(`{"fields":[
		{"id":"form.f1","kind":"text","rects":[{"page_index":0,"rect":[1,2,3,4]}]},
		{"id":"form.c1","kind":"button","on_values":["/1"],"rects":[]},
		{"id":"form"}
	]}`)

	s, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, s.Fields, 3)
	assert.Equal(t, Rect{1, 2, 3, 4}, s.Fields[0].Rects[0].Rect)
	assert.Equal(t, 2.0, s.Fields[0].Rects[0].Rect.Width())
	assert.Equal(t, []string{"/1"}, s.Fields[1].OnValues)
	assert.Equal(t, KindUnknown, s.Fields[2].Kind)

	_, err = Parse([]byte(`{"fields":`))
	assert.Error(t, err)
}

func TestKindFromFieldType(t *testing.T) {
	assert.Equal(t, KindText, KindFromFieldType("Tx"))
	assert.Equal(t, KindButton, KindFromFieldType("Btn"))
	assert.Equal(t, KindChoice, KindFromFieldType("Ch"))
	assert.Equal(t, KindUnknown, KindFromFieldType("Sig"))
	assert.True(t, KindButton.Fillable())
	assert.False(t, KindChoice.Fillable())
}
