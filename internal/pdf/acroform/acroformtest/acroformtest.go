// Package acroformtest builds small single-page AcroForm documents for tests.
package acroformtest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Widget is a widget annotation without a partial name of its own.
type Widget struct {
	Rect   [4]float64
	States []string // appearance states besides Off
}

// Field describes one node of the field tree.
type Field struct {
	Name    string // partial name (T)
	Type    string // Tx, Btn, Ch; empty for pure containers
	Flags   int
	Value   string      // initial V for text fields
	Rect    *[4]float64 // widget merged into the field
	States  []string    // appearance states of the merged widget
	Kids    []Field
	Widgets []Widget
}

type builder struct {
	objects []string
	annots  []int
}

func (b *builder) reserve() int {
	b.objects = append(b.objects, "")
	return len(b.objects)
}

func (b *builder) set(num int, body string) {
	b.objects[num-1] = body
}

// Build returns the bytes of a one-page Letter document holding fields.
func Build(fields ...Field) []byte {
	b := &builder{}

	catalog := b.reserve()
	pages := b.reserve()
	page := b.reserve()
	acroForm := b.reserve()
	contents := b.reserve()
	font := b.reserve()
	appearance := b.reserve()

	b.set(contents, "<< /Length 0 >>\nstream\n\nendstream")
	b.set(font, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	b.set(appearance, "<< /Type /XObject /Subtype /Form /BBox [0 0 10 10] /Resources << >> /Length 0 >>\nstream\n\nendstream")

	var top []string
	for _, f := range fields {
		top = append(top, ref(b.field(f, 0, page, appearance)))
	}

	annots := make([]string, 0, len(b.annots))
	for _, a := range b.annots {
		annots = append(annots, ref(a))
	}

	b.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %s /AcroForm %s >>", ref(pages), ref(acroForm)))
	b.set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count 1 >>", ref(page)))
	b.set(page, fmt.Sprintf(
		"<< /Type /Page /Parent %s /MediaBox [0 0 612 792] /Contents %s /Resources << /Font << /Helv %s >> >> /Annots [%s] >>",
		ref(pages), ref(contents), ref(font), strings.Join(annots, " ")))
	b.set(acroForm, fmt.Sprintf(
		"<< /Fields [%s] /DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv %s >> >> >>",
		strings.Join(top, " "), ref(font)))

	return b.bytes(catalog)
}

func (b *builder) field(f Field, parent, page, appearance int) int {
	num := b.reserve()

	var d strings.Builder
	d.WriteString("<<")
	if f.Name != "" {
		fmt.Fprintf(&d, " /T (%s)", f.Name)
	}
	if f.Type != "" {
		fmt.Fprintf(&d, " /FT /%s", f.Type)
	}
	if f.Flags != 0 {
		fmt.Fprintf(&d, " /Ff %d", f.Flags)
	}
	if f.Value != "" {
		fmt.Fprintf(&d, " /V (%s)", f.Value)
	}
	if parent != 0 {
		fmt.Fprintf(&d, " /Parent %s", ref(parent))
	}
	if f.Rect != nil {
		d.WriteString(widgetEntries(*f.Rect, f.States, page, appearance))
		b.annots = append(b.annots, num)
	}

	var kids []string
	for _, k := range f.Kids {
		kids = append(kids, ref(b.field(k, num, page, appearance)))
	}
	for _, w := range f.Widgets {
		wn := b.reserve()
		b.set(wn, fmt.Sprintf("<< /Parent %s%s >>", ref(num), widgetEntries(w.Rect, w.States, page, appearance)))
		b.annots = append(b.annots, wn)
		kids = append(kids, ref(wn))
	}
	if len(kids) > 0 {
		fmt.Fprintf(&d, " /Kids [%s]", strings.Join(kids, " "))
	}
	d.WriteString(" >>")

	b.set(num, d.String())
	return num
}

func widgetEntries(rect [4]float64, states []string, page, appearance int) string {
	s := fmt.Sprintf(" /Type /Annot /Subtype /Widget /F 4 /P %s /Rect [%g %g %g %g]",
		ref(page), rect[0], rect[1], rect[2], rect[3])
	if len(states) > 0 {
		var ap strings.Builder
		for _, st := range states {
			fmt.Fprintf(&ap, " /%s %s", st, ref(appearance))
		}
		fmt.Fprintf(&ap, " /Off %s", ref(appearance))
		s += fmt.Sprintf(" /AP << /N <<%s >> >> /AS /Off", ap.String())
	}
	return s
}

func ref(num int) string {
	return fmt.Sprintf("%d 0 R", num)
}

func (b *builder) bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objects)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %s >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, ref(root), xref)

	return buf.Bytes()
}

// WriteFile builds a document and writes it to dir/name, returning the path.
func WriteFile(dir, name string, fields ...Field) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(fields...), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Rect is a convenience for taking the address of a rectangle literal.
func Rect(x1, y1, x2, y2 float64) *[4]float64 {
	return &[4]float64{x1, y1, x2, y2}
}

// Sample returns a field tree covering text, checkbox, radio and a
// hierarchical container whose children carry the widgets.
//
//	name              text
//	agree             checkbox (Yes)
//	status            radio with widgets /1 and /2
//	form.ssn.{a,b,c}  text, FT inherited from form.ssn
func Sample() []Field {
	return []Field{
		{Name: "name", Type: "Tx", Rect: Rect(50, 700, 250, 720)},
		{Name: "agree", Type: "Btn", Rect: Rect(50, 650, 62, 662), States: []string{"Yes"}},
		{Name: "status", Type: "Btn", Flags: 1 << 15, Widgets: []Widget{
			{Rect: [4]float64{50, 600, 62, 612}, States: []string{"1"}},
			{Rect: [4]float64{80, 600, 92, 612}, States: []string{"2"}},
		}},
		{Name: "form", Kids: []Field{
			{Name: "ssn", Type: "Tx", Kids: []Field{
				{Name: "a", Rect: Rect(50, 550, 80, 570)},
				{Name: "b", Rect: Rect(90, 550, 110, 570)},
				{Name: "c", Rect: Rect(120, 550, 160, 570)},
			}},
		}},
	}
}
