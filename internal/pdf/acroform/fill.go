package acroform

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
)

// FillReport lists which value keys reached a field.
type FillReport struct {
	Filled    []string `json:"filled"`
	Unmatched []string `json:"unmatched,omitempty"`
}

// Fill writes values into the document's fields.
//
// A key matches a terminal field by its fully qualified name, or failing
// that, every terminal field whose partial name equals the key. Text and
// choice fields receive the stringified value. Buttons receive the value as
// an export state: V is set to it and each widget shows it when its
// appearance dictionary declares it, and Off otherwise. NeedAppearances is
// set so viewers regenerate text appearances.
func (d *Document) Fill(values mapping.Values) (*FillReport, error) {
	report := &FillReport{Filled: make([]string, 0, len(values))}
	if len(values) == 0 {
		return report, nil
	}
	if d.acroForm == nil {
		return nil, fmt.Errorf("document has no interactive form")
	}

	byName := make(map[string]*Field)
	byPartial := make(map[string][]*Field)
	for _, f := range d.fields {
		if !f.Terminal {
			continue
		}
		byName[f.Name] = f
		if f.Partial != "" {
			byPartial[f.Partial] = append(byPartial[f.Partial], f)
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		targets := byPartial[key]
		if f, ok := byName[key]; ok {
			targets = []*Field{f}
		}

		filled := false
		for _, f := range targets {
			if d.setField(f, values[key]) {
				filled = true
			}
		}
		if filled {
			report.Filled = append(report.Filled, key)
		} else {
			report.Unmatched = append(report.Unmatched, key)
		}
	}

	d.acroForm["NeedAppearances"] = types.Boolean(true)

	if d.debugMode {
		log.Printf("Filled %d field(s), %d unmatched", len(report.Filled), len(report.Unmatched))
	}
	return report, nil
}

func (d *Document) setField(f *Field, value any) bool {
	if f.IsPushbutton() {
		return false
	}

	if f.Type == "Btn" {
		state := strings.TrimPrefix(mapping.Stringify(value), "/")
		if state == "" {
			state = "Off"
		}
		f.dict["V"] = types.Name(state)
		f.Value = "/" + state

		for i := range f.Widgets {
			w := &f.Widgets[i]
			as := "Off"
			for _, s := range w.States {
				if s == state {
					as = state
					break
				}
			}
			w.dict["AS"] = types.Name(as)
			w.State = as
		}
		return true
	}

	text := mapping.Stringify(value)
	f.dict["V"] = encodeText(text)
	f.Value = text

	// drop stale appearances so they are regenerated from V
	for _, w := range f.Widgets {
		delete(w.dict, "AP")
	}
	return true
}

// encodeText returns a PDF string object for s: a literal string for
// ASCII text, UTF-16BE with byte order mark otherwise.
func encodeText(s string) types.Object {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}

	if ascii {
		r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)
		return types.StringLiteral(r.Replace(s))
	}

	units := utf16.Encode([]rune(s))
	b := make([]byte, 2, 2+2*len(units))
	b[0], b[1] = 0xFE, 0xFF
	for _, u := range units {
		b = append(b, byte(u>>8), byte(u))
	}
	return types.HexLiteral(strings.ToUpper(hex.EncodeToString(b)))
}

// Write serializes the document to w.
func (d *Document) Write(w io.Writer) error {
	if err := api.WriteContext(d.ctx, w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}
