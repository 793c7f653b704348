package acroform

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"

	ferrors "github.com/a3tai/mcp-pdf-filler/internal/errors"
	"github.com/a3tai/mcp-pdf-filler/internal/fieldname"
	"github.com/a3tai/mcp-pdf-filler/internal/mapping"
	"github.com/a3tai/mcp-pdf-filler/internal/schema"
)

// minScale is the smallest scale factor pdfcpu accepts for a stamp.
const minScale = 0.01

// Stamper composites images and text onto the pages of a document.
type Stamper struct {
	debugMode bool
}

// NewStamper creates a new stamper
func NewStamper(debugMode bool) *Stamper {
	return &Stamper{debugMode: debugMode}
}

// StampOverlays places each signature image inside its rectangle, scaled to
// fit while keeping its aspect ratio and anchored at the lower-left corner.
// Overlays that cannot be placed are skipped and recorded in warnings.
func (s *Stamper) StampOverlays(in []byte, overlays []mapping.SignatureOverlay, warnings *ferrors.ErrorCollection) ([]byte, error) {
	if len(overlays) == 0 {
		return in, nil
	}

	pageCount, err := api.PageCount(bytes.NewReader(in), newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	out := in
	for _, ov := range overlays {
		next, err := s.stampOverlay(out, ov, pageCount)
		if err != nil {
			if warnings != nil {
				warnings.Add(ferrors.WrapError(ferrors.ErrorTypeInvalidImage, err).WithField(ov.Field))
			}
			if s.debugMode {
				log.Printf("Skipping overlay for %q: %v", ov.Field, err)
			}
			continue
		}
		out = next
	}
	return out, nil
}

func (s *Stamper) stampOverlay(in []byte, ov mapping.SignatureOverlay, pageCount int) ([]byte, error) {
	if ov.Image == nil || len(ov.Image.Data) == 0 {
		return nil, fmt.Errorf("overlay has no image")
	}
	if ov.Page < 0 || ov.Page >= pageCount {
		return nil, fmt.Errorf("page index %d out of range (document has %d page(s))", ov.Page, pageCount)
	}

	rect := schema.Rect{
		min(ov.Rect[0], ov.Rect[2]), min(ov.Rect[1], ov.Rect[3]),
		max(ov.Rect[0], ov.Rect[2]), max(ov.Rect[1], ov.Rect[3]),
	}
	if rect.Width() <= 0 || rect.Height() <= 0 {
		return nil, fmt.Errorf("overlay rect %v has no area", ov.Rect)
	}

	data, err := stampableImage(ov.Image)
	if err != nil {
		return nil, err
	}

	scale := min(rect.Width()/float64(ov.Image.Width), rect.Height()/float64(ov.Image.Height))
	desc := fmt.Sprintf("position:bl, offset:%.2f %.2f, scalefactor:%.4f abs, rotation:0, opacity:1",
		rect[0], rect[1], max(scale, minScale))

	wm, err := api.ImageWatermarkForReader(bytes.NewReader(data), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image stamp: %w", err)
	}

	if s.debugMode {
		log.Printf("Stamping %s image %dx%d on page %d at %v (scale %.4f)",
			ov.Image.Format, ov.Image.Width, ov.Image.Height, ov.Page, rect, scale)
	}
	return stamp(in, ov.Page, wm)
}

// stampableImage returns image bytes pdfcpu can embed. PNG and JPEG pass
// through; other formats are re-encoded as 8-bit RGBA PNG.
func stampableImage(img *mapping.SignatureImage) ([]byte, error) {
	switch img.Format {
	case "png", "jpeg":
		return img.Data, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", img.Format, err)
	}
	rgba := image.NewNRGBA(decoded.Bounds())
	draw.Draw(rgba, rgba.Bounds(), decoded, decoded.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("failed to re-encode %s image: %w", img.Format, err)
	}
	return buf.Bytes(), nil
}

func stamp(in []byte, page int, wm *model.Watermark) ([]byte, error) {
	var out bytes.Buffer
	pages := []string{strconv.Itoa(page + 1)}
	if err := api.AddWatermarks(bytes.NewReader(in), &out, pages, wm, newConfiguration()); err != nil {
		return nil, fmt.Errorf("failed to stamp page %d: %w", page, err)
	}
	return out.Bytes(), nil
}

// Label stamps every widget rectangle of s with the leaf name of its field,
// producing a document that shows which widget is which.
func (s *Stamper) Label(in []byte, sch *schema.Schema) ([]byte, error) {
	pageCount, err := api.PageCount(bytes.NewReader(in), newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	out := in
	labeled := 0
	for _, f := range sch.Fields {
		label := fieldname.Leaf(f.ID)
		if label == "" {
			continue
		}
		for _, r := range f.Rects {
			if r.PageIndex < 0 || r.PageIndex >= pageCount {
				continue
			}
			desc := fmt.Sprintf(
				"fontname:Helvetica, points:6, position:bl, offset:%.2f %.2f, scalefactor:1 abs, rotation:0, fillcolor:#D01010, opacity:0.9",
				r.Rect[0], r.Rect[1])
			wm, err := api.TextWatermark(label, desc, true, false, types.POINTS)
			if err != nil {
				return nil, fmt.Errorf("failed to prepare label for %s: %w", f.ID, err)
			}
			if out, err = stamp(out, r.PageIndex, wm); err != nil {
				return nil, err
			}
			labeled++
		}
	}

	if s.debugMode {
		log.Printf("Labeled %d widget(s)", labeled)
	}
	return out, nil
}
