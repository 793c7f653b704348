package mapping

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"strings"

	_ "golang.org/x/image/webp" // register WebP decoder
)

// imageMarker prefixes answers that carry an embedded image, as produced by
// canvas.toDataURL() in a drawn-signature pad.
const imageMarker = "data:image/"

// SignatureImage is a decoded embedded image.
type SignatureImage struct {
	Data   []byte `json:"-"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// SignatureOverlay places a drawn signature onto a page of the document.
type SignatureOverlay struct {
	Field string          `json:"field,omitempty"`
	Page  int             `json:"page"` // 0-based
	Rect  [4]float64      `json:"rect"`
	Image *SignatureImage `json:"image"`
}

// IsImageReference reports whether an answer carries an embedded image.
func IsImageReference(v any) bool {
	s, ok := v.(string)
	if !ok || len(s) < len(imageMarker) {
		return false
	}
	return strings.EqualFold(s[:len(imageMarker)], imageMarker)
}

// DecodeImageReference decodes a data URI such as "data:image/png;base64,...".
func DecodeImageReference(ref string) (*SignatureImage, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, fmt.Errorf("data URI has no payload separator")
	}
	header, payload := ref[:comma], ref[comma+1:]
	if !strings.HasSuffix(strings.ToLower(header), ";base64") {
		return nil, fmt.Errorf("data URI is not base64 encoded")
	}

	payload = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		if data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unreadable image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no area: %dx%d", cfg.Width, cfg.Height)
	}

	return &SignatureImage{
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}
