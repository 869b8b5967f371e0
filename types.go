package imgpress

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the library version.
const Version = "1.0.0"

// Format represents an output image format.
type Format int

const (
	// JPEG is the default and the fallback for unrecognised format names.
	JPEG Format = iota
	// PNG ignores the quality setting.
	PNG
	// GIF quantises to a 256 colour palette.
	GIF
	// WebP encodes lossy WebP at the requested quality.
	WebP
	// PNGToWebP encodes WebP, but only when the source bytes are a PNG.
	PNGToWebP
)

// ParseFormat maps a format name to a Format. Matching is case-insensitive;
// "jpg" is an alias for "jpeg" and any unrecognised name yields JPEG.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return PNG
	case "gif":
		return GIF
	case "webp":
		return WebP
	case "png-to-webp":
		return PNGToWebP
	default:
		return JPEG
	}
}

// String returns the canonical option name of the format.
func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case GIF:
		return "gif"
	case WebP:
		return "webp"
	case PNGToWebP:
		return "png-to-webp"
	default:
		return "jpeg"
	}
}

// Label returns the MIME subtype written into the output data URI.
// PNGToWebP is labelled "webp" since that is what it produces.
func (f Format) Label() string {
	if f == PNGToWebP {
		return "webp"
	}
	return f.String()
}

// MarshalJSON encodes the format as its option name.
func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON accepts a format name string. Unrecognised names fall back to
// JPEG; non-string values are an error.
func (f *Format) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("format must be a string: %w", err)
	}
	*f = ParseFormat(s)
	return nil
}

// ImageOptions configures how each image of a request is transformed.
// It is a plain value: every pipeline invocation works on its own copy.
type ImageOptions struct {
	// Quality is the encoder quality (0-100). Overridden when Optimize is set.
	Quality int `json:"quality"`

	// Format is the requested output format.
	Format Format `json:"format"`

	// MaxWidth bounds the output width. 0 means no constraint.
	// Aspect ratio is always preserved.
	MaxWidth int `json:"max_width,omitempty"`

	// MaxHeight bounds the output height. 0 means no constraint.
	MaxHeight int `json:"max_height,omitempty"`

	// Optimize replaces Quality with a value picked from the image's size
	// and visual complexity.
	Optimize bool `json:"optimize"`

	// StripMetadata rebuilds the pixels into a fresh container that carries
	// nothing but pixel data and its colour model.
	StripMetadata bool `json:"strip_metadata"`

	// Progressive is accepted for compatibility. The JPEG encoder only
	// emits baseline scans, so it has no effect.
	Progressive bool `json:"progressive"`
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() ImageOptions {
	return ImageOptions{
		Quality: 80,
		Format:  JPEG,
	}
}

// ProcessResult describes one successfully processed image.
type ProcessResult struct {
	// Data is the encoded image as "data:image/<label>;base64,<payload>".
	Data string `json:"data"`

	// Format is the label of the format that was actually written.
	Format string `json:"format"`

	// Size is the encoded length in bytes (before base64).
	Size int `json:"size"`

	// Width and Height are the output dimensions, after any resize.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Quality is the quality handed to the encoder.
	Quality int `json:"quality"`
}

// String returns a human-readable summary of the result.
func (r *ProcessResult) String() string {
	return fmt.Sprintf("%s | Q=%d | %dx%d | %s", strings.ToUpper(r.Format), r.Quality, r.Width, r.Height, HumanBytes(int64(r.Size)))
}

// HumanBytes formats a byte count with binary units.
func HumanBytes(b int64) string {
	if b == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	i := 0
	bf := float64(b)
	for bf >= 1024 && i < len(units)-1 {
		bf /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", b)
	}
	return fmt.Sprintf("%.1f %s", bf, units[i])
}
