package imgpress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// rawOptions mirrors the JSON options record. Bounds are pointers so that an
// explicit null and an absent field both mean "unset".
type rawOptions struct {
	Quality       *int   `json:"quality"`
	Format        Format `json:"format"`
	MaxWidth      *int   `json:"max_width"`
	MaxHeight     *int   `json:"max_height"`
	Optimize      bool   `json:"optimize"`
	StripMetadata bool   `json:"strip_metadata"`
	Progressive   bool   `json:"progressive"`
}

// ParseOptions decodes a JSON options record. Absent fields take the values
// of DefaultOptions. Quality must be within 0-100 and bounds must not be
// negative; anything else is reported as an *OptionsError.
func ParseOptions(data []byte) (ImageOptions, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ImageOptions{}, &OptionsError{Err: errors.New("empty options")}
	}

	def := DefaultOptions()
	raw := rawOptions{Format: def.Format}
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ImageOptions{}, &OptionsError{Field: typeErr.Field, Err: err}
		}
		return ImageOptions{}, &OptionsError{Err: err}
	}

	opts := ImageOptions{
		Quality:       def.Quality,
		Format:        raw.Format,
		Optimize:      raw.Optimize,
		StripMetadata: raw.StripMetadata,
		Progressive:   raw.Progressive,
	}
	if raw.Quality != nil {
		if *raw.Quality < 0 || *raw.Quality > 100 {
			return ImageOptions{}, &OptionsError{Field: "quality", Err: fmt.Errorf("%d out of range 0-100", *raw.Quality)}
		}
		opts.Quality = *raw.Quality
	}
	if raw.MaxWidth != nil {
		if *raw.MaxWidth < 0 {
			return ImageOptions{}, &OptionsError{Field: "max_width", Err: fmt.Errorf("%d is negative", *raw.MaxWidth)}
		}
		opts.MaxWidth = *raw.MaxWidth
	}
	if raw.MaxHeight != nil {
		if *raw.MaxHeight < 0 {
			return ImageOptions{}, &OptionsError{Field: "max_height", Err: fmt.Errorf("%d is negative", *raw.MaxHeight)}
		}
		opts.MaxHeight = *raw.MaxHeight
	}
	return opts, nil
}
