package imgpress

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder.
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"
)

// ColorModel is the intrinsic channel layout of a decoded image.
type ColorModel int

const (
	// ModelOther covers paletted, CMYK and 16-bit sources.
	ModelOther ColorModel = iota
	// ModelGray is 8-bit luminance.
	ModelGray
	// ModelGrayAlpha is 8-bit luminance plus alpha.
	ModelGrayAlpha
	// ModelRGB is 8-bit colour without alpha.
	ModelRGB
	// ModelRGBA is 8-bit colour with alpha.
	ModelRGBA
)

func (m ColorModel) String() string {
	switch m {
	case ModelGray:
		return "gray"
	case ModelGrayAlpha:
		return "gray+alpha"
	case ModelRGB:
		return "rgb"
	case ModelRGBA:
		return "rgba"
	default:
		return "other"
	}
}

// decodedImage is the working state of one pipeline invocation. raw keeps
// the original container bytes for format sniffing after the pixels moved on.
type decodedImage struct {
	img    image.Image
	model  ColorModel
	format string
	raw    []byte
}

func (d *decodedImage) size() (int, int) {
	b := d.img.Bounds()
	return b.Dx(), b.Dy()
}

// Decode reads an image like image.Decode, except that WebP always goes
// through golang.org/x/image/webp. The cgo WebP package also registers
// "webp" and wins the lookup, but it labels straight-alpha samples as
// premultiplied *image.RGBA.
func Decode(r io.Reader) (image.Image, string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	return decodeBytes(raw)
}

func decodeBytes(raw []byte) (image.Image, string, error) {
	if matchers.Webp(raw) {
		img, err := xwebp.Decode(bytes.NewReader(raw))
		return img, "webp", err
	}
	return image.Decode(bytes.NewReader(raw))
}

// decodeImage decodes raw through the registered image decoders.
func decodeImage(raw []byte) (*decodedImage, error) {
	img, name, err := decodeBytes(raw)
	if err != nil {
		return nil, newError(KindIO, "failed to load image", err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, newError(KindIO, fmt.Sprintf("empty image (%dx%d)", b.Dx(), b.Dy()), nil)
	}

	return &decodedImage{
		img:    img,
		model:  detectColorModel(img, raw),
		format: name,
		raw:    raw,
	}, nil
}

// sniff identifies the container format of raw from its magic numbers.
func sniff(raw []byte) (types.Type, error) {
	t, err := filetype.Match(raw)
	if err != nil {
		return filetype.Unknown, err
	}
	if t == filetype.Unknown {
		return t, fmt.Errorf("unknown container")
	}
	return t, nil
}

// isPNG reports whether raw is a PNG container.
func isPNG(raw []byte) (bool, error) {
	t, err := sniff(raw)
	if err != nil {
		return false, err
	}
	return t == matchers.TypePng, nil
}

// PNG colour types from the IHDR chunk.
const (
	pngGray      = 0
	pngTrueColor = 2
	pngGrayAlpha = 4
	pngRGBA      = 6
)

// detectColorModel derives the intrinsic colour model from the decoded type.
// The standard decoders widen some layouts (PNG gray+alpha and truecolor,
// 24-bit BMP, lossless WebP) into RGBA types, so the container header
// refines the answer.
func detectColorModel(img image.Image, raw []byte) ColorModel {
	switch img.(type) {
	case *image.Gray:
		return ModelGray
	case *image.YCbCr:
		return ModelRGB
	case *image.NYCbCrA:
		return ModelRGBA
	case *image.RGBA, *image.NRGBA:
		// A tRNS chunk turns gray and truecolor PNGs into NRGBA.
		_, transparent := img.(*image.NRGBA)
		if ct, depth, ok := pngColorType(raw); ok {
			if depth != 8 {
				return ModelOther
			}
			switch {
			case ct == pngGrayAlpha, ct == pngGray && transparent:
				return ModelGrayAlpha
			case ct == pngGray:
				return ModelGray
			case ct == pngRGBA, ct == pngTrueColor && transparent:
				return ModelRGBA
			case ct == pngTrueColor:
				return ModelRGB
			}
			return ModelOther
		}
		if bpp, ok := bmpBitsPerPixel(raw); ok && bpp == 24 {
			return ModelRGB
		}
		if alpha, ok := webpLosslessAlpha(raw); ok && !alpha {
			return ModelRGB
		}
		return ModelRGBA
	default:
		return ModelOther
	}
}

// pngColorType reads the colour type and bit depth from a PNG IHDR chunk.
func pngColorType(raw []byte) (colorType, depth byte, ok bool) {
	const sig = "\x89PNG\r\n\x1a\n"
	if len(raw) < 26 || string(raw[:8]) != sig || string(raw[12:16]) != "IHDR" {
		return 0, 0, false
	}
	return raw[25], raw[24], true
}

// bmpBitsPerPixel reads the bit depth from a BMP info header.
func bmpBitsPerPixel(raw []byte) (int, bool) {
	if len(raw) < 30 || raw[0] != 'B' || raw[1] != 'M' {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(raw[28:30])), true
}

// webpLosslessAlpha reads the alpha_is_used bit from a simple VP8L
// bitstream header: 14 bits width, 14 bits height, then the flag.
func webpLosslessAlpha(raw []byte) (alpha, ok bool) {
	if len(raw) < 25 || string(raw[:4]) != "RIFF" || string(raw[8:16]) != "WEBPVP8L" || raw[20] != 0x2f {
		return false, false
	}
	return raw[24]&0x10 != 0, true
}
