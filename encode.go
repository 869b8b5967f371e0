package imgpress

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// resolveFormat settles the concrete output format. PNGToWebP is only
// allowed when raw, the original container bytes, sniff as PNG.
func resolveFormat(f Format, raw []byte) (Format, error) {
	if f != PNGToWebP {
		return f, nil
	}
	ok, err := isPNG(raw)
	if err != nil {
		return 0, newError(KindInvalidFormat, "unable to recognize source image format", err)
	}
	if !ok {
		return 0, newError(KindInvalidFormat, "only PNG images can be converted to WebP", nil)
	}
	return PNGToWebP, nil
}

// encodeToBytes encodes img in format f at the given quality.
func encodeToBytes(img image.Image, f Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, img, f, quality); err != nil {
		return nil, newError(KindEncode, "failed to encode image as "+f.Label(), err)
	}
	return buf.Bytes(), nil
}

func encode(w io.Writer, img image.Image, f Format, quality int) error {
	switch f {
	case JPEG:
		return encodeJPEG(w, img, quality)
	case PNG:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		return encoder.Encode(w, img)
	case GIF:
		return gif.Encode(w, img, &gif.Options{NumColors: 256})
	case WebP, PNGToWebP:
		return encodeWebP(w, img, quality)
	default:
		return fmt.Errorf("unsupported format %d", f)
	}
}

// encodeJPEG handles JPEG encoding, using an RGBA view of opaque NRGBA
// images (faster path). The encoder clamps quality into 1-100 itself.
func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	if nrgba, ok := img.(*image.NRGBA); ok && isOpaque(nrgba) {
		rgba := &image.RGBA{
			Pix:    nrgba.Pix,
			Stride: nrgba.Stride,
			Rect:   nrgba.Rect,
		}
		return jpeg.Encode(w, rgba, &jpeg.Options{Quality: quality})
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// encodeWebP hands libwebp straight-alpha samples. webp.Encode would
// premultiply NRGBA input on the way in, darkening translucent pixels.
func encodeWebP(w io.Writer, img image.Image, quality int) error {
	q := float32(clampQuality(quality))

	var (
		data []byte
		err  error
	)
	switch m := img.(type) {
	case *image.Gray:
		data, err = webp.EncodeGray(m, q)
	case *webp.RGBImage, *image.YCbCr:
		data, err = webp.EncodeRGB(m, q)
	default:
		nrgba := imaging.Clone(img)
		data, err = webp.EncodeRGBA(&image.RGBA{
			Pix:    nrgba.Pix,
			Stride: nrgba.Stride,
			Rect:   nrgba.Rect,
		}, q)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}
