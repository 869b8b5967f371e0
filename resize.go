package imgpress

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// fitDimensions computes the output size for the given bounds. It returns
// ok=false when no bound is set or the image already fits.
//
// With both bounds the scale is the smaller of the two ratios; with one
// bound only that ratio applies. Aspect ratio is preserved and each side is
// rounded to the nearest pixel, never below 1.
func fitDimensions(w, h, maxW, maxH int) (dstW, dstH int, ok bool) {
	var ratio float64
	switch {
	case maxW > 0 && maxH > 0:
		if w <= maxW && h <= maxH {
			return w, h, false
		}
		ratio = math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	case maxW > 0:
		if w <= maxW {
			return w, h, false
		}
		ratio = float64(maxW) / float64(w)
	case maxH > 0:
		if h <= maxH {
			return w, h, false
		}
		ratio = float64(maxH) / float64(h)
	default:
		return w, h, false
	}

	dstW = int(math.Max(1, math.Round(float64(w)*ratio)))
	dstH = int(math.Max(1, math.Round(float64(h)*ratio)))
	return dstW, dstH, true
}

// resizeIfNeeded shrinks img to fit maxW x maxH with a Lanczos filter.
// An image that already fits is returned as is.
func resizeIfNeeded(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	dstW, dstH, ok := fitDimensions(b.Dx(), b.Dy(), maxW, maxH)
	if !ok {
		return img
	}
	return imaging.Resize(img, dstW, dstH, imaging.Lanczos)
}
