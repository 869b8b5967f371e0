package imgpress

import (
	"image"

	"github.com/disintegration/imaging"
)

// Complexity is a coarse judgment of how much visual detail an image has.
type Complexity int

const (
	// Low covers logos, icons and flat graphics.
	Low Complexity = iota
	// Medium covers illustrations and simple photographs.
	Medium
	// High covers detailed photographs and textures.
	High
)

func (c Complexity) String() string {
	switch c {
	case High:
		return "High"
	case Medium:
		return "Medium"
	default:
		return "Low"
	}
}

const (
	largeImagePixels = 1_000_000

	edgeStride      = 2
	edgeStrideLarge = 5
	edgeThreshold   = 20

	colorStride      = 3
	colorStrideLarge = 7
	colorLevels      = 32
	colorBuckets     = colorLevels * colorLevels * colorLevels

	highEdgeDensity      = 0.15
	highColorDiversity   = 0.7
	mediumEdgeDensity    = 0.08
	mediumColorDiversity = 0.4
)

// ComplexityStats holds the measurements behind a Complexity class.
type ComplexityStats struct {
	// EdgeDensity is the fraction of sampled points whose luminance
	// gradient exceeds the edge threshold (0-1).
	EdgeDensity float64

	// ColorDiversity is the fraction of the 32x32x32 quantised RGB palette
	// observed in the sample (0-1).
	ColorDiversity float64

	// Class is the classification derived from the two measurements.
	Class Complexity
}

// EstimateComplexity classifies the visual complexity of img.
func EstimateComplexity(img image.Image) Complexity {
	return AnalyzeComplexity(img).Class
}

// AnalyzeComplexity measures edge density and colour diversity of img and
// classifies it. Both measurements are sampled on a fixed stride grid, so
// the cost is bounded regardless of resolution.
func AnalyzeComplexity(img image.Image) ComplexityStats {
	src := toNRGBARef(img)

	stats := ComplexityStats{
		EdgeDensity:    edgeDensity(src),
		ColorDiversity: colorDiversity(src),
	}
	stats.Class = classify(stats.EdgeDensity, stats.ColorDiversity)
	return stats
}

func classify(edges, diversity float64) Complexity {
	switch {
	case edges > highEdgeDensity || diversity > highColorDiversity:
		return High
	case edges > mediumEdgeDensity || diversity > mediumColorDiversity:
		return Medium
	default:
		return Low
	}
}

// edgeDensity samples every s-th interior point and compares it with the
// neighbours s pixels away on each side.
func edgeDensity(img *image.NRGBA) float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}

	s := edgeStride
	if w*h > largeImagePixels {
		s = edgeStrideLarge
	}

	edges, sampled := 0, 0
	for y := s; y < h-s; y += s {
		for x := s; x < w-s; x += s {
			dx := absInt(luminance(img, x-s, y) - luminance(img, x+s, y))
			dy := absInt(luminance(img, x, y-s) - luminance(img, x, y+s))
			if float64(dx+dy)/2 > edgeThreshold {
				edges++
			}
			sampled++
		}
	}

	if sampled == 0 {
		return 0
	}
	return float64(edges) / float64(sampled)
}

// colorDiversity counts distinct colours after reducing each channel to 32
// levels. Alpha is ignored.
func colorDiversity(img *image.NRGBA) float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0
	}

	s := colorStride
	if w*h > largeImagePixels {
		s = colorStrideLarge
	}

	var seen [colorBuckets]bool
	unique := 0
	for y := 0; y < h; y += s {
		off := y * img.Stride
		for x := 0; x < w; x += s {
			i := off + x*4
			key := int(img.Pix[i]>>3)<<10 | int(img.Pix[i+1]>>3)<<5 | int(img.Pix[i+2]>>3)
			if !seen[key] {
				seen[key] = true
				unique++
			}
		}
	}

	d := float64(unique) / colorBuckets
	if d > 1 {
		return 1
	}
	return d
}

// luminance returns the BT.601 luma of the pixel at (x, y) on a 0-255 scale.
// Integer arithmetic keeps the result exact across platforms.
func luminance(img *image.NRGBA, x, y int) int {
	off := y*img.Stride + x*4
	r := int(img.Pix[off])
	g := int(img.Pix[off+1])
	b := int(img.Pix[off+2])
	return (299*r + 587*g + 114*b + 500) / 1000
}

// toNRGBARef returns img itself when it is already an *image.NRGBA anchored
// at the origin, otherwise a converted copy. The caller must not modify it.
func toNRGBARef(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(img)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
