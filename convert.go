package imgpress

import (
	"image"
	"image/color"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// GrayAlpha is an in-memory image of 8-bit luminance plus 8-bit alpha,
// two bytes per pixel. The standard library has no such layout.
type GrayAlpha struct {
	// Pix holds Y, A pairs in row-major order.
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewGrayAlpha returns a new GrayAlpha image with the given bounds.
func NewGrayAlpha(r image.Rectangle) *GrayAlpha {
	return &GrayAlpha{
		Pix:    make([]uint8, 2*r.Dx()*r.Dy()),
		Stride: 2 * r.Dx(),
		Rect:   r,
	}
}

func (p *GrayAlpha) ColorModel() color.Model { return color.NRGBAModel }

func (p *GrayAlpha) Bounds() image.Rectangle { return p.Rect }

func (p *GrayAlpha) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*2
}

func (p *GrayAlpha) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.NRGBA{}
	}
	i := p.PixOffset(x, y)
	v := p.Pix[i]
	return color.NRGBA{v, v, v, p.Pix[i+1]}
}

func (p *GrayAlpha) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	i := p.PixOffset(x, y)
	p.Pix[i] = grayLevel(n.R, n.G, n.B)
	p.Pix[i+1] = n.A
}

// Opaque reports whether every pixel is fully opaque.
func (p *GrayAlpha) Opaque() bool {
	for i := 1; i < len(p.Pix); i += 2 {
		if p.Pix[i] != 0xff {
			return false
		}
	}
	return true
}

// stripMetadata copies the pixels of img into a fresh container matching
// model, keeping channel count and bit depth. Models without a dedicated
// container become NRGBA.
func stripMetadata(img image.Image, model ColorModel) image.Image {
	b := img.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())

	switch model {
	case ModelGray:
		dst := image.NewGray(r)
		draw.Draw(dst, r, img, b.Min, draw.Src)
		return dst
	case ModelGrayAlpha:
		src := imaging.Clone(img)
		dst := NewGrayAlpha(r)
		for y := 0; y < r.Dy(); y++ {
			so := y * src.Stride
			do := y * dst.Stride
			for x := 0; x < r.Dx(); x++ {
				i := so + x*4
				dst.Pix[do+x*2] = grayLevel(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
				dst.Pix[do+x*2+1] = src.Pix[i+3]
			}
		}
		return dst
	case ModelRGB:
		src := imaging.Clone(img)
		dst := webp.NewRGBImage(r)
		for y := 0; y < r.Dy(); y++ {
			so := y * src.Stride
			do := y * dst.XStride
			for x := 0; x < r.Dx(); x++ {
				copy(dst.XPix[do+x*3:do+x*3+3], src.Pix[so+x*4:so+x*4+3])
			}
		}
		return dst
	default:
		return imaging.Clone(img)
	}
}

// grayLevel matches color.GrayModel's BT.601 weights on 8-bit input.
func grayLevel(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}

// isOpaque checks if all pixels have full alpha.
func isOpaque(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}
