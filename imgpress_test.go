package imgpress

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/chai2010/webp"
	xwebp "golang.org/x/image/webp"
)

// ── Test Helpers ────────────────────────────────────────────────────────────

func makeTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*img.Stride + x*4
			img.Pix[off] = uint8(x * 255 / w)
			img.Pix[off+1] = uint8(y * 255 / h)
			img.Pix[off+2] = uint8((x + y) % 256)
			img.Pix[off+3] = 0xff
		}
	}
	return img
}

func makeSolidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// makeNoiseImage returns opaque per-pixel random colour, the worst case for
// any compressor.
func makeNoiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func dataURI(mime string, b []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func pngInput(t *testing.T, img image.Image) string {
	return dataURI("image/png", pngBytes(t, img))
}

func jpegInput(t *testing.T, img image.Image) string {
	return dataURI("image/jpeg", jpegBytes(t, img))
}

// webpBytes encodes img as lossy WebP. The samples go in straight, the way
// libwebp expects them.
func webpBytes(t *testing.T, img *image.NRGBA) []byte {
	t.Helper()
	b, err := webp.EncodeRGBA(&image.RGBA{Pix: img.Pix, Stride: img.Stride, Rect: img.Rect}, 90)
	if err != nil {
		t.Fatalf("webp encode: %v", err)
	}
	return b
}

// webpLosslessBytes encodes img as exact lossless WebP.
func webpLosslessBytes(t *testing.T, img *image.NRGBA) []byte {
	t.Helper()
	b, err := webp.EncodeExactLosslessRGBA(&image.RGBA{Pix: img.Pix, Stride: img.Stride, Rect: img.Rect})
	if err != nil {
		t.Fatalf("webp lossless encode: %v", err)
	}
	return b
}

// decodeResult decodes the pixels of a result's data URI. WebP goes through
// x/image/webp so the check does not share a codec with the encoder.
func decodeResult(t *testing.T, r *ProcessResult) (image.Image, string) {
	t.Helper()
	raw, err := DecodeTransport(r.Data, 0)
	if err != nil {
		t.Fatalf("DecodeTransport(result): %v", err)
	}
	var (
		img  image.Image
		name string
	)
	if r.Format == "webp" {
		name = "webp"
		img, err = xwebp.Decode(bytes.NewReader(raw))
	} else {
		img, name, err = image.Decode(bytes.NewReader(raw))
	}
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return img, name
}

func ctx() context.Context { return context.Background() }

func opts(f Format) ImageOptions {
	o := DefaultOptions()
	o.Format = f
	return o
}

// ── Pipeline Tests ──────────────────────────────────────────────────────────

func TestProcessPassThroughDimensions(t *testing.T) {
	input := pngInput(t, makeTestImage(120, 80))

	cases := []struct {
		name       string
		maxW, maxH int
	}{
		{"no bounds", 0, 0},
		{"within both", 200, 100},
		{"exact fit", 120, 80},
		{"width only", 500, 0},
		{"height only", 0, 80},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			o := opts(JPEG)
			o.MaxWidth, o.MaxHeight = c.maxW, c.maxH
			r, err := Process(ctx(), input, o)
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if r.Width != 120 || r.Height != 80 {
				t.Fatalf("expected 120x80, got %dx%d", r.Width, r.Height)
			}
		})
	}
}

func TestProcessResizeMaxWidth(t *testing.T) {
	o := opts(PNG)
	o.MaxWidth = 200

	r, err := Process(ctx(), pngInput(t, makeTestImage(400, 300)), o)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Width != 200 || r.Height != 150 {
		t.Fatalf("expected 200x150, got %dx%d", r.Width, r.Height)
	}

	img, _ := decodeResult(t, r)
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Fatalf("encoded image is %dx%d, result says %dx%d", b.Dx(), b.Dy(), r.Width, r.Height)
	}
}

func TestProcessResizeBothBounds(t *testing.T) {
	o := opts(JPEG)
	o.MaxWidth = 100
	o.MaxHeight = 100

	r, err := Process(ctx(), pngInput(t, makeTestImage(400, 300)), o)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Width != 100 || r.Height != 75 {
		t.Fatalf("expected 100x75, got %dx%d", r.Width, r.Height)
	}
}

func TestProcessResizeOnlyHeightExceeded(t *testing.T) {
	o := opts(JPEG)
	o.MaxWidth = 1000
	o.MaxHeight = 50

	r, err := Process(ctx(), pngInput(t, makeTestImage(200, 100)), o)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Width != 100 || r.Height != 50 {
		t.Fatalf("expected 100x50, got %dx%d", r.Width, r.Height)
	}
}

func TestProcessFormats(t *testing.T) {
	input := pngInput(t, makeTestImage(64, 48))

	cases := []struct {
		format  string
		label   string
		decoder string
	}{
		{"jpeg", "jpeg", "jpeg"},
		{"JPG", "jpeg", "jpeg"},
		{"png", "png", "png"},
		{"GIF", "gif", "gif"},
		{"webp", "webp", "webp"},
		{"bmp", "jpeg", "jpeg"},
		{"", "jpeg", "jpeg"},
	}
	for _, c := range cases {
		t.Run(c.format, func(t *testing.T) {
			r, err := Process(ctx(), input, opts(ParseFormat(c.format)))
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if r.Format != c.label {
				t.Fatalf("expected label %q, got %q", c.label, r.Format)
			}
			if want := "data:image/" + c.label + ";base64,"; !strings.HasPrefix(r.Data, want) {
				t.Fatalf("expected data to start with %q, got %q", want, r.Data[:min(len(r.Data), 40)])
			}
			_, name := decodeResult(t, r)
			if name != c.decoder {
				t.Fatalf("expected output decodable as %s, got %s", c.decoder, name)
			}
		})
	}
}

func TestProcessSizeMatchesPayload(t *testing.T) {
	r, err := Process(ctx(), pngInput(t, makeTestImage(50, 50)), opts(PNG))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	raw, err := DecodeTransport(r.Data, 0)
	if err != nil {
		t.Fatalf("DecodeTransport: %v", err)
	}
	if len(raw) != r.Size {
		t.Fatalf("Size %d does not match payload length %d", r.Size, len(raw))
	}
}

func TestProcessPNGToWebP(t *testing.T) {
	r, err := Process(ctx(), pngInput(t, makeTestImage(64, 64)), opts(PNGToWebP))
	if err != nil {
		t.Fatalf("png-to-webp on PNG failed: %v", err)
	}
	if r.Format != "webp" {
		t.Fatalf("expected label webp, got %q", r.Format)
	}
	if !strings.HasPrefix(r.Data, "data:image/webp;base64,") {
		t.Fatalf("unexpected data prefix: %q", r.Data[:30])
	}
	if _, name := decodeResult(t, r); name != "webp" {
		t.Fatalf("expected webp output, got %s", name)
	}
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	return d >= -tol && d <= tol
}

func TestProcessWebPKeepsStraightAlpha(t *testing.T) {
	want := color.NRGBA{200, 100, 50, 128}
	o := opts(PNGToWebP)
	o.Quality = 100

	r, err := Process(ctx(), pngInput(t, makeSolidImage(64, 64, want)), o)
	if err != nil {
		t.Fatalf("png-to-webp failed: %v", err)
	}
	img, _ := decodeResult(t, r)
	got := color.NRGBAModel.Convert(img.At(32, 32)).(color.NRGBA)
	if !near(got.R, want.R, 8) || !near(got.G, want.G, 8) || !near(got.B, want.B, 8) || !near(got.A, want.A, 2) {
		t.Fatalf("translucent pixel = %v, want about %v", got, want)
	}
}

func TestProcessWebPInputKeepsStraightAlpha(t *testing.T) {
	want := color.NRGBA{200, 100, 50, 128}
	input := dataURI("image/webp", webpLosslessBytes(t, makeSolidImage(16, 16, want)))

	r, err := Process(ctx(), input, opts(PNG))
	if err != nil {
		t.Fatalf("webp to png failed: %v", err)
	}
	img, _ := decodeResult(t, r)
	got := color.NRGBAModel.Convert(img.At(8, 8)).(color.NRGBA)
	if got != want {
		t.Fatalf("translucent pixel = %v, want %v", got, want)
	}
}

func TestProcessWebPOpaqueRoundTrip(t *testing.T) {
	src := makeSolidImage(32, 32, color.NRGBA{30, 140, 220, 255})
	input := dataURI("image/webp", webpBytes(t, src))

	o := opts(WebP)
	o.Quality = 100
	r, err := Process(ctx(), input, o)
	if err != nil {
		t.Fatalf("webp to webp failed: %v", err)
	}
	img, _ := decodeResult(t, r)
	got := color.NRGBAModel.Convert(img.At(16, 16)).(color.NRGBA)
	if !near(got.R, 30, 8) || !near(got.G, 140, 8) || !near(got.B, 220, 8) || got.A != 255 {
		t.Fatalf("opaque pixel = %v", got)
	}
}

func TestProcessPNGToWebPRejectsNonPNG(t *testing.T) {
	_, err := Process(ctx(), jpegInput(t, makeTestImage(64, 64)), opts(PNGToWebP))
	if err == nil {
		t.Fatal("expected png-to-webp on JPEG to fail")
	}
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected InvalidFormat, got %v", err)
	}
}

func TestProcessDecodeError(t *testing.T) {
	_, err := Process(ctx(), "data:image/png;base64,@@not-base64@@", opts(JPEG))
	if KindOf(err) != KindDecode {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestProcessIOError(t *testing.T) {
	garbage := base64.StdEncoding.EncodeToString([]byte("definitely not an image"))
	_, err := Process(ctx(), garbage, opts(JPEG))
	if KindOf(err) != KindIO {
		t.Fatalf("expected IoError, got %v", err)
	}
}

func TestProcessWithoutPrefix(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString(pngBytes(t, makeTestImage(30, 20)))
	r, err := Process(ctx(), raw, opts(PNG))
	if err != nil {
		t.Fatalf("Process without data URI prefix failed: %v", err)
	}
	if r.Width != 30 || r.Height != 20 {
		t.Fatalf("expected 30x20, got %dx%d", r.Width, r.Height)
	}
}

func TestProcessTooLarge(t *testing.T) {
	p := New(Config{MaxInputSize: 64})
	_, err := p.Process(ctx(), pngInput(t, makeTestImage(100, 100)), opts(JPEG))
	if KindOf(err) != KindTooLarge {
		t.Fatalf("expected TooLarge, got %v", err)
	}

	unlimited := New(Config{MaxInputSize: -1})
	if _, err := unlimited.Process(ctx(), pngInput(t, makeTestImage(100, 100)), opts(JPEG)); err != nil {
		t.Fatalf("unlimited processor failed: %v", err)
	}
}

func TestProcessCanceled(t *testing.T) {
	c, cancel := context.WithCancel(ctx())
	cancel()
	_, err := Process(c, pngInput(t, makeTestImage(10, 10)), opts(JPEG))
	if KindOf(err) != KindCanceled {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func TestProcessRawQualityUsed(t *testing.T) {
	o := opts(JPEG)
	o.Quality = 42
	r, err := Process(ctx(), pngInput(t, makeTestImage(50, 50)), o)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Quality != 42 {
		t.Fatalf("expected caller quality 42, got %d", r.Quality)
	}
}

func TestProcessOptimizeLargeSolid(t *testing.T) {
	if testing.Short() {
		t.Skip("large image")
	}
	o := opts(JPEG)
	o.Quality = 10
	o.Optimize = true

	img := makeSolidImage(3000, 2000, color.NRGBA{40, 120, 200, 255})
	r, err := Process(ctx(), pngInput(t, img), o)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Quality != 70 {
		t.Fatalf("expected optimized quality 70, got %d", r.Quality)
	}
}

func TestProcessOptimizeTexture(t *testing.T) {
	o := opts(JPEG)
	o.Optimize = true

	r, err := Process(ctx(), pngInput(t, makeNoiseImage(400, 300, 7)), o)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Quality != 95 {
		t.Fatalf("expected optimized quality 95, got %d", r.Quality)
	}
}

func TestProcessOptimizeUsesResizedDimensions(t *testing.T) {
	if testing.Short() {
		t.Skip("large image")
	}
	o := opts(JPEG)
	o.Optimize = true
	o.MaxWidth = 600

	// 3000x2000 would be base 75; resized to 600x400 it is base 90.
	img := makeSolidImage(3000, 2000, color.NRGBA{200, 200, 200, 255})
	r, err := Process(ctx(), pngInput(t, img), o)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Width != 600 || r.Height != 400 {
		t.Fatalf("expected 600x400, got %dx%d", r.Width, r.Height)
	}
	if r.Quality != 85 {
		t.Fatalf("expected quality 85 for small solid image, got %d", r.Quality)
	}
}

func TestProcessOptimizeQualityBounded(t *testing.T) {
	images := []image.Image{
		makeSolidImage(20, 20, color.NRGBA{0, 0, 0, 255}),
		makeTestImage(300, 200),
		makeNoiseImage(120, 90, 1),
		makeNoiseImage(900, 700, 2),
	}
	o := opts(JPEG)
	o.Optimize = true
	for i, img := range images {
		r, err := Process(ctx(), pngInput(t, img), o)
		if err != nil {
			t.Fatalf("image %d: %v", i, err)
		}
		if r.Quality < MinOptimizedQuality || r.Quality > MaxOptimizedQuality {
			t.Fatalf("image %d: quality %d outside [%d, %d]", i, r.Quality, MinOptimizedQuality, MaxOptimizedQuality)
		}
	}
}

func TestProcessIdempotentDimensions(t *testing.T) {
	first := opts(PNG)
	first.MaxWidth = 150
	first.StripMetadata = true

	r1, err := Process(ctx(), pngInput(t, makeTestImage(300, 200)), first)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	r2, err := Process(ctx(), r1.Data, opts(PNG))
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if r1.Width != r2.Width || r1.Height != r2.Height {
		t.Fatalf("dimensions changed on re-run: %dx%d -> %dx%d", r1.Width, r1.Height, r2.Width, r2.Height)
	}
}

func TestProcessStripMetadataKeepsPixels(t *testing.T) {
	input := pngInput(t, makeTestImage(40, 30))

	plain, err := Process(ctx(), input, opts(PNG))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	o := opts(PNG)
	o.StripMetadata = true
	stripped, err := Process(ctx(), input, o)
	if err != nil {
		t.Fatalf("Process with strip failed: %v", err)
	}

	a, _ := decodeResult(t, plain)
	b, _ := decodeResult(t, stripped)
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			r1, g1, b1, _ := a.At(x, y).RGBA()
			r2, g2, b2, _ := b.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 {
				t.Fatalf("pixel (%d,%d) changed after strip", x, y)
			}
		}
	}
}

func TestProcessProgressiveIsNoOp(t *testing.T) {
	input := pngInput(t, makeTestImage(64, 64))

	base, err := Process(ctx(), input, opts(JPEG))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	o := opts(JPEG)
	o.Progressive = true
	prog, err := Process(ctx(), input, o)
	if err != nil {
		t.Fatalf("Process with progressive failed: %v", err)
	}
	if base.Data != prog.Data {
		t.Fatal("progressive changed the output")
	}
}
