package imgpress

// Bounds of any quality chosen by SelectQuality.
const (
	MinOptimizedQuality = 65
	MaxOptimizedQuality = 95
)

// SelectQuality picks an encoder quality from the image's pixel count and
// complexity. Large images tolerate lower quality; detailed images need more.
// The result is always within [MinOptimizedQuality, MaxOptimizedQuality].
func SelectQuality(pixelCount uint64, c Complexity) int {
	var base int
	switch {
	case pixelCount > 2_000_000:
		base = 75
	case pixelCount < 500_000:
		base = 90
	default:
		base = 82
	}

	switch c {
	case High:
		base += 8
	case Medium:
		base += 3
	default:
		base -= 5
	}

	if base < MinOptimizedQuality {
		return MinOptimizedQuality
	}
	if base > MaxOptimizedQuality {
		return MaxOptimizedQuality
	}
	return base
}
