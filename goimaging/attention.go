package goimaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// analysisSize is the longest side of the copy saliency is measured on.
	analysisSize = 256

	// centreBias is the score penalty at the far edge of the offset range.
	centreBias = 0.3

	// weakSignal is the spread, relative to the mean, below which the
	// centre window is used.
	weakSignal = 0.05
)

// attention returns the top-left corner of the width x height window of img
// with the most edge energy, weighted towards the centre.
func attention(img image.Image, width, height int) (int, int) {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	left, top := (sw-width)/2, (sh-height)/2
	if sw == width && sh == height {
		return 0, 0
	}

	factor := 1.0
	small := img
	if m := max(sw, sh); m > analysisSize {
		factor = float64(analysisSize) / float64(m)
		small = imaging.Resize(img, max(1, int(float64(sw)*factor)), max(1, int(float64(sh)*factor)), imaging.Box)
	}
	cols, rows := energy(imaging.Grayscale(small))

	if sw > width {
		left = bestOffset(cols, int(float64(width)*factor), sw-width, factor)
	}
	if sh > height {
		top = bestOffset(rows, int(float64(height)*factor), sh-height, factor)
	}
	return left, top
}

// energy sums the luminance gradient of a grayscale image per column and
// per row.
func energy(gray *image.NRGBA) ([]float64, []float64) {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	cols := make([]float64, w)
	rows := make([]float64, h)
	lum := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var e float64
			if x+1 < w {
				e += math.Abs(lum(x+1, y) - lum(x, y))
			}
			if y+1 < h {
				e += math.Abs(lum(x, y+1) - lum(x, y))
			}
			cols[x] += e
			rows[y] += e
		}
	}
	return cols, rows
}

// bestOffset slides a window over profile and maps the best window start back
// to full-size pixels, clamped to [0, maxOffset].
func bestOffset(profile []float64, window, maxOffset int, factor float64) int {
	n := len(profile)
	centre := maxOffset / 2
	if window <= 0 || window >= n {
		return centre
	}

	prefix := make([]float64, n+1)
	for i, v := range profile {
		prefix[i+1] = prefix[i] + v
	}

	positions := n - window + 1
	mid := float64(positions-1) / 2
	best, bestScore := 0, math.Inf(-1)
	lo, hi, total := math.Inf(1), math.Inf(-1), 0.0
	for off := 0; off < positions; off++ {
		s := prefix[off+window] - prefix[off]
		lo, hi, total = math.Min(lo, s), math.Max(hi, s), total+s

		score := s
		if mid > 0 {
			score *= 1 - centreBias*math.Abs(float64(off)-mid)/mid
		}
		if score > bestScore {
			best, bestScore = off, score
		}
	}

	mean := total / float64(positions)
	if mean == 0 || hi-lo < weakSignal*mean {
		return centre
	}

	off := int(float64(best)/factor + 0.5)
	if off > maxOffset {
		off = maxOffset
	}
	if off < 0 {
		off = 0
	}
	return off
}
