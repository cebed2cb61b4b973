// Package classify derives a content profile from decoded pixels.
package classify

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-optimizer/core"
)

// Thresholds controls how statistics map to profile flags.
type Thresholds struct {
	FlatEntropy       float64 // isFlat when entropy < FlatEntropy
	DarkBrightness    float64 // isDark when mean < DarkBrightness
	HighDetailEntropy float64 // isHighDetail when entropy > HighDetailEntropy
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{FlatEntropy: 4.5, DarkBrightness: 60, HighDetailEntropy: 6}
}

// Profile computes the content profile of img.  It is pure and deterministic.
func Profile(img image.Image, t Thresholds) core.ContentProfile {
	entropy, mean := Stats(img)
	return core.ContentProfile{
		Entropy:        entropy,
		MeanBrightness: mean,
		IsFlat:         entropy < t.FlatEntropy,
		IsDark:         mean < t.DarkBrightness,
		IsHighDetail:   entropy > t.HighDetailEntropy,
	}
}

// Stats returns the Shannon entropy (bits) of the 256-bin luminance
// histogram and the mean luminance (0-255).  Luminance uses BT.601 weights.
// Transparency is flattened onto black first, as the comparator does.
func Stats(img image.Image) (entropy, mean float64) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0, 0
	}
	src := imaging.Overlay(imaging.New(w, h, color.Black), img, image.Pt(0, 0), 1.0)

	var histogram [256]float64
	var sum float64
	for y := 0; y < h; y++ {
		off := y * src.Stride
		for x := 0; x < w; x++ {
			i := off + x*4
			lum := Luminance(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			sum += lum
			histogram[int(lum+0.5)]++
		}
	}

	n := float64(w * h)
	return Entropy(histogram[:], n), sum / n
}

// Entropy calculates Shannon entropy in bits from a histogram.
func Entropy(histogram []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	var e float64
	for _, count := range histogram {
		if count > 0 {
			p := count / total
			e -= p * math.Log2(p)
		}
	}
	return e
}

// Luminance returns the BT.601 luma of an 8-bit RGB triple.
func Luminance(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}
