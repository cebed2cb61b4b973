package compare

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-optimizer/classify"
	"github.com/Skryldev/image-optimizer/utils"
)

// SSIM constants from Wang et al.
const (
	ssimK1 = 0.01
	ssimK2 = 0.03
	ssimL  = 255.0
	ssimC1 = (ssimK1 * ssimL) * (ssimK1 * ssimL)
	ssimC2 = (ssimK2 * ssimL) * (ssimK2 * ssimL)

	windowSize = 8
	sigma      = 1.5
)

// kernel is the normalised 8x8 Gaussian weighting window.
var kernel = gaussianKernel(windowSize, sigma)

// Canvas scales img to fit a size x size square, preserving aspect ratio,
// and composites it centred over an opaque black background, so transparent
// pixels score as black whatever colour they hide.  Upscaling is allowed so
// that images of different native resolutions are compared at the same scale.
func Canvas(img image.Image, size int) *image.NRGBA {
	b := img.Bounds()
	w, h := utils.FitDimensions(b.Dx(), b.Dy(), size, size)
	bg := imaging.New(size, size, color.Black)
	if w == 0 || h == 0 {
		return bg
	}
	fitted := imaging.Resize(img, w, h, imaging.Lanczos)
	return imaging.Overlay(bg, fitted, image.Pt((size-w)/2, (size-h)/2), 1.0)
}

// SSIM returns the mean structural similarity of two equally sized images,
// computed over an 8x8 Gaussian-weighted sliding window on BT.601 luminance.
// The result is clamped to [0,1].  Images smaller than the window fall back
// to a single global comparison.
func SSIM(a, b *image.NRGBA) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w != b.Bounds().Dx() || h != b.Bounds().Dy() {
		b = imaging.Resize(b, w, h, imaging.Lanczos)
	}
	if w == 0 || h == 0 {
		return 0
	}

	lumA := luminance(a)
	lumB := luminance(b)

	if w < windowSize || h < windowSize {
		return clamp(globalSSIM(lumA, lumB))
	}
	return clamp(windowedSSIM(lumA, lumB, w, h))
}

func windowedSSIM(lumA, lumB []float64, w, h int) float64 {
	var sum float64
	var count int
	for y := 0; y+windowSize <= h; y++ {
		for x := 0; x+windowSize <= w; x++ {
			var muA, muB float64
			ki := 0
			for wy := 0; wy < windowSize; wy++ {
				row := (y + wy) * w
				for wx := 0; wx < windowSize; wx++ {
					k := kernel[ki]
					muA += lumA[row+x+wx] * k
					muB += lumB[row+x+wx] * k
					ki++
				}
			}

			var sigAA, sigBB, sigAB float64
			ki = 0
			for wy := 0; wy < windowSize; wy++ {
				row := (y + wy) * w
				for wx := 0; wx < windowSize; wx++ {
					k := kernel[ki]
					da := lumA[row+x+wx] - muA
					db := lumB[row+x+wx] - muB
					sigAA += da * da * k
					sigBB += db * db * k
					sigAB += da * db * k
					ki++
				}
			}

			sum += ssimIndex(muA, muB, sigAA, sigBB, sigAB)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func globalSSIM(lumA, lumB []float64) float64 {
	n := float64(len(lumA))
	var muA, muB float64
	for i := range lumA {
		muA += lumA[i]
		muB += lumB[i]
	}
	muA /= n
	muB /= n

	var sigAA, sigBB, sigAB float64
	for i := range lumA {
		da := lumA[i] - muA
		db := lumB[i] - muB
		sigAA += da * da
		sigBB += db * db
		sigAB += da * db
	}
	return ssimIndex(muA, muB, sigAA/n, sigBB/n, sigAB/n)
}

func ssimIndex(muA, muB, sigAA, sigBB, sigAB float64) float64 {
	num := (2*muA*muB + ssimC1) * (2*sigAB + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (sigAA + sigBB + ssimC2)
	return num / den
}

func luminance(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		off := y * img.Stride
		for x := 0; x < w; x++ {
			i := off + x*4
			lum[y*w+x] = classify.Luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}
	return lum
}

func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size*size)
	center := float64(size-1) / 2
	var sum float64
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			v := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			k[y*size+x] = v
			sum += v
		}
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
