// Package diff renders a contrast-stretched difference image for human
// review of a recompressed candidate.  Its output never feeds a decision.
package diff

import (
	"bytes"
	"context"
	"image"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-optimizer/classify"
	"github.com/Skryldev/image-optimizer/compare"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// DefaultCanvas is the edge of the square preview canvas.
const DefaultCanvas = 800

const (
	lowPercentile  = 0.01
	highPercentile = 0.99
)

// Visualizer implements core.Visualizer.
type Visualizer struct {
	registry core.Registry
	canvas   int
}

// New returns a Visualizer rendering on a canvas x canvas preview.
func New(reg core.Registry, canvas int) *Visualizer {
	if canvas <= 0 {
		canvas = DefaultCanvas
	}
	return &Visualizer{registry: reg, canvas: canvas}
}

// Render returns a PNG of the stretched per-pixel difference between
// original and candidate.  An empty candidate yields an empty result.
func (v *Visualizer) Render(ctx context.Context, original, candidate []byte) ([]byte, error) {
	if len(candidate) == 0 {
		return nil, nil
	}
	a, err := compare.Load(ctx, v.registry, "diff.original", original)
	if err != nil {
		return nil, err
	}
	b, err := compare.Load(ctx, v.registry, "diff.candidate", candidate)
	if err != nil {
		return nil, err
	}

	out := Stretch(Difference(compare.Canvas(a, v.canvas), compare.Canvas(b, v.canvas)))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "diff.encode", err)
	}
	return buf.Bytes(), nil
}

// Difference returns the absolute per-channel difference of two equally
// sized images.  The result is fully opaque.
func Difference(a, b *image.NRGBA) *image.NRGBA {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride:]
		rb := b.Pix[y*b.Stride:]
		ro := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			ro[i] = absDiff(ra[i], rb[i])
			ro[i+1] = absDiff(ra[i+1], rb[i+1])
			ro[i+2] = absDiff(ra[i+2], rb[i+2])
			ro[i+3] = 0xff
		}
	}
	return out
}

// Stretch linearly maps the 1st..99th luminance percentile range of img to
// the full 0..255 range, clipping values outside it.  img is modified in
// place and returned.
func Stretch(img *image.NRGBA) *image.NRGBA {
	low, high := percentiles(img)
	if high <= low {
		high = low + 1
	}
	scale := 255 / float64(high-low)

	var lut [256]uint8
	for i := range lut {
		v := (float64(i) - float64(low)) * scale
		switch {
		case v < 0:
			lut[i] = 0
		case v > 255:
			lut[i] = 255
		default:
			lut[i] = uint8(v + 0.5)
		}
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			row[i] = lut[row[i]]
			row[i+1] = lut[row[i+1]]
			row[i+2] = lut[row[i+2]]
		}
	}
	return img
}

func percentiles(img *image.NRGBA) (low, high int) {
	var hist [256]int
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			hist[int(classify.Luminance(row[i], row[i+1], row[i+2])+0.5)]++
		}
	}
	total := w * h
	if total == 0 {
		return 0, 0
	}
	lowRank := int(float64(total) * lowPercentile)
	highRank := int(float64(total) * highPercentile)

	low, high = -1, -1
	seen := 0
	for v, n := range hist {
		seen += n
		if low < 0 && seen > lowRank {
			low = v
		}
		if high < 0 && seen > highRank {
			high = v
			break
		}
	}
	if high < 0 {
		high = 255
	}
	return low, high
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
