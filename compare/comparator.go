// Package compare scores a re-encoded image against its original.
package compare

import (
	"context"
	"fmt"
	"image"

	"github.com/corona10/goimagehash"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/utils"
)

const (
	// DefaultCanvas is the edge of the square canvas both images are fitted
	// to before scoring.
	DefaultCanvas = 512

	hashDim = 16
)

// Comparator implements core.Comparator with windowed SSIM on a common
// canvas.  It holds no per-call state and is safe for concurrent use.
type Comparator struct {
	registry core.Registry
	canvas   int
}

// New returns a Comparator that decodes through reg and scores on a
// canvas x canvas square.  canvas <= 0 selects DefaultCanvas.
func New(reg core.Registry, canvas int) *Comparator {
	if canvas <= 0 {
		canvas = DefaultCanvas
	}
	return &Comparator{registry: reg, canvas: canvas}
}

// Compare decodes both inputs, fits them to the canvas and returns their
// SSIM together with the perceptual hash distance.
func (c *Comparator) Compare(ctx context.Context, original, candidate []byte) (core.Similarity, error) {
	a, err := c.load(ctx, "original", original)
	if err != nil {
		return core.Similarity{}, err
	}
	b, err := c.load(ctx, "candidate", candidate)
	if err != nil {
		return core.Similarity{}, err
	}

	ca := Canvas(a, c.canvas)
	cb := Canvas(b, c.canvas)

	dist, err := HashDistance(ca, cb)
	if err != nil {
		return core.Similarity{}, apperrors.New(apperrors.CategoryComparison, "compare.hash", err)
	}
	return core.Similarity{SSIM: SSIM(ca, cb), HashDistance: dist}, nil
}

// HashDistance returns the Hamming distance between the 16x16 extended
// perception hashes of a and b.
func HashDistance(a, b image.Image) (int, error) {
	ha, err := goimagehash.ExtPerceptionHash(a, hashDim, hashDim)
	if err != nil {
		return 0, err
	}
	hb, err := goimagehash.ExtPerceptionHash(b, hashDim, hashDim)
	if err != nil {
		return 0, err
	}
	return ha.Distance(hb)
}

func (c *Comparator) load(ctx context.Context, which string, data []byte) (image.Image, error) {
	return Load(ctx, c.registry, "compare."+which, data)
}

// Load sniffs and decodes data through reg, returning its pixels.  Every
// failure is reported as a comparison error under op.
func Load(ctx context.Context, reg core.Registry, op string, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryComparison, op, apperrors.ErrEmptyInput)
	}
	format := core.Format(utils.DetectFormat(data))
	decoded, err := core.DecodeBytes(ctx, reg, format, data)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryComparison, op, err)
	}
	img, ok := decoded.Pixels()
	if !ok {
		return nil, apperrors.New(apperrors.CategoryComparison, op,
			fmt.Errorf("%w: no pixel buffer", apperrors.ErrInvalidDimensions))
	}
	return img, nil
}
