// Package encoder provides the pure-Go encoders used by the "go" backend:
// WebP through chai2010/webp, JPEG through jpegli and PNG through the
// standard library.
package encoder

import (
	"context"
	"fmt"
	"image"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// Register installs the WebP, JPEG and PNG encoders into reg.
func Register(reg core.Registry, defaultQuality int) {
	reg.RegisterEncoder(core.FormatWebP, NewWebP(defaultQuality))
	reg.RegisterEncoder(core.FormatJPEG, NewJPEG(defaultQuality))
	reg.RegisterEncoder(core.FormatPNG, NewPNG())
}

// prepare checks the call and returns the pixels and effective quality.
func prepare(ctx context.Context, op string, img *core.ImageData, opts core.EncodeOptions, def int) (image.Image, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if img == nil {
		return nil, 0, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	src, ok := img.Pixels()
	if !ok {
		return nil, 0, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	q := opts.Quality
	if q == 0 {
		q = def
	}
	if q < 1 || q > 100 {
		return nil, 0, apperrors.New(apperrors.CategoryEncode, op,
			fmt.Errorf("%w: got %d", apperrors.ErrInvalidQuality, q))
	}
	return src, q, nil
}

func unsupported(op, what string) error {
	return apperrors.New(apperrors.CategoryEncode, op,
		fmt.Errorf("%w: %s", apperrors.ErrUnsupportedOption, what))
}
