package encoder

import (
	"bytes"
	"context"

	"github.com/chai2010/webp"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// WebP encodes through libwebp bundled with chai2010/webp.
//
// The bundled API has no near-lossless or sharp-YUV switches, so both are
// applied to the pixels here first.  NearLossless > 0 codes the preprocessed
// pixels losslessly and ignores Quality, as libwebp does.  SmartSubsample
// runs the sharp chroma pass before a lossy encode.
type WebP struct {
	DefaultQuality int
}

func NewWebP(defaultQuality int) *WebP {
	if defaultQuality <= 0 {
		defaultQuality = 80
	}
	return &WebP{DefaultQuality: defaultQuality}
}

func (w *WebP) CanEncode(format core.Format) bool { return format == core.FormatWebP }

func (w *WebP) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	const op = "webp.encode"
	if opts.Lossless && opts.NearLossless > 0 {
		return nil, unsupported(op, "lossless with near-lossless preprocessing")
	}
	if opts.NearLossless < 0 || opts.NearLossless > 100 {
		return nil, unsupported(op, "near-lossless level out of range")
	}
	src, q, err := prepare(ctx, op, img, opts, w.DefaultQuality)
	if err != nil {
		return nil, err
	}

	o := &webp.Options{Quality: float32(q)}
	switch {
	case opts.Lossless:
		// chai2010 codes lossless at a fixed effort; Effort only reaches libvips.
		o = &webp.Options{Lossless: true, Exact: true}
	case opts.NearLossless > 0:
		src = NearLossless(src, opts.NearLossless)
		o = &webp.Options{Lossless: true}
	case opts.SmartSubsample:
		src = SharpChroma(src)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, src, o); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return buf.Bytes(), nil
}
