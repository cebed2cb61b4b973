package encoder

import (
	"bytes"
	"context"
	"image"

	"github.com/gen2brain/jpegli"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// JPEG encodes with jpegli.  SmartSubsample keeps full-resolution chroma
// (4:4:4); otherwise chroma is subsampled 4:2:0.
type JPEG struct {
	DefaultQuality int
}

func NewJPEG(defaultQuality int) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = 85
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool { return format == core.FormatJPEG }

func (j *JPEG) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	const op = "jpeg.encode"
	if opts.Lossless {
		return nil, unsupported(op, "lossless jpeg")
	}
	src, q, err := prepare(ctx, op, img, opts, j.DefaultQuality)
	if err != nil {
		return nil, err
	}

	ratio := image.YCbCrSubsampleRatio420
	if opts.SmartSubsample {
		ratio = image.YCbCrSubsampleRatio444
	}

	var buf bytes.Buffer
	if err := jpegli.Encode(&buf, src, &jpegli.EncodingOptions{
		Quality:           q,
		ChromaSubsampling: ratio,
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return buf.Bytes(), nil
}
