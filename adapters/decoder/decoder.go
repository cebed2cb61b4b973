// Package decoder provides pure-Go decoders for the source formats the
// optimizer accepts.
package decoder

import (
	"context"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

type decodeFunc func(io.Reader) (image.Image, error)

// Std decodes one format through a standard-library style decode function.
type Std struct {
	format core.Format
	decode decodeFunc
}

// NewJPEG returns a JPEG decoder (image/jpeg).
func NewJPEG() *Std { return &Std{format: core.FormatJPEG, decode: jpeg.Decode} }

// NewPNG returns a PNG decoder (image/png).
func NewPNG() *Std { return &Std{format: core.FormatPNG, decode: png.Decode} }

// NewWebP returns a WebP decoder (golang.org/x/image/webp, lossy and
// lossless bitstreams).
func NewWebP() *Std { return &Std{format: core.FormatWebP, decode: webp.Decode} }

// NewGIF returns a decoder for the first frame of a GIF.
func NewGIF() *Std { return &Std{format: core.FormatGIF, decode: gif.Decode} }

// Register installs every Std decoder into reg.
func Register(reg core.Registry) {
	for _, d := range []*Std{NewJPEG(), NewPNG(), NewWebP(), NewGIF()} {
		reg.RegisterDecoder(d.format, d)
	}
}

func (d *Std) CanDecode(format core.Format) bool { return format == d.format }

func (d *Std) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	op := string(d.format) + ".decode"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}

	img, err := d.decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrInvalidDimensions)
	}

	return &core.ImageData{
		Image:  img,
		Format: d.format,
		Meta:   MetadataOf(img, d.format),
	}, nil
}

// MetadataOf describes img as decoded from format.
func MetadataOf(img image.Image, format core.Format) core.Metadata {
	b := img.Bounds()
	return core.Metadata{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Format:     format,
		ColorSpace: colorSpace(img),
		HasAlpha:   hasAlpha(img),
	}
}

func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}
