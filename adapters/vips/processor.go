// Package vips is the libvips codec backend.  It decodes every source format
// libvips understands and encodes WebP with libvips' native near-lossless
// coding and reduction effort.
package vips

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"runtime"
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-optimizer/adapters/encoder"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend decodes through libvips and hands out per-format encoders.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

var startOnce sync.Once

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 80
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	startOnce.Do(func() {
		govips.Startup(&govips.Config{
			ConcurrencyLevel: cfg.MaxWorkers,
			MaxCacheSize:     cfg.MaxCacheSize,
			ReportLeaks:      cfg.ReportLeaks,
		})
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF:
		return true
	}
	return false
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	raw, err := utils.ReadAll(ctx, r, 0, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	// Candidates are written without metadata, so the original is brought
	// upright here to keep comparisons aligned.
	format := vipsFormatToCore(ref.Format())
	if ref.Orientation() > 1 {
		if err := ref.AutoRotate(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.rotate", err)
		}
	}
	return &core.ImageData{
		Data:         raw,
		Format:       format,
		Image:        &VipsImage{ref: ref},
		OriginalSize: int64(len(raw)),
		Meta: core.Metadata{
			Width:      ref.Width(),
			Height:     ref.Height(),
			Format:     format,
			ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation()),
			HasAlpha:   ref.HasAlpha(),
			SizeBytes:  int64(len(raw)),
		},
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

// Encoder writes one target format through libvips.
type Encoder struct {
	format  core.Format
	quality int
}

// Encoder returns the encoder for format f.
func (b *Backend) Encoder(f core.Format) *Encoder {
	return &Encoder{format: f, quality: b.cfg.DefaultQuality}
}

func (e *Encoder) CanEncode(f core.Format) bool { return f == e.format }

func (e *Encoder) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	op := "vips.encode." + string(e.format)
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if img == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	vi, ok := img.Image.(*VipsImage)
	if !ok || vi == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op,
			fmt.Errorf("image must be decoded with the vips backend first"))
	}

	quality := opts.Quality
	if quality == 0 {
		quality = e.quality
	}
	if !opts.Lossless && (quality < 1 || quality > 100) {
		return nil, apperrors.New(apperrors.CategoryEncode, op,
			fmt.Errorf("%w: got %d", apperrors.ErrInvalidQuality, quality))
	}

	var (
		out []byte
		err error
	)
	switch e.format {
	case core.FormatWebP:
		if opts.Lossless && opts.NearLossless > 0 {
			return nil, apperrors.New(apperrors.CategoryEncode, op,
				fmt.Errorf("%w: lossless with near-lossless preprocessing", apperrors.ErrUnsupportedOption))
		}
		if opts.NearLossless < 0 || opts.NearLossless > 100 {
			return nil, apperrors.New(apperrors.CategoryEncode, op,
				fmt.Errorf("%w: near-lossless level %d", apperrors.ErrUnsupportedOption, opts.NearLossless))
		}
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.StripMetadata = opts.StripEXIF
		ref := vi.ref
		switch {
		case opts.Lossless:
			ep.Lossless = true
			ep.ReductionEffort = opts.Effort
		case opts.NearLossless > 0:
			// libvips codes near-lossless as lossless and reads Q as the
			// preprocessing level.
			ep.NearLossless = true
			ep.Quality = opts.NearLossless
		case opts.SmartSubsample:
			if ref, err = sharpened(vi); err != nil {
				return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
			}
			defer ref.Close()
		}
		out, _, err = ref.ExportWebp(ep)

	case core.FormatJPEG:
		if opts.Lossless {
			return nil, apperrors.New(apperrors.CategoryEncode, op,
				fmt.Errorf("%w: lossless jpeg", apperrors.ErrUnsupportedOption))
		}
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = opts.StripEXIF
		if opts.SmartSubsample {
			ep.SubsampleMode = govips.VipsForeignSubsampleOff
		}
		out, _, err = vi.ref.ExportJpeg(ep)

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = opts.StripEXIF
		out, _, err = vi.ref.ExportPng(ep)

	default:
		return nil, apperrors.New(apperrors.CategoryEncode, op,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, e.format))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return out, nil
}

// sharpened re-imports the pixels of vi after the sharp chroma pass, which
// libvips does not expose for WebP.
func sharpened(vi *VipsImage) (*govips.ImageRef, error) {
	px, err := vi.Pixels()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, encoder.SharpChroma(px)); err != nil {
		return nil, err
	}
	return govips.NewImageFromBuffer(buf.Bytes())
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef for storage in core.ImageData.Image.
type VipsImage struct {
	ref *govips.ImageRef

	once   sync.Once
	pixels image.Image
	err    error
}

func (v *VipsImage) Width() int  { return v.ref.Width() }
func (v *VipsImage) Height() int { return v.ref.Height() }
func (v *VipsImage) Close()      { v.ref.Close() }

// Pixels exports the image once as a Go image for the classifier and
// comparator.
func (v *VipsImage) Pixels() (image.Image, error) {
	v.once.Do(func() {
		buf, _, err := v.ref.ExportPng(govips.NewPngExportParams())
		if err != nil {
			v.err = err
			return
		}
		v.pixels, v.err = png.Decode(bytes.NewReader(buf))
	})
	return v.pixels, v.err
}

// ─── Register ─────────────────────────────────────────────────────────────────

// Register replaces the pure-Go codecs with libvips for all formats.
func Register(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF} {
		reg.RegisterDecoder(f, b)
	}
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP} {
		reg.RegisterEncoder(f, b.Encoder(f))
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeGIF:
		return core.FormatGIF
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationBW, govips.InterpretationGrey16:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

var (
	_ core.Decoder     = (*Backend)(nil)
	_ core.Encoder     = (*Encoder)(nil)
	_ core.PixelSource = (*VipsImage)(nil)
)
