package core

import (
	"context"
	"image"
	"io"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatGIF     Format = "gif"
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata holds extracted image information.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	SizeBytes  int64
}

// ImageData is the per-call carrier passed through a pipeline.  Steps never
// mutate the value they receive; they return a shallow copy with their
// contribution filled in.
type ImageData struct {
	// Original encoded bytes as received from the source.
	Data   []byte
	Format Format

	// Decoded pixel buffer, populated by the decode step.  Backends that keep
	// native handles (libvips) store their own type here and expose an
	// image.Image through Pixels.
	Image interface{}

	Meta Metadata

	// Size of the original raw input, used by the skip rule.
	OriginalSize int64

	// Populated by the classify, select, search and diff steps.
	Profile   *ContentProfile
	Strategy  Strategy
	Candidate *CandidateResult
	Diff      []byte
}

// PixelSource is implemented by native image handles that can export a Go
// image.Image.
type PixelSource interface {
	Pixels() (image.Image, error)
}

// Pixels returns the decoded image as an image.Image.
func (d *ImageData) Pixels() (image.Image, bool) {
	switch v := d.Image.(type) {
	case image.Image:
		return v, v != nil
	case PixelSource:
		img, err := v.Pixels()
		return img, err == nil && img != nil
	}
	return nil, false
}

// ContentProfile is the classifier's summary of an image.
type ContentProfile struct {
	Entropy        float64
	MeanBrightness float64
	IsFlat         bool
	IsDark         bool
	IsHighDetail   bool
}

// ProcessingResult is returned to the caller after the full pipeline completes.
type ProcessingResult struct {
	Primary *ImageData

	// Observability.
	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Source abstracts where raw bytes come from (reader, file, fetched URL).
type Source struct {
	Reader      io.Reader
	ContentType string // optional hint
	Name        string // optional logical name / filename
	Size        int64  // -1 if unknown
}

// ConvertOptions are the per-call knobs of a conversion.
type ConvertOptions struct {
	// Force bypasses the skip rule for images already in the target codec.
	Force bool
	// Quality, when non-zero, replaces the automatic candidate list with a
	// single caller-chosen quality.
	Quality int
	// NoDiff suppresses the diff image.
	NoDiff bool
}

// BatchResult is one entry of a batch run.  Exactly one of Result and Err
// is set.
type BatchResult struct {
	Index  int
	Name   string
	Result *ProcessingResult
	Err    error
}

// Step is the fundamental pipeline building block.  Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
// Names of the built-in pipeline steps, shared by the pipeline, hooks and
// timing keys.
const (
	StepDecode   = "decode"
	StepClassify = "classify"
	StepSelect   = "select"
	StepSearch   = "search"
	StepDiff     = "diff"
)

type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// StorageKey uniquely identifies a stored image.
type StorageKey struct {
	Bucket string
	Path   string
}
