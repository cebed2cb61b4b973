package core

import (
	"context"
	"io"
)

// Decoder converts raw bytes / a reader into an in-memory ImageData.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// Decode reads from r and returns a decoded ImageData.
	Decode(ctx context.Context, r io.Reader) (*ImageData, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises an ImageData to bytes in a target format.
// Implementations must be deterministic, and for fixed options a lower
// quality must never produce a larger output than a higher one.
type Encoder interface {
	Encode(ctx context.Context, img *ImageData, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality        int  // 1-100; 0 = use encoder default
	Lossless       bool // WebP / PNG lossless mode
	Effort         int  // lossless effort 0-6
	NearLossless   int  // near-lossless preprocessing strength 0-100; 0 = off
	SmartSubsample bool // keep full-resolution chroma
	StripEXIF      bool
}

// Similarity is the comparator's verdict on a candidate.
type Similarity struct {
	SSIM         float64 // mean structural similarity in [0,1]
	HashDistance int     // perceptual hash Hamming distance
}

// Comparator scores a candidate against the original.  Both inputs are
// encoded images, possibly of different dimensions.
type Comparator interface {
	Compare(ctx context.Context, original, candidate []byte) (Similarity, error)
}

// Visualizer renders a human-inspectable difference image.
type Visualizer interface {
	Render(ctx context.Context, original, candidate []byte) ([]byte, error)
}

// StorageAdapter persists processed images and retrieves them later.
// Implementations live in adapters/storage/.
type StorageAdapter interface {
	Put(ctx context.Context, key StorageKey, r io.Reader, meta map[string]string) error
	Get(ctx context.Context, key StorageKey) (io.ReadCloser, error)
	Delete(ctx context.Context, key StorageKey) error
	Exists(ctx context.Context, key StorageKey) (bool, error)
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordError(stepName string, category string)
	RecordOutcome(strategyTag string, accepted bool)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
