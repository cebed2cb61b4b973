// Package imageoptimizer recompresses images to the smallest encoding whose
// perceptual similarity to the original stays above a fixed SSIM floor.
//
// A conversion classifies the decoded pixels, picks an encoding strategy,
// searches candidate qualities with an encode-and-compare loop and renders a
// diff image for human review.  Each call is independent: nothing is cached
// or persisted unless the caller wires the cache package in explicitly.
package imageoptimizer

import (
	"bytes"
	"context"
	"io"

	"github.com/Skryldev/image-optimizer/adapters/decoder"
	"github.com/Skryldev/image-optimizer/adapters/encoder"
	"github.com/Skryldev/image-optimizer/classify"
	"github.com/Skryldev/image-optimizer/compare"
	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	"github.com/Skryldev/image-optimizer/diff"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/pipeline"
	"github.com/Skryldev/image-optimizer/search"
	"github.com/Skryldev/image-optimizer/strategy"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Optimizer is the primary entry point.  It is safe for concurrent use once
// configured; SetLogger, SetMetrics, AddHook and Register* are meant to be
// called before the first conversion.
type Optimizer struct {
	cfg   config.Config
	inner *core.Processor
	reg   *core.DefaultRegistry
	hooks []core.Hook

	thresholds classify.Thresholds
	rules      strategy.Rules
	controller *search.Controller
	visualizer *diff.Visualizer
}

// New creates a fully wired Optimizer with the pure-Go codecs registered.
// Alternative backends (adapters/vips) are installed through Registry.
func New(cfg config.Config) (*Optimizer, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "optimizer.new", err)
	}

	reg := core.NewRegistry()
	decoder.Register(reg)
	encoder.Register(reg, cfg.DefaultQuality)

	target := core.Format(cfg.TargetFormat)
	ctrl := search.New(reg, target, compare.New(reg, cfg.Search.CompareCanvas), core.NopLogger{})
	ctrl.Threshold = cfg.Search.Threshold

	return &Optimizer{
		cfg:   cfg,
		inner: core.New(cfg, reg),
		reg:   reg,
		thresholds: classify.Thresholds{
			FlatEntropy:       cfg.Classifier.FlatEntropy,
			DarkBrightness:    cfg.Classifier.DarkBrightness,
			HighDetailEntropy: cfg.Classifier.HighDetailEntropy,
		},
		rules:      RulesFrom(cfg),
		controller: ctrl,
		visualizer: diff.New(reg, cfg.Diff.Canvas),
	}, nil
}

// RulesFrom builds the strategy rules described by cfg.
func RulesFrom(cfg config.Config) strategy.Rules {
	s := cfg.Strategy
	return strategy.Rules{
		Target:           core.Format(cfg.TargetFormat),
		SkipBelowBytes:   s.SkipBelowBytes,
		LosslessEffort:   s.LosslessEffort,
		CarefulQualities: s.CarefulQualities,
		NearLossless:     s.NearLossless,
		SmartSubsample:   s.SmartSubsample,
		DetailQualities:  s.DetailQualities,
		DefaultQualities: s.DefaultQualities,
	}
}

// SetLogger attaches a structured logger.
func (o *Optimizer) SetLogger(l core.Logger) {
	if l == nil {
		l = core.NopLogger{}
	}
	o.inner.SetLogger(l)
	o.controller.Logger = l
}

// SetMetrics attaches a metrics collector.
func (o *Optimizer) SetMetrics(m core.MetricsCollector) { o.inner.SetMetrics(m) }

// AddHook registers an observer for pipeline step events.
func (o *Optimizer) AddHook(h core.Hook) { o.hooks = append(o.hooks, h) }

// Registry exposes the codec registry for alternative backends.
func (o *Optimizer) Registry() core.Registry { return o.reg }

// RegisterDecoder registers a custom decoder for the given format.
func (o *Optimizer) RegisterDecoder(f core.Format, d core.Decoder) { o.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (o *Optimizer) RegisterEncoder(f core.Format, e core.Encoder) { o.reg.RegisterEncoder(f, e) }

// Config returns the configuration the optimizer was built with.
func (o *Optimizer) Config() config.Config { return o.cfg }

// Pipeline returns the conversion pipeline for opts.
func (o *Optimizer) Pipeline(opts core.ConvertOptions) *pipeline.Pipeline {
	pl := pipeline.New().Use(
		&pipeline.DecodeStep{Registry: o.reg},
		&pipeline.ClassifyStep{Thresholds: o.thresholds},
		&pipeline.SelectStep{Rules: o.rules, Force: opts.Force, Quality: opts.Quality},
		&pipeline.SearchStep{Controller: o.controller},
	)
	if !opts.NoDiff {
		pl.Use(&pipeline.DiffStep{Visualizer: o.visualizer})
	}
	return pl.AddHook(o.hooks...)
}

// Process runs the conversion pipeline and returns the raw pipeline result,
// including step timings.
func (o *Optimizer) Process(ctx context.Context, src core.Source, opts core.ConvertOptions) (*core.ProcessingResult, error) {
	return o.inner.Process(ctx, src, o.Pipeline(opts))
}

// Convert recompresses src and returns the emitted candidate with its diff.
func (o *Optimizer) Convert(ctx context.Context, src core.Source, opts core.ConvertOptions) (*core.Outcome, error) {
	res, err := o.Process(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	out, ok := core.OutcomeOf(res)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryPipeline, "convert", apperrors.ErrEmptyInput)
	}
	return out, nil
}

// RetryAt re-encodes src at exactly quality q, bypassing the skip rule and
// the automatic candidate list.  It backs the manual review flow for
// fallback results.
func (o *Optimizer) RetryAt(ctx context.Context, src core.Source, q int) (*core.Outcome, error) {
	if q < 1 || q > 100 {
		return nil, apperrors.New(apperrors.CategoryInput, "retry", apperrors.ErrInvalidQuality)
	}
	return o.Convert(ctx, src, core.ConvertOptions{Force: true, Quality: q})
}

// Batch converts every source and returns one entry per source in input
// order.  Failures are isolated per entry.
func (o *Optimizer) Batch(ctx context.Context, sources []core.Source, opts core.ConvertOptions) []core.BatchResult {
	return o.inner.Batch(ctx, sources, o.Pipeline(opts))
}

// Stats returns lightweight processing statistics.
func (o *Optimizer) Stats() (processed, errors int64) {
	return o.inner.ProcessedCount(), o.inner.ErrorCount()
}

// ── Source constructors ────────────────────────────────────────────────────────

// FromReader creates a Source from an io.Reader.
func FromReader(r io.Reader) core.Source { return core.Source{Reader: r, Size: -1} }

// FromBytes creates a named Source over b.
func FromBytes(name string, b []byte) core.Source {
	return core.Source{Reader: bytes.NewReader(b), Size: int64(len(b)), Name: name}
}

// FromReaderWithMeta creates a Source with known size and content-type hints.
func FromReaderWithMeta(r io.Reader, size int64, contentType, name string) core.Source {
	return core.Source{Reader: r, Size: size, ContentType: contentType, Name: name}
}
