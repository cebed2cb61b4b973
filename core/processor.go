package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/image-optimizer/config"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/utils"
)

// PipelineRunner is a minimal interface over pipeline.Pipeline so that core
// does not import the pipeline package (avoiding a circular dependency).
type PipelineRunner interface {
	Run(ctx context.Context, img *ImageData) (*ImageData, map[string]time.Duration, error)
}

// Processor reads sources into memory and runs them through a pipeline.  It
// holds no per-image state and is safe for concurrent use.
type Processor struct {
	cfg      config.Config
	registry Registry
	logger   Logger
	metrics  MetricsCollector

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// New creates a Processor with the given config.
func New(cfg config.Config, reg Registry) *Processor {
	return &Processor{cfg: cfg, registry: reg, logger: NopLogger{}}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) {
	if l == nil {
		l = NopLogger{}
	}
	p.logger = l
}

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m MetricsCollector) { p.metrics = m }

// Registry returns the underlying registry so callers can register
// encoders/decoders after construction.
func (p *Processor) Registry() Registry { return p.registry }

// Config returns the configuration the processor was built with.
func (p *Processor) Config() config.Config { return p.cfg }

// Process drains src, sniffs its format and runs it through run.
func (p *Processor) Process(ctx context.Context, src Source, run PipelineRunner) (*ProcessingResult, error) {
	start := time.Now()
	res, err := p.process(ctx, src, run)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		if p.metrics != nil {
			p.metrics.RecordError("process", string(apperrors.CategoryOf(err)))
		}
		p.logger.Warn("conversion failed", "name", src.Name, "error", err)
		return nil, err
	}
	atomic.AddInt64(&p.processedCount, 1)

	res.ProcessingTime = time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordProcessingTime("total", res.ProcessingTime)
		p.metrics.RecordThroughput(res.Primary.OriginalSize)
		if c := res.Primary.Candidate; c != nil {
			p.metrics.RecordOutcome(c.StrategyTag, c.Accepted())
		}
	}
	return res, nil
}

func (p *Processor) process(ctx context.Context, src Source, run PipelineRunner) (*ProcessingResult, error) {
	if run == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, "process", fmt.Errorf("no pipeline"))
	}
	if src.Reader == nil {
		return nil, apperrors.New(apperrors.CategoryInput, "process", apperrors.ErrEmptyInput)
	}

	// --- 1. Drain source into memory (respecting max size limit) -------------
	raw, err := utils.ReadAll(ctx, src.Reader, p.cfg.MaxImageBytes, p.cfg.ChunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "process.drain", err)
	}
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "process", apperrors.ErrEmptyInput)
	}

	// --- 2. Detect format ----------------------------------------------------
	format := Format(utils.DetectFormat(raw))
	if format == FormatUnknown && src.ContentType != "" {
		format = contentTypeToFormat(src.ContentType)
	}

	img := &ImageData{
		Data:         raw,
		Format:       format,
		OriginalSize: int64(len(raw)),
	}

	// --- 3. Run steps --------------------------------------------------------
	out, timings, err := run.Run(ctx, img)
	if err != nil {
		return nil, err
	}
	return &ProcessingResult{Primary: out, StepTimings: timings}, nil
}

// Batch processes sources and returns one entry per source, in input order.
// A failure on one source never prevents the others from being processed.
// With Config.BatchConcurrency > 1 sources are processed concurrently up to
// that limit.  Once ctx is done the remaining sources fail with its error.
func (p *Processor) Batch(ctx context.Context, sources []Source, run PipelineRunner) []BatchResult {
	results := make([]BatchResult, len(sources))
	one := func(i int) {
		src := sources[i]
		results[i] = BatchResult{Index: i, Name: src.Name}
		if err := ctx.Err(); err != nil {
			results[i].Err = apperrors.Wrap(apperrors.CategoryPipeline, "batch", err)
			return
		}
		results[i].Result, results[i].Err = p.Process(ctx, src, run)
	}

	limit := p.cfg.BatchConcurrency
	if limit <= 1 {
		for i := range sources {
			one(i)
		}
		return results
	}

	// The group context is not used: an error on one item must not cancel
	// its siblings.
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range sources {
		i := i
		g.Go(func() error {
			one(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// contentTypeToFormat maps MIME types to Format values.
func contentTypeToFormat(ct string) Format {
	ct, _, _ = strings.Cut(ct, ";")
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/gif":
		return FormatGIF
	}
	return FormatUnknown
}

// ProcessedCount returns the total number of successfully processed images.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of processing errors.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }
