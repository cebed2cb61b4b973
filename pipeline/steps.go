package pipeline

import (
	"context"
	"fmt"

	"github.com/Skryldev/image-optimizer/classify"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/search"
	"github.com/Skryldev/image-optimizer/strategy"
)

// Step names, re-exported from core.
const (
	StepDecode   = core.StepDecode
	StepClassify = core.StepClassify
	StepSelect   = core.StepSelect
	StepSearch   = core.StepSearch
	StepDiff     = core.StepDiff
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes raw bytes in img.Data into pixels.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return StepDecode }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image != nil {
		return img, nil // already decoded
	}
	decoded, err := core.DecodeBytes(ctx, s.Registry, img.Format, img.Data)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Image = decoded.Image
	out.Meta = decoded.Meta
	return &out, nil
}

// ── Classify ──────────────────────────────────────────────────────────────────

// ClassifyStep attaches the content profile.
type ClassifyStep struct {
	Thresholds classify.Thresholds
}

func (s *ClassifyStep) Name() string { return StepClassify }

func (s *ClassifyStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	px, ok := img.Pixels()
	if !ok {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(),
			fmt.Errorf("%w: image not decoded", apperrors.ErrEmptyInput))
	}
	profile := classify.Profile(px, s.Thresholds)
	out := *img
	out.Profile = &profile
	return &out, nil
}

// ── Select ────────────────────────────────────────────────────────────────────

// SelectStep picks the encoding strategy from the profile.  Force disables
// the skip rule; a non-zero Quality replaces the candidate list with that
// single quality.
type SelectStep struct {
	Rules   strategy.Rules
	Force   bool
	Quality int
}

func (s *SelectStep) Name() string { return StepSelect }

func (s *SelectStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Profile == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(),
			fmt.Errorf("image not classified"))
	}
	if s.Quality < 0 || s.Quality > 100 {
		return nil, apperrors.New(apperrors.CategoryInput, s.Name(),
			fmt.Errorf("%w: got %d", apperrors.ErrInvalidQuality, s.Quality))
	}

	var st core.Strategy
	switch {
	case s.Quality > 0:
		st = strategy.Override(strategy.SelectEncoding(*img.Profile, s.Rules), s.Quality)
	case s.Force:
		st = strategy.SelectEncoding(*img.Profile, s.Rules)
	default:
		st = strategy.Select(*img.Profile, img.Format, img.OriginalSize, s.Rules)
	}
	out := *img
	out.Strategy = st
	return &out, nil
}

// ── Search ────────────────────────────────────────────────────────────────────

// SearchStep runs the search controller for the selected strategy.
type SearchStep struct {
	Controller *search.Controller
}

func (s *SearchStep) Name() string { return StepSearch }

func (s *SearchStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Strategy == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(),
			fmt.Errorf("no strategy selected"))
	}
	cand, err := s.Controller.Run(ctx, img, img.Strategy)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Candidate = cand
	return &out, nil
}

// ── Diff ──────────────────────────────────────────────────────────────────────

// DiffStep renders the review diff for every re-encoded candidate.  Skip
// results carry no diff.
type DiffStep struct {
	Visualizer core.Visualizer
}

func (s *DiffStep) Name() string { return StepDiff }

func (s *DiffStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	c := img.Candidate
	if c == nil || c.StrategyTag == core.TagSkip {
		return img, nil
	}
	d, err := s.Visualizer.Render(ctx, img.Data, c.Encoded)
	if err != nil {
		return nil, err
	}
	out := *img
	out.Diff = d
	return &out, nil
}

var (
	_ core.Step = (*DecodeStep)(nil)
	_ core.Step = (*ClassifyStep)(nil)
	_ core.Step = (*SelectStep)(nil)
	_ core.Step = (*SearchStep)(nil)
	_ core.Step = (*DiffStep)(nil)
)
