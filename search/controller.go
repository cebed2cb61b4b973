// Package search drives the encode-and-compare loop that picks the emitted
// candidate for one image.
package search

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// DefaultThreshold is the SSIM a lossy candidate must strictly exceed.
const DefaultThreshold = 0.96

// Machine states.
const (
	StateStart     = "start"
	StateSkipped   = "skipped"
	StateLossless  = "lossless"
	StateSearching = "searching"
	StateAccepted  = "accepted"
	StateFallback  = "fallback"
)

// Machine events.
const (
	EventSkip     = "skip"
	EventLossless = "lossless"
	EventSearch   = "search"
	EventAccept   = "accept"
	EventExhaust  = "exhaust"
)

var transitions = fsm.Events{
	{Name: EventSkip, Src: []string{StateStart}, Dst: StateSkipped},
	{Name: EventLossless, Src: []string{StateStart}, Dst: StateLossless},
	{Name: EventSearch, Src: []string{StateStart}, Dst: StateSearching},
	{Name: EventAccept, Src: []string{StateSearching}, Dst: StateAccepted},
	{Name: EventExhaust, Src: []string{StateSearching}, Dst: StateFallback},
}

// Machine returns a fresh controller state machine in the start state.  It
// is exported for documentation tooling (fsm.Visualize).
func Machine() *fsm.FSM {
	return fsm.NewFSM(StateStart, transitions, fsm.Callbacks{})
}

// Controller runs one strategy against one image.  All state lives on the
// stack of Run, so a single Controller may serve concurrent calls.
type Controller struct {
	Registry   core.Registry
	Target     core.Format
	Comparator core.Comparator
	Threshold  float64
	Logger     core.Logger
}

// New returns a Controller with the default acceptance threshold.
func New(reg core.Registry, target core.Format, cmp core.Comparator, logger core.Logger) *Controller {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Controller{
		Registry:   reg,
		Target:     target,
		Comparator: cmp,
		Threshold:  DefaultThreshold,
		Logger:     logger,
	}
}

// Run executes strategy s for img and returns exactly one candidate.
//
// Skip returns the original bytes, Lossless encodes once, and Adaptive or
// Careful walk their quality list in the order given, accepting the first
// candidate whose SSIM is strictly above the threshold.  When no candidate
// qualifies the first quality of the list is emitted as a fallback.  Errors
// from the encoder or comparator abort the run unchanged.
func (c *Controller) Run(ctx context.Context, img *core.ImageData, s core.Strategy) (*core.CandidateResult, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "search", apperrors.ErrEmptyInput)
	}
	m := c.machine(img)

	switch st := s.(type) {
	case core.Skip:
		if err := m.Event(EventSkip); err != nil {
			return nil, transitionError(err)
		}
		return &core.CandidateResult{
			Encoded:     img.Data,
			Format:      img.Format,
			StrategyTag: core.TagSkip,
			Verdict:     core.Accepted{Quality: 100, SSIM: 1.0},
		}, nil

	case core.Lossless:
		if err := m.Event(EventLossless); err != nil {
			return nil, transitionError(err)
		}
		encoded, err := c.encode(ctx, img, OptionsFor(st, 0))
		if err != nil {
			return nil, err
		}
		return &core.CandidateResult{
			Encoded:     encoded,
			Format:      c.Target,
			StrategyTag: core.TagLossless,
			Verdict:     core.Accepted{Quality: 100, SSIM: 1.0},
			Attempts:    []core.Attempt{{Quality: 100, SSIM: 1.0, SizeBytes: len(encoded)}},
		}, nil

	case core.Adaptive:
		return c.search(ctx, m, img, st, st.Qualities)

	case core.Careful:
		return c.search(ctx, m, img, st, st.Qualities)
	}
	return nil, apperrors.New(apperrors.CategoryPipeline, "search",
		fmt.Errorf("unknown strategy %T", s))
}

type scored struct {
	encoded []byte
	sim     core.Similarity
}

func (c *Controller) search(ctx context.Context, m *fsm.FSM, img *core.ImageData, s core.Strategy, qualities []int) (*core.CandidateResult, error) {
	if len(qualities) == 0 {
		return nil, apperrors.New(apperrors.CategoryInput, "search",
			fmt.Errorf("%w: empty candidate list for %s", apperrors.ErrInvalidQuality, s.Tag()))
	}
	if err := m.Event(EventSearch); err != nil {
		return nil, transitionError(err)
	}

	attempts := make([]core.Attempt, 0, len(qualities))
	var first scored
	for i, q := range qualities {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.New(apperrors.CategoryPipeline, "search", err)
		}
		encoded, err := c.encode(ctx, img, OptionsFor(s, q))
		if err != nil {
			return nil, err
		}
		sim, err := c.Comparator.Compare(ctx, img.Data, encoded)
		if err != nil {
			return nil, apperrors.Ensure(apperrors.CategoryComparison, "search.compare", err)
		}
		attempts = append(attempts, core.Attempt{Quality: q, SSIM: sim.SSIM, SizeBytes: len(encoded)})
		c.logger().Debug("search attempt",
			"strategy", s.Tag(), "quality", q, "ssim", sim.SSIM, "bytes", len(encoded))

		if i == 0 {
			first = scored{encoded: encoded, sim: sim}
		}
		if sim.SSIM > c.threshold() {
			if err := m.Event(EventAccept); err != nil {
				return nil, transitionError(err)
			}
			return &core.CandidateResult{
				Encoded:      encoded,
				Format:       c.Target,
				StrategyTag:  s.Tag(),
				Verdict:      core.Accepted{Quality: q, SSIM: sim.SSIM},
				HashDistance: sim.HashDistance,
				Attempts:     attempts,
			}, nil
		}
	}

	if err := m.Event(EventExhaust); err != nil {
		return nil, transitionError(err)
	}
	// Encoding is deterministic, so the first attempt already holds the
	// bytes and score a re-encode at qualities[0] would produce.
	return &core.CandidateResult{
		Encoded:      first.encoded,
		Format:       c.Target,
		StrategyTag:  core.TagFallback,
		Verdict:      core.Fallback{Quality: qualities[0], SSIM: first.sim.SSIM},
		HashDistance: first.sim.HashDistance,
		Attempts:     attempts,
	}, nil
}

func (c *Controller) encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	enc, ok := c.Registry.EncoderFor(c.Target)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, "search.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, c.Target))
	}
	out, err := enc.Encode(ctx, img, opts)
	if err != nil {
		return nil, apperrors.Ensure(apperrors.CategoryEncode, "search.encode", err)
	}
	return out, nil
}

func (c *Controller) threshold() float64 {
	if c.Threshold <= 0 {
		return DefaultThreshold
	}
	return c.Threshold
}

func (c *Controller) logger() core.Logger {
	if c.Logger == nil {
		return core.NopLogger{}
	}
	return c.Logger
}

func (c *Controller) machine(img *core.ImageData) *fsm.FSM {
	logger := c.logger()
	return fsm.NewFSM(StateStart, transitions, fsm.Callbacks{
		"after_event": func(e *fsm.Event) {
			logger.Debug("search transition",
				"event", e.Event, "from", e.Src, "to", e.Dst, "bytes", len(img.Data))
		},
	})
}

func transitionError(err error) error {
	return apperrors.New(apperrors.CategoryPipeline, "search.fsm", err)
}

// OptionsFor returns the encoder options strategy s uses at quality q.
func OptionsFor(s core.Strategy, q int) core.EncodeOptions {
	switch st := s.(type) {
	case core.Lossless:
		return core.EncodeOptions{Lossless: true, Effort: st.Effort, StripEXIF: true}
	case core.Careful:
		return core.EncodeOptions{
			Quality:        q,
			NearLossless:   st.NearLossless,
			SmartSubsample: st.SmartSubsample,
			StripEXIF:      true,
		}
	}
	return core.EncodeOptions{Quality: q, StripEXIF: true}
}
