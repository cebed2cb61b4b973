package pipeline_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/classify"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/pipeline"
	"github.com/Skryldev/image-optimizer/strategy"
)

type funcStep struct {
	name string
	fn   func(*core.ImageData) (*core.ImageData, error)
}

func (s funcStep) Name() string { return s.name }
func (s funcStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	return s.fn(img)
}

type traceHook struct{ events []string }

func (h *traceHook) BeforeStep(_ context.Context, name string, _ *core.ImageData) {
	h.events = append(h.events, "before:"+name)
}
func (h *traceHook) AfterStep(_ context.Context, name string, _ *core.ImageData, _ time.Duration, err error) {
	if err != nil {
		name += "!"
	}
	h.events = append(h.events, "after:"+name)
}

func TestRun_OrderAndHooks(t *testing.T) {
	hook := &traceHook{}
	pl := pipeline.New().Use(
		funcStep{"a", func(img *core.ImageData) (*core.ImageData, error) { out := *img; out.Diff = []byte("a"); return &out, nil }},
		funcStep{"b", func(img *core.ImageData) (*core.ImageData, error) { out := *img; out.Diff = append(out.Diff, 'b'); return &out, nil }},
	).AddHook(hook)

	assert.Equal(t, []string{"a", "b"}, pl.Steps())

	in := &core.ImageData{}
	out, timings, err := pl.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), out.Diff)
	assert.Nil(t, in.Diff, "input is not mutated")
	assert.Len(t, timings, 2)
	assert.Equal(t, []string{"before:a", "after:a", "before:b", "after:b"}, hook.events)
}

func TestBuiltinStepNames(t *testing.T) {
	pl := pipeline.New().Use(&pipeline.DecodeStep{}, &pipeline.ClassifyStep{}, &pipeline.SelectStep{},
		&pipeline.SearchStep{}, &pipeline.DiffStep{})
	assert.Equal(t, []string{core.StepDecode, core.StepClassify, core.StepSelect, core.StepSearch, core.StepDiff}, pl.Steps())
}

func TestRun_StopsOnError(t *testing.T) {
	hook := &traceHook{}
	ran := false
	pl := pipeline.New().Use(
		funcStep{"fail", func(*core.ImageData) (*core.ImageData, error) { return nil, errors.New("x") }},
		funcStep{"never", func(img *core.ImageData) (*core.ImageData, error) { ran = true; return img, nil }},
	).AddHook(hook)

	_, _, err := pl.Run(context.Background(), &core.ImageData{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryPipeline))
	assert.False(t, ran)
	assert.Equal(t, []string{"before:fail", "after:fail!"}, hook.events)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pl := pipeline.New().Use(funcStep{"a", func(img *core.ImageData) (*core.ImageData, error) { return img, nil }})
	_, _, err := pl.Run(ctx, &core.ImageData{})
	assert.ErrorIs(t, err, context.Canceled)
}

func decoded(c color.Color, format core.Format, size int64) *core.ImageData {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	return &core.ImageData{Data: []byte("raw"), Format: format, OriginalSize: size, Image: img}
}

func TestClassifyThenSelect(t *testing.T) {
	ctx := context.Background()
	classifyStep := &pipeline.ClassifyStep{Thresholds: classify.DefaultThresholds()}

	img, err := classifyStep.Execute(ctx, decoded(color.RGBA{R: 10, G: 10, B: 10, A: 255}, core.FormatJPEG, 500_000))
	require.NoError(t, err)
	require.NotNil(t, img.Profile)
	assert.True(t, img.Profile.IsFlat)

	tests := []struct {
		name string
		step *pipeline.SelectStep
		in   *core.ImageData
		want core.Strategy
	}{
		{"auto", &pipeline.SelectStep{Rules: strategy.DefaultRules()}, img, core.Lossless{Effort: 6}},
		{"override", &pipeline.SelectStep{Rules: strategy.DefaultRules(), Quality: 50}, img, core.Adaptive{Qualities: []int{50}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.step.Execute(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Strategy)
		})
	}
}

func TestSelectStep_ForceBypassesSkip(t *testing.T) {
	ctx := context.Background()
	img := decoded(color.White, core.FormatWebP, 10)
	img.Profile = &core.ContentProfile{Entropy: 5}

	out, err := (&pipeline.SelectStep{Rules: strategy.DefaultRules()}).Execute(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, core.Skip{}, out.Strategy)

	out, err = (&pipeline.SelectStep{Rules: strategy.DefaultRules(), Force: true}).Execute(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, core.TagAdaptive, out.Strategy.Tag())
}

func TestSelectStep_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := (&pipeline.SelectStep{}).Execute(ctx, &core.ImageData{})
	assert.Error(t, err)

	img := &core.ImageData{Profile: &core.ContentProfile{}}
	_, err = (&pipeline.SelectStep{Quality: 101}).Execute(ctx, img)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuality)
}

type stubVisualizer struct{ calls int }

func (v *stubVisualizer) Render(context.Context, []byte, []byte) ([]byte, error) {
	v.calls++
	return []byte("png"), nil
}

func TestDiffStep(t *testing.T) {
	v := &stubVisualizer{}
	step := &pipeline.DiffStep{Visualizer: v}

	skip := &core.ImageData{Candidate: &core.CandidateResult{StrategyTag: core.TagSkip}}
	out, err := step.Execute(context.Background(), skip)
	require.NoError(t, err)
	assert.Nil(t, out.Diff)

	fb := &core.ImageData{Candidate: &core.CandidateResult{StrategyTag: core.TagFallback, Encoded: []byte("e")}}
	out, err = step.Execute(context.Background(), fb)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), out.Diff)
	assert.Equal(t, 1, v.calls)
}
