package core_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/utils"
)

// echoRunner emits a candidate whose bytes are the input, failing on inputs
// that start with "bad".
type echoRunner struct {
	calls int32
	delay time.Duration
}

func (r *echoRunner) Run(_ context.Context, img *core.ImageData) (*core.ImageData, map[string]time.Duration, error) {
	atomic.AddInt32(&r.calls, 1)
	time.Sleep(r.delay)
	if bytes.HasPrefix(img.Data, []byte("bad")) {
		return nil, nil, apperrors.New(apperrors.CategoryDecode, "decode", errors.New("corrupt"))
	}
	out := *img
	out.Candidate = &core.CandidateResult{
		Encoded:     img.Data,
		Format:      img.Format,
		StrategyTag: core.TagAdaptive,
		Verdict:     core.Accepted{Quality: 78, SSIM: 0.97},
	}
	return &out, map[string]time.Duration{"search": time.Millisecond}, nil
}

type recorder struct {
	outcomes []string
	errs     []string
}

func (r *recorder) RecordProcessingTime(string, interface{ Seconds() float64 }) {}
func (r *recorder) RecordThroughput(int64)                                      {}
func (r *recorder) RecordError(_ string, c string)                              { r.errs = append(r.errs, c) }
func (r *recorder) RecordOutcome(tag string, _ bool)                            { r.outcomes = append(r.outcomes, tag) }

func source(name, data string) core.Source {
	return core.Source{Reader: strings.NewReader(data), Name: name, Size: int64(len(data))}
}

func TestProcess(t *testing.T) {
	p := core.New(config.Default(), core.NewRegistry())
	rec := &recorder{}
	p.SetMetrics(rec)

	res, err := p.Process(context.Background(), source("a", "\x89PNG\r\n\x1a\nrest"), &echoRunner{})
	require.NoError(t, err)

	assert.Equal(t, core.FormatPNG, res.Primary.Format)
	assert.Equal(t, int64(12), res.Primary.OriginalSize)
	assert.Contains(t, res.StepTimings, "search")
	assert.Equal(t, []string{core.TagAdaptive}, rec.outcomes)
	assert.EqualValues(t, 1, p.ProcessedCount())
}

func TestProcess_ContentTypeHint(t *testing.T) {
	p := core.New(config.Default(), core.NewRegistry())
	src := source("a", "opaque bytes")
	src.ContentType = "image/webp; q=1"

	res, err := p.Process(context.Background(), src, &echoRunner{})
	require.NoError(t, err)
	assert.Equal(t, core.FormatWebP, res.Primary.Format)
}

func TestProcess_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.MaxImageBytes = 8
	p := core.New(cfg, core.NewRegistry())
	rec := &recorder{}
	p.SetMetrics(rec)

	_, err := p.Process(context.Background(), source("big", "more than eight bytes"), &echoRunner{})
	assert.ErrorIs(t, err, utils.ErrTooLarge)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))

	_, err = p.Process(context.Background(), source("empty", ""), &echoRunner{})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)

	_, err = p.Process(context.Background(), core.Source{}, &echoRunner{})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)

	_, err = p.Process(context.Background(), source("x", "bad"), &echoRunner{})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDecode))

	assert.EqualValues(t, 4, p.ErrorCount())
	assert.Equal(t, []string{"input", "input", "input", "decode"}, rec.errs)
}

func TestBatch_OrderAndIsolation(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", workers), func(t *testing.T) {
			cfg := config.Default()
			cfg.BatchConcurrency = workers
			p := core.New(cfg, core.NewRegistry())

			var sources []core.Source
			for i := 0; i < 10; i++ {
				data := fmt.Sprintf("img-%d", i)
				if i == 3 {
					data = "bad-3"
				}
				sources = append(sources, source(fmt.Sprintf("n%d", i), data))
			}

			results := p.Batch(context.Background(), sources, &echoRunner{delay: time.Millisecond})
			require.Len(t, results, 10)
			for i, r := range results {
				assert.Equal(t, i, r.Index)
				assert.Equal(t, fmt.Sprintf("n%d", i), r.Name)
				if i == 3 {
					assert.Error(t, r.Err)
					assert.Nil(t, r.Result)
					assert.NotEmpty(t, r.Report().Error)
					continue
				}
				require.NoError(t, r.Err)
				assert.Equal(t, []byte(fmt.Sprintf("img-%d", i)), r.Result.Primary.Candidate.Encoded)
				assert.Equal(t, r.Name, r.Report().Name)
			}
		})
	}
}

func TestBatch_CanceledContext(t *testing.T) {
	p := core.New(config.Default(), core.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := &echoRunner{}

	results := p.Batch(ctx, []core.Source{source("a", "x"), source("b", "y")}, run)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Zero(t, run.calls)
}

func TestOutcomeOf(t *testing.T) {
	_, ok := core.OutcomeOf(nil)
	assert.False(t, ok)
	_, ok = core.OutcomeOf(&core.ProcessingResult{Primary: &core.ImageData{}})
	assert.False(t, ok)

	out, ok := core.OutcomeOf(&core.ProcessingResult{Primary: &core.ImageData{
		Format:       core.FormatJPEG,
		OriginalSize: 1000,
		Diff:         []byte("d"),
		Candidate: &core.CandidateResult{
			Encoded:     []byte("abc"),
			Format:      core.FormatWebP,
			StrategyTag: core.TagFallback,
			Verdict:     core.Fallback{Quality: 78, SSIM: 0.9},
		},
	}})
	require.True(t, ok)

	rep := out.Report()
	assert.Equal(t, core.Report{
		StrategyTag:  core.TagFallback,
		QualityUsed:  78,
		SSIMScore:    0.9,
		SizeBytes:    3,
		OriginalSize: 1000,
		SourceFormat: core.FormatJPEG,
		Format:       core.FormatWebP,
		EncodedBytes: []byte("abc"),
		DiffBytes:    []byte("d"),
	}, rep)
}

func TestCandidateResult_NilSafe(t *testing.T) {
	var c *core.CandidateResult
	assert.False(t, c.Accepted())
	assert.Zero(t, c.Quality())
	assert.Zero(t, c.SSIM())
	assert.Zero(t, c.SizeBytes())
}
