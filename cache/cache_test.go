package cache_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/cache"
	"github.com/Skryldev/image-optimizer/core"
)

type countingConverter struct {
	calls int32
	err   error
}

func (c *countingConverter) Convert(_ context.Context, src core.Source, _ core.ConvertOptions) (*core.Outcome, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	data, err := io.ReadAll(src.Reader)
	if err != nil {
		return nil, err
	}
	return &core.Outcome{
		Candidate: &core.CandidateResult{
			Encoded:     append([]byte("enc:"), data...),
			Format:      core.FormatWebP,
			StrategyTag: core.TagFallback,
			Verdict:     core.Fallback{Quality: 78, SSIM: 0.91},
			Attempts:    []core.Attempt{{Quality: 78, SSIM: 0.91, SizeBytes: 4}},
		},
		Diff:         []byte("diff"),
		OriginalSize: int64(len(data)),
		SourceFormat: core.FormatJPEG,
	}, nil
}

type mapStore map[string][]byte

func (m mapStore) Get(k string) ([]byte, bool) { v, ok := m[k]; return v, ok }
func (m mapStore) Set(k string, v []byte)      { m[k] = v }
func (m mapStore) Delete(k string)             { delete(m, k) }

func TestConvert_HitAfterMiss(t *testing.T) {
	c, err := cache.NewLRU(1<<20, time.Hour)
	require.NoError(t, err)
	conv := &countingConverter{}
	data := []byte("image bytes")

	first, hit, err := c.Convert(context.Background(), conv, "a.jpg", data, core.ConvertOptions{})
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.Convert(context.Background(), conv, "a.jpg", data, core.ConvertOptions{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.EqualValues(t, 1, conv.calls)

	assert.Equal(t, first.Report(), second.Report())
	assert.Equal(t, first.Candidate.Attempts, second.Candidate.Attempts)
	assert.False(t, second.Candidate.Accepted())
}

func TestConvert_OptionsAreKeyed(t *testing.T) {
	c, err := cache.New(mapStore{})
	require.NoError(t, err)
	conv := &countingConverter{}
	data := []byte("same")

	_, _, err = c.Convert(context.Background(), conv, "x", data, core.ConvertOptions{})
	require.NoError(t, err)
	_, hit, err := c.Convert(context.Background(), conv, "x", data, core.ConvertOptions{Quality: 50})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.EqualValues(t, 2, conv.calls)
}

func TestConvert_ErrorsAreNotCached(t *testing.T) {
	store := mapStore{}
	c, err := cache.New(store)
	require.NoError(t, err)

	_, _, err = c.Convert(context.Background(), &countingConverter{err: errors.New("boom")}, "x", []byte("d"), core.ConvertOptions{})
	assert.Error(t, err)
	assert.Empty(t, store)
}

func TestGet_CorruptEntryIsDropped(t *testing.T) {
	store := mapStore{"k": []byte("not zstd")}
	c, err := cache.New(store)
	require.NoError(t, err)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.NotContains(t, store, "k")
}

func TestPut_RejectsEmptyOutcome(t *testing.T) {
	c, err := cache.New(mapStore{})
	require.NoError(t, err)
	assert.Error(t, c.Put("k", &core.Outcome{}))
}

func TestKey(t *testing.T) {
	a := cache.Key([]byte("x"), core.ConvertOptions{})
	assert.Len(t, a, 64)
	assert.Equal(t, a, cache.Key([]byte("x"), core.ConvertOptions{}))
	assert.NotEqual(t, a, cache.Key([]byte("x"), core.ConvertOptions{Force: true}))
	assert.NotEqual(t, a, cache.Key([]byte("y"), core.ConvertOptions{}))
}
