package utils_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/utils"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, "jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, "png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"gif", []byte("GIF89a\x01\x00\x01\x00"), "gif"},
		{"short", []byte{0xFF}, "unknown"},
		{"text", []byte("hello world"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utils.DetectFormat(tt.data))
		})
	}
}

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		sw, sh, bw, bh int
		ww, wh         int
	}{
		{1024, 512, 512, 512, 512, 256},
		{100, 50, 512, 512, 512, 256},
		{300, 900, 512, 512, 171, 512},
		{1, 10000, 512, 512, 1, 512},
		{0, 10, 512, 512, 0, 0},
	}
	for _, tt := range tests {
		w, h := utils.FitDimensions(tt.sw, tt.sh, tt.bw, tt.bh)
		assert.Equal(t, []int{tt.ww, tt.wh}, []int{w, h}, "%dx%d", tt.sw, tt.sh)
	}
}

func TestReadAll(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 100_000)
	got, err := utils.ReadAll(context.Background(), bytes.NewReader(data), 0, 1024)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// the returned slice must not alias a pooled buffer
	again, err := utils.ReadAll(context.Background(), bytes.NewReader([]byte("y")), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), again)
	assert.Equal(t, data, got)
}

func TestReadAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := utils.ReadAll(ctx, bytes.NewReader([]byte("x")), 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadAll_Limit(t *testing.T) {
	_, err := utils.ReadAll(context.Background(), bytes.NewReader(make([]byte, 11)), 10, 4)
	assert.ErrorIs(t, err, utils.ErrTooLarge)

	got, err := utils.ReadAll(context.Background(), bytes.NewReader(make([]byte, 10)), 10, 4)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestLimitedReader(t *testing.T) {
	r := &utils.LimitedReader{R: bytes.NewReader([]byte("abcdef")), Max: 4}
	p := make([]byte, 16)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p[:n]))

	_, err = r.Read(p)
	assert.ErrorIs(t, err, utils.ErrTooLarge)

	unlimited := &utils.LimitedReader{R: bytes.NewReader([]byte("abc"))}
	n, _ = unlimited.Read(p)
	assert.Equal(t, 3, n)
}

// stalled yields data once and then only (0, nil).
type stalled struct{ data []byte }

func (s *stalled) Read(p []byte) (int, error) {
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func TestReadAll_StalledReader(t *testing.T) {
	_, err := utils.ReadAll(context.Background(), &stalled{data: []byte("abc")}, 0, 0)
	assert.ErrorIs(t, err, io.ErrNoProgress)

	// at the limit the over-size check must not spin either
	_, err = utils.ReadAll(context.Background(), &stalled{data: []byte("abc")}, 3, 0)
	assert.ErrorIs(t, err, io.ErrNoProgress)

	r := &utils.LimitedReader{R: &stalled{data: []byte("ab")}, Max: 2}
	p := make([]byte, 4)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = r.Read(p)
	assert.ErrorIs(t, err, io.ErrNoProgress)
}

func TestCloneBytes(t *testing.T) {
	src := []byte("abc")
	dst := utils.CloneBytes(src)
	src[0] = 'z'
	assert.Equal(t, []byte("abc"), dst)
}
