package decoder_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/adapters/decoder"
	"github.com/Skryldev/image-optimizer/adapters/encoder"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

func sample(w, h int, a uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 40, A: a})
		}
	}
	return img
}

func TestDecode_Formats(t *testing.T) {
	src := sample(30, 20, 255)

	var jpg, pngBuf, gifBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, &jpeg.Options{Quality: 90}))
	require.NoError(t, png.Encode(&pngBuf, src))
	require.NoError(t, gif.Encode(&gifBuf, src, nil))
	webpBytes, err := encoder.NewWebP(80).Encode(context.Background(), &core.ImageData{Image: src}, core.EncodeOptions{Quality: 80})
	require.NoError(t, err)

	tests := []struct {
		dec  *decoder.Std
		data []byte
		fmt  core.Format
	}{
		{decoder.NewJPEG(), jpg.Bytes(), core.FormatJPEG},
		{decoder.NewPNG(), pngBuf.Bytes(), core.FormatPNG},
		{decoder.NewGIF(), gifBuf.Bytes(), core.FormatGIF},
		{decoder.NewWebP(), webpBytes, core.FormatWebP},
	}
	for _, tt := range tests {
		t.Run(string(tt.fmt), func(t *testing.T) {
			assert.True(t, tt.dec.CanDecode(tt.fmt))
			got, err := tt.dec.Decode(context.Background(), bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, 30, got.Meta.Width)
			assert.Equal(t, 20, got.Meta.Height)
			assert.Equal(t, tt.fmt, got.Format)
			assert.False(t, got.Meta.HasAlpha)
			_, ok := got.Pixels()
			assert.True(t, ok)
		})
	}
}

func TestDecode_Alpha(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sample(4, 4, 100)))
	got, err := decoder.NewPNG().Decode(context.Background(), &buf)
	require.NoError(t, err)
	assert.True(t, got.Meta.HasAlpha)
	assert.Equal(t, core.ColorSpaceRGBA, got.Meta.ColorSpace)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := decoder.NewJPEG().Decode(context.Background(), bytes.NewReader([]byte{0xff, 0xd8, 0xff, 0x00}))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryDecode))
}

func TestRegister_DecodeBytes(t *testing.T) {
	reg := core.NewRegistry()
	decoder.Register(reg)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, sample(8, 8, 255)))
	got, err := core.DecodeBytes(context.Background(), reg, core.FormatPNG, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), got.Meta.SizeBytes)
	assert.Equal(t, buf.Bytes(), got.Data)

	_, err = core.DecodeBytes(context.Background(), reg, core.FormatUnknown, buf.Bytes())
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}
