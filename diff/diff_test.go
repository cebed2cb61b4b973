package diff_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/adapters/decoder"
	"github.com/Skryldev/image-optimizer/core"
	"github.com/Skryldev/image-optimizer/diff"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newVisualizer(canvas int) *diff.Visualizer {
	reg := core.NewRegistry()
	decoder.Register(reg)
	return diff.New(reg, canvas)
}

func TestDifference(t *testing.T) {
	a := fill(2, 2, color.NRGBA{R: 100, G: 50, B: 10, A: 255})
	b := fill(2, 2, color.NRGBA{R: 40, G: 90, B: 10, A: 128})

	d := diff.Difference(a, b)
	assert.Equal(t, color.NRGBA{R: 60, G: 40, B: 0, A: 255}, d.NRGBAAt(1, 1))
}

func TestStretch_MapsPercentilesToFullRange(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 1))
	for x := 0; x < 100; x++ {
		v := uint8(10 + x)
		img.SetNRGBA(x, 0, color.NRGBA{R: v, G: v, B: v, A: 255})
	}
	diff.Stretch(img)

	assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(0), img.NRGBAAt(1, 0).R)
	assert.Equal(t, uint8(255), img.NRGBAAt(99, 0).R)
	assert.Greater(t, img.NRGBAAt(50, 0).R, uint8(100))
	assert.Less(t, img.NRGBAAt(50, 0).R, uint8(160))
}

func TestStretch_UniformImage(t *testing.T) {
	img := fill(4, 4, color.NRGBA{R: 7, G: 7, B: 7, A: 255})
	diff.Stretch(img)
	assert.Equal(t, color.NRGBA{A: 255}, img.NRGBAAt(0, 0))
}

func TestRender(t *testing.T) {
	v := newVisualizer(64)
	a := encodePNG(t, fill(40, 20, color.NRGBA{R: 200, G: 200, B: 200, A: 255}))
	b := encodePNG(t, fill(40, 20, color.NRGBA{R: 180, G: 200, B: 200, A: 255}))

	out, err := v.Render(context.Background(), a, b)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
}

func TestRender_Deterministic(t *testing.T) {
	v := newVisualizer(32)
	a := encodePNG(t, fill(10, 10, color.NRGBA{R: 10, A: 255}))
	b := encodePNG(t, fill(10, 10, color.NRGBA{R: 90, A: 255}))

	first, err := v.Render(context.Background(), a, b)
	require.NoError(t, err)
	second, err := v.Render(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_EmptyCandidate(t *testing.T) {
	out, err := newVisualizer(0).Render(context.Background(), []byte("x"), nil)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestRender_UndecodableOriginal(t *testing.T) {
	v := newVisualizer(0)
	_, err := v.Render(context.Background(), []byte("garbage!"), encodePNG(t, fill(2, 2, color.NRGBA{A: 255})))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryComparison))
}
