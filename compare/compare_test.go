package compare_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/adapters/decoder"
	"github.com/Skryldev/image-optimizer/compare"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func noisy(src *image.NRGBA, amp int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	out := image.NewNRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	for i := range out.Pix {
		if i%4 == 3 {
			continue
		}
		v := int(out.Pix[i]) + rng.Intn(2*amp+1) - amp
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out.Pix[i] = uint8(v)
	}
	return out
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func registry() core.Registry {
	reg := core.NewRegistry()
	decoder.Register(reg)
	return reg
}

func TestCanvas_Dimensions(t *testing.T) {
	c := compare.Canvas(gradient(100, 50), 512)
	assert.Equal(t, 512, c.Bounds().Dx())
	assert.Equal(t, 512, c.Bounds().Dy())

	// Letterbox bands stay black.
	assert.Equal(t, color.NRGBA{A: 255}, c.NRGBAAt(256, 10))
}

// halfTransparent returns a gradient whose left half is fully transparent
// over random colour.
func halfTransparent(w, h int, seed int64) *image.NRGBA {
	img := gradient(w, h)
	rng := rand.New(rand.NewSource(seed))
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			i := img.PixOffset(x, y)
			rng.Read(img.Pix[i : i+3])
			img.Pix[i+3] = 0
		}
	}
	return img
}

func TestCanvas_FlattensTransparency(t *testing.T) {
	// 512x512 fits the canvas exactly, so nothing is resampled.
	a := compare.Canvas(halfTransparent(512, 512, 1), 512)
	b := compare.Canvas(halfTransparent(512, 512, 2), 512)

	assert.Equal(t, color.NRGBA{A: 255}, a.NRGBAAt(10, 10))
	assert.Equal(t, a.Pix, b.Pix)
	assert.InDelta(t, 1.0, compare.SSIM(a, b), 1e-9)
}

func TestComparator_IgnoresHiddenColour(t *testing.T) {
	cmp := compare.New(registry(), 0)
	sim, err := cmp.Compare(context.Background(),
		encodePNG(t, halfTransparent(512, 512, 1)), encodePNG(t, halfTransparent(512, 512, 7)))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim.SSIM, 1e-9)
	assert.Equal(t, 0, sim.HashDistance)
}

func TestSSIM_Identical(t *testing.T) {
	img := compare.Canvas(gradient(120, 80), 128)
	assert.InDelta(t, 1.0, compare.SSIM(img, img), 1e-9)
}

func TestSSIM_SmallImagesUseGlobal(t *testing.T) {
	img := gradient(4, 4)
	assert.InDelta(t, 1.0, compare.SSIM(img, img), 1e-9)
	assert.Less(t, compare.SSIM(img, noisy(img, 60, 3)), 1.0)
}

func TestSSIM_NoiseLowersScore(t *testing.T) {
	src := gradient(128, 128)
	light := compare.SSIM(src, noisy(src, 4, 1))
	heavy := compare.SSIM(src, noisy(src, 40, 1))

	assert.Less(t, light, 1.0)
	assert.Less(t, heavy, light)
	assert.GreaterOrEqual(t, heavy, 0.0)
}

func TestSSIM_Symmetric(t *testing.T) {
	a := gradient(64, 64)
	b := noisy(a, 20, 9)
	assert.InDelta(t, compare.SSIM(a, b), compare.SSIM(b, a), 1e-9)
}

func TestComparator_Compare(t *testing.T) {
	ctx := context.Background()
	cmp := compare.New(registry(), 0)
	orig := encodePNG(t, gradient(200, 120))

	sim, err := cmp.Compare(ctx, orig, orig)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim.SSIM, 1e-9)
	assert.Zero(t, sim.HashDistance)

	sim, err = cmp.Compare(ctx, orig, encodePNG(t, noisy(gradient(200, 120), 50, 2)))
	require.NoError(t, err)
	assert.Less(t, sim.SSIM, 0.96)
}

func TestComparator_DifferentDimensions(t *testing.T) {
	cmp := compare.New(registry(), 256)
	sim, err := cmp.Compare(context.Background(),
		encodePNG(t, gradient(400, 240)), encodePNG(t, gradient(200, 120)))
	require.NoError(t, err)
	assert.Greater(t, sim.SSIM, 0.9)
}

func TestComparator_UndecodableCandidate(t *testing.T) {
	cmp := compare.New(registry(), 0)
	_, err := cmp.Compare(context.Background(), encodePNG(t, gradient(16, 16)), []byte("not an image"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryComparison))
}

func TestComparator_EmptyInput(t *testing.T) {
	cmp := compare.New(registry(), 0)
	_, err := cmp.Compare(context.Background(), nil, []byte{1})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)
}
