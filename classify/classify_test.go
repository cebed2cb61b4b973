package classify_test

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-optimizer/classify"
)

func uniform(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func grayNoise(w, h int, seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	return img
}

func TestProfile_Uniform(t *testing.T) {
	p := classify.Profile(uniform(64, 64, color.RGBA{R: 200, G: 50, B: 50, A: 255}), classify.DefaultThresholds())

	assert.Equal(t, 0.0, p.Entropy)
	assert.InDelta(t, 94.85, p.MeanBrightness, 0.01)
	assert.True(t, p.IsFlat)
	assert.False(t, p.IsDark)
	assert.False(t, p.IsHighDetail)
}

func TestProfile_Black(t *testing.T) {
	p := classify.Profile(uniform(32, 32, color.Black), classify.DefaultThresholds())
	assert.True(t, p.IsFlat)
	assert.True(t, p.IsDark)
	assert.Equal(t, 0.0, p.MeanBrightness)
}

func TestProfile_Noise(t *testing.T) {
	p := classify.Profile(grayNoise(256, 256, 1), classify.DefaultThresholds())

	assert.Greater(t, p.Entropy, 7.9)
	assert.LessOrEqual(t, p.Entropy, 8.0)
	assert.True(t, p.IsHighDetail)
	assert.False(t, p.IsFlat)
	assert.InDelta(t, 127.5, p.MeanBrightness, 2)
}

func TestProfile_Deterministic(t *testing.T) {
	img := grayNoise(128, 96, 7)
	th := classify.DefaultThresholds()
	require.Equal(t, classify.Profile(img, th), classify.Profile(img, th))
}

func TestProfile_ThresholdsAreStrict(t *testing.T) {
	img := uniform(8, 8, color.Gray{Y: 60})
	p := classify.Profile(img, classify.Thresholds{FlatEntropy: 0, DarkBrightness: 61, HighDetailEntropy: 0})
	assert.True(t, p.IsDark)
	assert.False(t, p.IsFlat, "entropy equal to the threshold is not flat")
	assert.False(t, p.IsHighDetail)
}

func TestStats_EmptyImage(t *testing.T) {
	e, m := classify.Stats(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.Zero(t, e)
	assert.Zero(t, m)
}

func TestEntropy(t *testing.T) {
	assert.InDelta(t, 1.0, classify.Entropy([]float64{5, 5}, 10), 1e-12)
	assert.InDelta(t, 2.0, classify.Entropy([]float64{1, 1, 1, 1}, 4), 1e-12)
	assert.Zero(t, classify.Entropy([]float64{0, 0}, 0))
}

func TestLuminance(t *testing.T) {
	assert.InDelta(t, 255.0, classify.Luminance(255, 255, 255), 1e-9)
	assert.InDelta(t, 0.299*255, classify.Luminance(255, 0, 0), 1e-9)
	assert.Zero(t, classify.Luminance(0, 0, 0))
}

func TestStats_TransparencyCountsAsBlack(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		if i%4 != 3 {
			img.Pix[i] = 0xff
		}
	}
	entropy, mean := classify.Stats(img)
	assert.Equal(t, 0.0, entropy)
	assert.Equal(t, 0.0, mean)
}
