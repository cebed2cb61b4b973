package encoder

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ── Near-lossless ─────────────────────────────────────────────────────────────

const (
	nearLosslessMinDim  = 64
	nearLosslessMaxBits = 5
)

// NearLossless returns a copy of img in which pixels outside smooth regions
// are snapped to a coarser grid, the libwebp preprocessing that lets a
// lossless encode shrink.  level runs 0..100 like libwebp's near_lossless
// setting: 100 leaves the image untouched, 60 keeps every channel within 2
// of the source.  Images with both sides under 64 pixels are returned as is.
func NearLossless(img image.Image, level int) *image.NRGBA {
	out := imaging.Clone(img)
	bits := nearLosslessMaxBits - level/20
	if bits > nearLosslessMaxBits {
		bits = nearLosslessMaxBits
	}
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	if bits <= 0 || (w < nearLosslessMinDim && h < nearLosslessMinDim) || w < 3 || h < 3 {
		return out
	}
	for b := bits; b >= 1; b-- {
		nearLosslessPass(out, uint(b))
	}
	return out
}

// nearLosslessPass snaps every interior pixel whose 4-neighbourhood differs
// by 1<<bits or more in some channel.  Border pixels are kept exactly.
func nearLosslessPass(img *image.NRGBA, bits uint) {
	limit := 1 << bits
	src := make([]uint8, len(img.Pix))
	copy(src, img.Pix)

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 1; y < h-1; y++ {
		row := y * img.Stride
		for x := 1; x < w-1; x++ {
			i := row + x*4
			if near(src, i, i-4, limit) && near(src, i, i+4, limit) &&
				near(src, i, i-img.Stride, limit) && near(src, i, i+img.Stride, limit) {
				continue
			}
			for c := 0; c < 4; c++ {
				img.Pix[i+c] = snap(src[i+c], bits)
			}
		}
	}
}

func near(pix []uint8, a, b, limit int) bool {
	for c := 0; c < 4; c++ {
		d := int(pix[a+c]) - int(pix[b+c])
		if d >= limit || d <= -limit {
			return false
		}
	}
	return true
}

// snap rounds v to the closest multiple of 1<<bits, ties to even, saturating
// at 255.
func snap(v uint8, bits uint) uint8 {
	a := uint32(v)
	mask := uint32(1)<<bits - 1
	biased := a + mask>>1 + (a>>bits)&1
	if biased > 0xff {
		return 0xff
	}
	return uint8(biased &^ mask)
}

// ── Sharp chroma ──────────────────────────────────────────────────────────────

const sharpIterations = 4

// SharpChroma returns a copy of img prepared for 4:2:0 encoding: every 2x2
// block carries a single chroma value and each pixel's luma is corrected so
// that the bilinearly upsampled reconstruction tracks the source, the idea
// behind libwebp's sharp YUV conversion.  Alpha is kept.
func SharpChroma(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w < 2 && h < 2 {
		return src
	}
	bw, bh := (w+1)/2, (h+1)/2

	luma := make([]float64, w*h)
	cb := make([]float64, bw*bh)
	cr := make([]float64, bw*bh)
	count := make([]float64, bw*bh)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := rgbAt(src, x, y)
			k := (y/2)*bw + x/2
			luma[y*w+x] = 0.299*r + 0.587*g + 0.114*b
			cb[k] += chromaB(r, g, b)
			cr[k] += chromaR(r, g, b)
			count[k]++
		}
	}
	for k := range cb {
		cb[k] /= count[k]
		cr[k] /= count[k]
	}

	dcb := make([]float64, bw*bh)
	dcr := make([]float64, bw*bh)
	for it := 0; it < sharpIterations; it++ {
		for k := range dcb {
			dcb[k], dcr[k] = 0, 0
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := y*w + x
				k := (y/2)*bw + x/2
				r, g, b := rgbAt(src, x, y)
				rr, gg, bb := toRGB(luma[p], upsample(cb, bw, bh, x, y), upsample(cr, bw, bh, x, y))
				er, eg, eb := r-rr, g-gg, b-bb
				luma[p] += 0.299*er + 0.587*eg + 0.114*eb
				dcb[k] += chromaB(er, eg, eb)
				dcr[k] += chromaR(er, eg, eb)
			}
		}
		for k := range cb {
			cb[k] += dcb[k] / count[k]
			cr[k] += dcr[k] / count[k]
		}
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			k := (y/2)*bw + x/2
			r, g, b := toRGB(luma[y*w+x], cb[k], cr[k])
			i := y*out.Stride + x*4
			out.Pix[i] = to8(r)
			out.Pix[i+1] = to8(g)
			out.Pix[i+2] = to8(b)
			out.Pix[i+3] = src.Pix[y*src.Stride+x*4+3]
		}
	}
	return out
}

func rgbAt(img *image.NRGBA, x, y int) (r, g, b float64) {
	i := y*img.Stride + x*4
	return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
}

func chromaB(r, g, b float64) float64 { return -0.168736*r - 0.331264*g + 0.5*b }
func chromaR(r, g, b float64) float64 { return 0.5*r - 0.418688*g - 0.081312*b }

// toRGB converts zero-centred BT.601 YCbCr back to RGB, clamped to 0..255.
func toRGB(y, cb, cr float64) (r, g, b float64) {
	return clamp255(y + 1.402*cr),
		clamp255(y - 0.344136*cb - 0.714136*cr),
		clamp255(y + 1.772*cb)
}

// upsample samples a half-resolution plane at full-resolution pixel (x, y)
// with the bilinear weights a WebP decoder applies.
func upsample(plane []float64, bw, bh, x, y int) float64 {
	fx := (float64(x) - 0.5) / 2
	fy := (float64(y) - 0.5) / 2
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)
	at := func(i, j int) float64 {
		i = clampIndex(i, bw)
		j = clampIndex(j, bh)
		return plane[j*bw+i]
	}
	top := (1-tx)*at(x0, y0) + tx*at(x0+1, y0)
	bottom := (1-tx)*at(x0, y0+1) + tx*at(x0+1, y0+1)
	return (1-ty)*top + ty*bottom
}

func clampIndex(i, n int) int {
	switch {
	case i < 0:
		return 0
	case i >= n:
		return n - 1
	}
	return i
}

func clamp255(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return v
}

func to8(v float64) uint8 { return uint8(clamp255(v) + 0.5) }
