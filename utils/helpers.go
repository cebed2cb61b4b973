// Package utils holds small helpers shared by the core and the adapters.
package utils

import (
	"bytes"
	"math"

	"github.com/h2non/filetype"
)

const (
	formatJPEG    = "jpeg"
	formatPNG     = "png"
	formatWebP    = "webp"
	formatGIF     = "gif"
	formatUnknown = "unknown"
)

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
	gifMagic  = []byte("GIF8")
)

// DetectFormat sniffs the signature of data.  The formats the optimizer
// handles are matched directly; anything else goes through filetype's
// matcher table.
func DetectFormat(data []byte) string {
	switch {
	case len(data) < 4:
		return formatUnknown
	case bytes.HasPrefix(data, jpegMagic):
		return formatJPEG
	case bytes.HasPrefix(data, pngMagic):
		return formatPNG
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpMagic):
		return formatWebP
	case bytes.HasPrefix(data, gifMagic):
		return formatGIF
	}

	kind, err := filetype.Match(data)
	if err != nil {
		return formatUnknown
	}
	switch kind.Extension {
	case "jpg", "jpeg":
		return formatJPEG
	case "png":
		return formatPNG
	case "webp":
		return formatWebP
	case "gif":
		return formatGIF
	}
	return formatUnknown
}

// FitDimensions scales (srcW, srcH) to the largest size that fits inside a
// boxW x boxH box while preserving aspect ratio.  Upscaling is allowed.  Both
// results are at least 1.
func FitDimensions(srcW, srcH, boxW, boxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 || boxW <= 0 || boxH <= 0 {
		return 0, 0
	}
	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if w > boxW {
		w = boxW
	}
	if h > boxH {
		h = boxH
	}
	return w, h
}

// CloneBytes returns a copy of b.
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
