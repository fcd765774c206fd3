// Package imagetest builds encoded image fixtures for tests and decodes
// bridge output with Go decoders independent of OpenCV.
package imagetest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jsummers/gobmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

// Solid returns an opaque w×h image filled with c.
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// WhiteBMP is an uncompressed 24-bit BMP of a w×h all-white image.
func WhiteBMP(t testing.TB, w, h int) []byte {
	return BMP(t, Solid(w, h, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
}

// BMP encodes img with golang.org/x/image/bmp.
func BMP(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

// PNG encodes img with image/png.
func PNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// GrayPalettedBMP is an 8-bit palettized BMP with a grayscale palette,
// written by gobmp so fixtures do not all come from one encoder.
func GrayPalettedBMP(t testing.TB, w, h int, level uint8) []byte {
	t.Helper()
	palette := make(color.Palette, 256)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(i)}
	}
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette)
	for i := range img.Pix {
		img.Pix[i] = level
	}

	var buf bytes.Buffer
	require.NoError(t, gobmp.Encode(&buf, img))
	return buf.Bytes()
}

// Checkerboard is a w×h image of alternating black and white cells.
func Checkerboard(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// DecodeBMP decodes bridge output with golang.org/x/image/bmp.
func DecodeBMP(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, err := bmp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// IsUniform reports whether every pixel of img equals want.
func IsUniform(img image.Image, want color.Color) bool {
	wr, wg, wb, wa := want.RGBA()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if r != wr || g != wg || bl != wb || a != wa {
				return false
			}
		}
	}
	return true
}
