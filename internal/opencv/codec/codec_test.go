package codec

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"cvbridge/internal/debug/memtracker"
	"cvbridge/internal/imagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDecodeWhiteBMP(t *testing.T) {
	m, err := Decode(imagetest.WhiteBMP(t, 4, 4), nil, memtracker.TagDecoded)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 4, m.Cols())
	assert.Equal(t, 3, m.Channels())
	// 4 rows * 4 cols * 3 channels * 1 byte, no padding at this size
	assert.Equal(t, 48, m.ByteLength())
}

func TestDecodeKeepsAlpha(t *testing.T) {
	img := imagetest.Solid(3, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	m, err := Decode(imagetest.PNG(t, img), nil, "")
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 4, m.Channels())
	assert.Equal(t, m.Step()*m.Rows(), m.ByteLength())
}

func TestDecodeGrayPalette(t *testing.T) {
	m, err := Decode(imagetest.GrayPalettedBMP(t, 5, 3, 77), nil, "")
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 1, m.Channels())
	assert.Equal(t, 5, m.Cols())
	assert.Equal(t, 3, m.Rows())
}

func TestDecodeTracksAllocation(t *testing.T) {
	tracker := memtracker.NewTracker(nil, false)

	m, err := Decode(imagetest.WhiteBMP(t, 2, 2), tracker, memtracker.TagDecoded)
	require.NoError(t, err)

	count, size := tracker.Outstanding(memtracker.TagDecoded)
	assert.Equal(t, 1, count)
	assert.Equal(t, int64(m.ByteLength()), size)

	m.Close()
	count, _ = tracker.Outstanding(memtracker.TagDecoded)
	assert.Zero(t, count)
}

func TestDecodeCorrupt(t *testing.T) {
	inputs := map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("definitely not an image"),
		"truncated": imagetest.WhiteBMP(t, 8, 8)[:20],
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			m, err := Decode(data, nil, "")
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, ErrDecodeFailed), "got %v", err)
		})
	}
}

func TestEncodeBMPRoundTrip(t *testing.T) {
	m, err := Decode(imagetest.WhiteBMP(t, 4, 4), nil, "")
	require.NoError(t, err)
	defer m.Close()

	out, err := Encode(m, FormatBMP)
	require.NoError(t, err)
	assert.Equal(t, "BM", string(out[:2]))

	img := imagetest.DecodeBMP(t, out)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
	assert.True(t, imagetest.IsUniform(img, color.White))
}

func TestEncodeIsDeterministic(t *testing.T) {
	m, err := Decode(imagetest.PNG(t, imagetest.Checkerboard(9, 7)), nil, "")
	require.NoError(t, err)
	defer m.Close()

	for _, f := range []Format{FormatBMP, FormatPNG, FormatJPEG} {
		first, err := Encode(m, f)
		require.NoError(t, err)
		second, err := Encode(m, f)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(first, second), "format %s", f)
	}
}

func TestEncodeClosedMat(t *testing.T) {
	m, err := Decode(imagetest.WhiteBMP(t, 2, 2), nil, "")
	require.NoError(t, err)
	m.Close()

	_, err = Encode(m, FormatBMP)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("png")
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f)

	_, err = ParseFormat("gif")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestSniff(t *testing.T) {
	h, err := Sniff(imagetest.WhiteBMP(t, 6, 5))
	require.NoError(t, err)
	assert.Equal(t, Header{Format: "bmp", Width: 6, Height: 5}, h)

	h, err = Sniff(imagetest.PNG(t, imagetest.Checkerboard(3, 2)))
	require.NoError(t, err)
	assert.Equal(t, "png", h.Format)

	_, err = Sniff([]byte("xx"))
	assert.Error(t, err)
}

func TestMatTypeAfterDecode(t *testing.T) {
	m, err := Decode(imagetest.WhiteBMP(t, 2, 2), nil, "")
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, gocv.MatTypeCV8UC3, m.Type())
}
