// Package codec moves images between container bytes and OpenCV matrices.
package codec

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"cvbridge/internal/opencv/safe"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecodeFailed      = errors.New("failed to decode image")
	ErrEncodeFailed      = errors.New("failed to encode image")
	ErrUnsupportedFormat = errors.New("unsupported container format")
)

// Format is an output container.
type Format string

const (
	// FormatBMP is uncompressed and the fastest to produce.
	FormatBMP  Format = "bmp"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpg"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatBMP, FormatPNG, FormatJPEG:
		return f, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", s)
	}
}

func (f Format) fileExt() gocv.FileExt {
	return gocv.FileExt("." + string(f))
}

// Decode decodes data with format auto-detection, keeping the original
// channel count and alpha. The returned Mat is owned by the caller.
func Decode(data []byte, tracker safe.MemoryTracker, tag string) (*safe.Mat, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrDecodeFailed, "empty input")
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return nil, errors.Wrapf(ErrDecodeFailed, "imdecode: %v", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, errors.Wrap(ErrDecodeFailed, "no pixel data")
	}

	sm, err := safe.Adopt(mat, tracker, tag)
	if err != nil {
		return nil, errors.Wrap(ErrDecodeFailed, err.Error())
	}
	return sm, nil
}

// Encode encodes src into format f and returns a Go-owned copy of the
// bytes.
func Encode(src *safe.Mat, f Format) ([]byte, error) {
	var out []byte
	err := src.Read(func(m gocv.Mat) error {
		buf, err := gocv.IMEncode(f.fileExt(), m)
		if buf != nil {
			defer buf.Close()
		}
		if err != nil {
			return errors.Wrapf(ErrEncodeFailed, "%s: %v", f, err)
		}

		// GetBytes aliases native memory that Close frees.
		native := buf.GetBytes()
		if len(native) == 0 {
			return errors.Wrapf(ErrEncodeFailed, "%s: empty output", f)
		}
		out = make([]byte, len(native))
		copy(out, native)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Header describes an encoded image without decoding its pixels.
type Header struct {
	Format string
	Width  int
	Height int
}

// Sniff reads the container header with the Go image decoders. It is used
// for diagnostics only; OpenCV remains the decoder of record.
func Sniff(data []byte) (Header, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Header{}, errors.Wrap(err, "sniff")
	}
	return Header{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
