// Package filters applies single OpenCV transforms to a source Mat without
// mutating it.
package filters

import (
	"context"
	"fmt"

	"cvbridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// MatSource hands out destination Mats. memory.Manager satisfies it with
// its scratch pool.
type MatSource interface {
	GetScratch(rows, cols int, matType gocv.MatType) (*safe.Mat, error)
	PutScratch(mat *safe.Mat)
}

// Filter writes a transformed copy of src into a Mat obtained from its
// MatSource. The caller returns the result with MatSource.PutScratch.
type Filter interface {
	Name() string
	Apply(ctx context.Context, src *safe.Mat, kernelSize int) (*safe.Mat, error)
}

// apply runs op with src read-locked and a fresh destination write-locked.
func apply(ctx context.Context, source MatSource, name string, src *safe.Mat, op func(src gocv.Mat, dst *gocv.Mat) error) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if src == nil {
		return nil, fmt.Errorf("%s: nil source", name)
	}

	var dst *safe.Mat
	err := src.Read(func(s gocv.Mat) error {
		var err error
		dst, err = source.GetScratch(s.Rows(), s.Cols(), s.Type())
		if err != nil {
			return fmt.Errorf("failed to get destination Mat: %w", err)
		}
		return dst.Write(func(d *gocv.Mat) error {
			return op(s, d)
		})
	})
	if err != nil {
		if dst != nil {
			source.PutScratch(dst)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return dst, nil
}
