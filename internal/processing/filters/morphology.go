package filters

import (
	"context"
	"image"

	"cvbridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// Dilate is a single morphological dilation with an elliptical structuring
// element of (2k+1)×(2k+1). The anchor is the element center (k, k).
type Dilate struct {
	source    MatSource
	policy    KernelPolicy
	maxKernel int
}

func NewDilate(source MatSource, policy KernelPolicy, maxKernel int) *Dilate {
	return &Dilate{
		source:    source,
		policy:    policy,
		maxKernel: maxKernel,
	}
}

func (m *Dilate) Name() string {
	return "dilate"
}

// KernelSize applies the policy to a requested radius. Zero is allowed and
// yields a 1×1 element.
func (m *Dilate) KernelSize(k int) (int, error) {
	return m.policy.Normalize(k, 0, m.maxKernel)
}

func (m *Dilate) Apply(ctx context.Context, src *safe.Mat, kernelSize int) (*safe.Mat, error) {
	k, err := m.KernelSize(kernelSize)
	if err != nil {
		return nil, err
	}

	side := 2*k + 1
	element := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(side, side))
	defer element.Close()

	return apply(ctx, m.source, m.Name(), src, func(s gocv.Mat, d *gocv.Mat) error {
		// default anchor (-1, -1) resolves to the element center
		return gocv.Dilate(s, d, element)
	})
}
