package filters

import (
	"context"
	"image"

	"cvbridge/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// BoxBlur is a normalized box filter with a square kernel and the default
// centered anchor.
type BoxBlur struct {
	source    MatSource
	policy    KernelPolicy
	maxKernel int
}

func NewBoxBlur(source MatSource, policy KernelPolicy, maxKernel int) *BoxBlur {
	return &BoxBlur{
		source:    source,
		policy:    policy,
		maxKernel: maxKernel,
	}
}

func (b *BoxBlur) Name() string {
	return "box_blur"
}

// KernelSize applies the policy to a requested side length.
func (b *BoxBlur) KernelSize(k int) (int, error) {
	return b.policy.Normalize(k, 1, b.maxKernel)
}

func (b *BoxBlur) Apply(ctx context.Context, src *safe.Mat, kernelSize int) (*safe.Mat, error) {
	k, err := b.KernelSize(kernelSize)
	if err != nil {
		return nil, err
	}

	return apply(ctx, b.source, b.Name(), src, func(s gocv.Mat, d *gocv.Mat) error {
		return gocv.Blur(s, d, image.Pt(k, k))
	})
}
