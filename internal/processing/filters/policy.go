package filters

import (
	"errors"
	"fmt"
)

var ErrKernelSize = errors.New("kernel size out of range")

// KernelPolicy decides what happens to a kernel size outside a filter's
// accepted range.
type KernelPolicy string

const (
	PolicyReject KernelPolicy = "reject"
	PolicyClamp  KernelPolicy = "clamp"
)

func ParseKernelPolicy(s string) (KernelPolicy, error) {
	switch p := KernelPolicy(s); p {
	case PolicyReject, PolicyClamp:
		return p, nil
	case "":
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown kernel policy %q", s)
	}
}

// Normalize returns k if it lies in [lo, hi]. Otherwise a clamping policy
// pulls it into range and any other policy fails with ErrKernelSize.
func (p KernelPolicy) Normalize(k, lo, hi int) (int, error) {
	if k >= lo && k <= hi {
		return k, nil
	}
	if p != PolicyClamp {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrKernelSize, k, lo, hi)
	}
	if k < lo {
		return lo, nil
	}
	return hi, nil
}
