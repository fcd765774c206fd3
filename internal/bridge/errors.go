package bridge

import (
	"errors"

	"cvbridge/internal/opencv/codec"
	"cvbridge/internal/opencv/memory"
	"cvbridge/internal/processing/filters"
	"cvbridge/internal/transfer"
)

// Errors returned by the bridge. The C ABI collapses all of them to a null
// result.
var (
	ErrDecodeFailed  = codec.ErrDecodeFailed
	ErrEncodeFailed  = codec.ErrEncodeFailed
	ErrInvalidHandle = memory.ErrInvalidHandle
	ErrStaleHandle   = memory.ErrStaleHandle
	ErrKernelSize    = filters.ErrKernelSize
	ErrUnknownBuffer = transfer.ErrUnknownBuffer
	ErrEmptyMat      = errors.New("image has no pixel data")
	ErrClosed        = errors.New("bridge is shut down")
)
