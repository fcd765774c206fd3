// Command libcvbridge builds the C ABI of the bridge:
//
//	go build -buildmode=c-shared -o libcvbridge.so ./cmd/libcvbridge
//
// Every non-null buffer returned by opencv_blur or opencv_dilate must be
// released with opencv_free, and every non-zero handle with
// opencv_releaseImage. Buffers stay freeable across opencv_shutdown; handles
// do not.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"math"
	"unsafe"

	"cvbridge/internal/bridge"
)

func main() {}

//export opencv_init
func opencv_init(configPath *C.char) C.int32_t {
	path := ""
	if configPath != nil {
		path = C.GoString(configPath)
	}
	if err := initialize(path); err != nil {
		fallback.Error("Library", err, map[string]interface{}{"path": path})
		return -1
	}
	return 0
}

// opencv_decodeImage copies exactly *length bytes from img. On success
// *length is overwritten with the decoded pixel storage size.
//
//export opencv_decodeImage
func opencv_decodeImage(img *C.uchar, length *C.int32_t) C.uint64_t {
	l := get()
	if l == nil || img == nil || length == nil || *length <= 0 {
		return 0
	}

	data := C.GoBytes(unsafe.Pointer(img), C.int(*length))
	h, n, err := l.bridge.Decode(context.Background(), data)
	if err != nil {
		l.fail(bridge.OpDecode, err)
		return 0
	}
	if n > math.MaxInt32 {
		l.bridge.Release(h)
		return 0
	}

	*length = C.int32_t(n)
	return C.uint64_t(h)
}

//export opencv_blur
func opencv_blur(h C.uint64_t, length *C.int32_t, kernelSize C.int32_t) *C.uchar {
	return transform(bridge.OpBlur, h, length, kernelSize)
}

//export opencv_dilate
func opencv_dilate(h C.uint64_t, length *C.int32_t, kernelSize C.int32_t) *C.uchar {
	return transform(bridge.OpDilate, h, length, kernelSize)
}

func transform(op string, h C.uint64_t, length *C.int32_t, kernelSize C.int32_t) *C.uchar {
	l := get()
	if l == nil || length == nil {
		return nil
	}

	var (
		out []byte
		err error
	)
	ctx := context.Background()
	switch op {
	case bridge.OpBlur:
		out, err = l.bridge.Blur(ctx, bridge.Handle(h), int(kernelSize))
	default:
		out, err = l.bridge.Dilate(ctx, bridge.Handle(h), int(kernelSize))
	}
	if err != nil {
		l.fail(op, err)
		return nil
	}
	if len(out) > math.MaxInt32 {
		return nil
	}

	p, err := l.bridge.Allocator().Box(out)
	if err != nil {
		l.fail(op, err)
		return nil
	}

	*length = C.int32_t(len(out))
	return (*C.uchar)(p)
}

//export opencv_releaseImage
func opencv_releaseImage(h C.uint64_t) C.int32_t {
	l := get()
	if l == nil {
		return -1
	}
	if err := l.bridge.Release(bridge.Handle(h)); err != nil {
		l.fail("release", err)
		return -1
	}
	return 0
}

//export opencv_free
func opencv_free(buf *C.uchar) C.int32_t {
	if err := outputs.Free(unsafe.Pointer(buf)); err != nil {
		return -1
	}
	return 0
}

//export opencv_setDebug
func opencv_setDebug(enabled C.int32_t) {
	if l := get(); l != nil {
		l.bridge.SetDebug(enabled != 0)
	}
}

//export opencv_shutdown
func opencv_shutdown() {
	closeLibrary()
}
