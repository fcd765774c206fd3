package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import "unsafe"

// Helpers for driving the exported functions from Go, where C types are
// not available to _test.go files.

// cBuffer is the type of image and result buffers on the C side.
type cBuffer = *C.uchar

func cBytes(data []byte) cBuffer {
	return (cBuffer)(C.CBytes(data))
}

func freeC(p cBuffer) {
	C.free(unsafe.Pointer(p))
}

func newLen(n int32) *C.int32_t {
	p := (*C.int32_t)(C.malloc(C.size_t(unsafe.Sizeof(C.int32_t(0)))))
	*p = C.int32_t(n)
	return p
}

func setLen(p *C.int32_t, n int32) {
	*p = C.int32_t(n)
}

func lenValue(p *C.int32_t) int32 {
	return int32(*p)
}

func freeLen(p *C.int32_t) {
	C.free(unsafe.Pointer(p))
}

func goBytes(p cBuffer, n int32) []byte {
	return C.GoBytes(unsafe.Pointer(p), C.int(n))
}

func cString(s string) *C.char {
	return C.CString(s)
}

func freeString(s *C.char) {
	C.free(unsafe.Pointer(s))
}
