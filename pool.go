package tinyjpeg

import (
	"fmt"
	"unsafe"
)

// pool is a bump allocator over a caller-supplied buffer. Blocks are never freed;
// the whole pool is released when the caller drops the buffer.
type pool struct {
	buf  []byte // remaining free space, 4-byte aligned
	size int    // usable size after alignment
}

func newPool(buf []byte) pool {
	if len(buf) == 0 {
		return pool{}
	}

	// Typed views need a 4-byte aligned base.
	skip := int(-uintptr(unsafe.Pointer(&buf[0])) & 3)
	if skip > len(buf) {
		skip = len(buf)
	}

	buf = buf[skip:]
	buf = buf[:len(buf)&^3]

	return pool{buf: buf, size: len(buf)}
}

// alloc returns a zeroed block of n bytes rounded up to a multiple of 4.
// A failed allocation leaves the pool untouched.
func (p *pool) alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative allocation: %w", ErrParameter)
	}

	n = (n + 3) &^ 3
	if n > len(p.buf) {
		return nil, fmt.Errorf("%d bytes requested, %d left: %w", n, len(p.buf), ErrInsufficientPool)
	}

	blk := p.buf[:n:n]
	p.buf = p.buf[n:]
	clear(blk)

	return blk, nil
}

// used returns the number of bytes handed out so far.
func (p *pool) used() int {
	return p.size - len(p.buf)
}

func (p *pool) allocInt32(n int) ([]int32, error) {
	b, err := p.alloc(n * 4)
	if err != nil {
		return nil, err
	}

	return int32s(b), nil
}

func (p *pool) allocInt16(n int) ([]int16, error) {
	b, err := p.alloc(n * 2)
	if err != nil {
		return nil, err
	}

	return int16s(b), nil
}

func (p *pool) allocUint16(n int) ([]uint16, error) {
	b, err := p.alloc(n * 2)
	if err != nil {
		return nil, err
	}

	return uint16s(b), nil
}

// int32s reinterprets b in place. b must come from the pool.
func int32s(b []byte) []int32 {
	if len(b) < 4 {
		return nil
	}

	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

func int16s(b []byte) []int16 {
	if len(b) < 2 {
		return nil
	}

	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), len(b)/2)
}

func uint16s(b []byte) []uint16 {
	if len(b) < 2 {
		return nil
	}

	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}
