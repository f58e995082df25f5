// Package icmpcore implements ICMPv4/ICMPv6 echo framing, checksums, and an
// unprivileged datagram-socket facade with kernel error-queue handling.
package icmpcore

import (
	"fmt"
	"unsafe"
)

// MTU is the default buffer capacity: large enough for any ICMP echo
// request/reply this package builds, with headroom for the IP header a
// raw-mode socket would deliver.
const MTU = 1500

// BufferTooSmallError is returned by Read when the buffer's initialized
// region doesn't yet hold enough bytes to satisfy the read.
type BufferTooSmallError struct {
	Actual int
	Needed int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("buffer too small: have %d bytes, need %d", e.Actual, e.Needed)
}

// Buffer is a fixed-capacity, MTU-sized staging area for a single socket
// direction (send or receive). It tracks two positions: init, the length of
// the initialized prefix written so far, and pos, a consuming read cursor
// that never runs ahead of init.
//
// Invariant: 0 <= pos <= init <= len(data).
type Buffer struct {
	data []byte
	pos  int
	init int
}

// NewBuffer allocates a Buffer with MTU capacity.
func NewBuffer() *Buffer {
	return NewBufferSize(MTU)
}

// NewBufferSize allocates a Buffer with the given capacity.
func NewBufferSize(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Clear resets both the read cursor and the initialized length, without
// reallocating.
func (b *Buffer) Clear() {
	b.pos = 0
	b.init = 0
}

// Len returns the number of initialized bytes currently held.
func (b *Buffer) Len() int {
	return b.init
}

// Cap returns the buffer's total capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// AsBytes returns the initialized prefix of the buffer.
func (b *Buffer) AsBytes() []byte {
	return b.data[:b.init]
}

// RemainingMut returns the uninitialized tail, for callers (e.g. a recvmsg
// call) that want to write directly into the buffer's backing array.
func (b *Buffer) RemainingMut() []byte {
	return b.data[b.init:]
}

// Advance marks n additional bytes, beyond the current initialized length,
// as initialized — e.g. after a recvmsg call reports n bytes written into
// RemainingMut. It saturates at capacity rather than panicking.
func (b *Buffer) Advance(n int) {
	b.init += n
	if b.init > len(b.data) {
		b.init = len(b.data)
	}
}

// ExtendFromSlice appends p to the initialized region, silently truncating
// to whatever capacity remains. It returns the number of bytes actually
// copied.
func (b *Buffer) ExtendFromSlice(p []byte) int {
	room := len(b.data) - b.init
	if room <= 0 {
		return 0
	}
	if len(p) > room {
		p = p[:room]
	}
	n := copy(b.data[b.init:], p)
	b.init += n
	return n
}

// Fixed is the set of plain byte-array shapes Read may reinterpret a
// buffer's bytes as. Restricting the type parameter to raw byte arrays
// sidesteps the endianness ambiguity an unsafe reinterpret of an integer
// field would have; anything with a notion of byte order (the ICMP headers)
// is decoded explicitly instead, see icmp_v4.go / icmp_v6.go.
type Fixed interface {
	[2]byte | [4]byte | [8]byte | [16]byte
}

// Read is a consuming, 2-byte-aligned typed view: it reinterprets the next
// sizeof(T) bytes starting at the current read cursor as T, advances the
// cursor by that many bytes, and returns BufferTooSmallError if the
// initialized region doesn't extend far enough.
//
// Read never copies; the returned pointer aliases the buffer's backing
// array and is only valid until the next Clear.
func Read[T Fixed](b *Buffer) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	needed := b.pos + size
	if b.init < needed {
		return nil, &BufferTooSmallError{Actual: b.init, Needed: needed}
	}
	v := (*T)(unsafe.Pointer(&b.data[b.pos]))
	b.pos += size
	return v, nil
}
