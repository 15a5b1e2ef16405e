package resume

import (
	"encoding/binary"
	"sync/atomic"
)

// streamIDOffset is the byte offset of the 16-bit stream-id field within a
// frame's wire encoding. Everything past it (frame type, flags, payload) is
// opaque to this layer; wire codec concerns belong to the transport and
// framing packages this connection is composed with, not to this one.
const streamIDOffset = 0

// Frame is an opaque, length-prefixed byte blob with a stream-id prefix.
// Frame buffers are reference-counted: a frame handed to sendFrame is owned
// by whichever collaborator currently holds it (the store, or the active
// transport) until that collaborator calls Done.
type Frame interface {
	// StreamID returns the frame's stream-id prefix. Zero denotes a
	// connection frame (non-resumable); any other value, a resumable frame.
	StreamID() uint32
	// Len returns the frame's length in bytes, which is the unit that
	// position counters (sentPosition, impliedPosition, ...) advance by.
	Len() int
	// Bytes returns the raw encoded frame. Callers must not retain the
	// slice past a call to Done.
	Bytes() []byte
	// Retain increments the frame's reference count. Call it before handing
	// the same frame to more than one collaborator (e.g. the store and the
	// replay stream read the same retained buffer).
	Retain() Frame
	// Done decrements the reference count, releasing the underlying buffer
	// back to its allocator when it reaches zero.
	Done()
}

// refCountedFrame is the default Frame implementation: a flat byte buffer
// with an atomic reference count and a release callback invoked exactly
// once the count reaches zero.
type refCountedFrame struct {
	buf      []byte
	refCount *int32
	release  func([]byte)
}

// NewFrame wraps buf as a Frame with an initial reference count of one. The
// stream id is read from the frame's standard header offset. release, if
// non-nil, is invoked with buf once the last reference is released; it is
// the hook a pooling allocator uses to reclaim the buffer.
func NewFrame(buf []byte, release func([]byte)) Frame {
	rc := int32(1)
	return &refCountedFrame{buf: buf, refCount: &rc, release: release}
}

func (f *refCountedFrame) StreamID() uint32 {
	if len(f.buf) < streamIDOffset+2 {
		return 0
	}
	return uint32(binary.BigEndian.Uint16(f.buf[streamIDOffset:]))
}

func (f *refCountedFrame) Len() int {
	return len(f.buf)
}

func (f *refCountedFrame) Bytes() []byte {
	return f.buf
}

func (f *refCountedFrame) Retain() Frame {
	atomic.AddInt32(f.refCount, 1)
	return f
}

func (f *refCountedFrame) Done() {
	if atomic.AddInt32(f.refCount, -1) == 0 && f.release != nil {
		f.release(f.buf)
		f.buf = nil
	}
}

// IsResumable reports whether a frame is subject to the store and replay
// protocol, i.e. whether its stream id is nonzero.
func IsResumable(f Frame) bool {
	return f.StreamID() != 0
}
