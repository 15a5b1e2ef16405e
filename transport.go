package resume

import "sync/atomic"

// Allocator is the buffer allocator of a transport, exposed so collaborators
// above this layer can size and acquire frame buffers compatibly with
// whatever pooling the transport uses underneath.
type Allocator interface {
	Allocate(size int) []byte
	Release(buf []byte)
}

// Transport is the collaborator this connection composes: a concrete
// byte-moving channel (TCP, WebSocket, in-memory pipe, ...) with a uniform
// duplex interface. Implementations live outside this package; wire codec,
// dialing, and TLS setup are none of this layer's concern.
type Transport interface {
	// SendFrame is fire-and-forget: it never blocks and never reports
	// failure to the caller directly (a write failure surfaces through
	// OnClose instead).
	SendFrame(streamID uint32, frame Frame)
	// Receive returns an infinite push stream of inbound frames. It is
	// closed when the transport is lost, for any reason.
	Receive() <-chan Frame
	// OnClose resolves when the transport is fully torn down.
	OnClose() <-chan struct{}
	// Dispose idempotently closes the transport.
	Dispose()
	// SendErrorAndClose emits an RSocket error frame, then closes.
	SendErrorAndClose(err error)
	RemoteAddr() string
	Alloc() Allocator
}

// disposedTransport is the sentinel occupying the active-connection pointer
// once a connection has torn down for good. It answers every call as a
// no-op so that code paths racing the final dispose never need a nil check.
type disposedTransport struct{}

func (disposedTransport) SendFrame(uint32, Frame) {}

func (disposedTransport) Receive() <-chan Frame {
	ch := make(chan Frame)
	close(ch)
	return ch
}

func (disposedTransport) OnClose() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (disposedTransport) Dispose() {}

func (disposedTransport) SendErrorAndClose(error) {}

func (disposedTransport) RemoteAddr() string { return "" }

func (disposedTransport) Alloc() Allocator { return nil }

var _ Transport = disposedTransport{}

// transportBox is the value stored behind the active-connection pointer. It
// exists so the pointer swap can be a single CompareAndSwap over a stable
// pointer identity rather than over the Transport interface value itself
// (two equal interface values are not necessarily the same pointer word).
type transportBox struct {
	transport Transport
	disposed  bool
}

// activeConnection holds the tagged variant {Live(Transport), Disposed}
// described in the design notes, implemented as an atomically-swapped
// pointer to an immutable box. Exactly one of any concurrent pair of
// connect/dispose/sendErrorAndClose operations wins the swap to a given
// value; the loser observes Disposed (for terminal transitions) or simply
// retries (for connect racing connect).
type activeConnection struct {
	p atomic.Pointer[transportBox]
}

func newActiveConnection(t Transport) *activeConnection {
	a := &activeConnection{}
	a.p.Store(&transportBox{transport: t})
	return a
}

// current returns the live transport, whether or not it has been wired by
// Receive yet, or nil if no transport was ever set or the connection is
// disposed.
func (a *activeConnection) current() Transport {
	b := a.p.Load()
	if b == nil || b.disposed {
		return nil
	}
	return b.transport
}

func (a *activeConnection) isDisposed() bool {
	b := a.p.Load()
	return b != nil && b.disposed
}

// trySwap installs next as the active transport and returns the transport it
// replaced (nil if none was wired). It fails if the pointer is already
// Disposed.
func (a *activeConnection) trySwap(next Transport) (prev Transport, ok bool) {
	for {
		cur := a.p.Load()
		if cur != nil && cur.disposed {
			return nil, false
		}
		nextBox := &transportBox{transport: next}
		if a.p.CompareAndSwap(cur, nextBox) {
			if cur != nil {
				return cur.transport, true
			}
			return nil, true
		}
	}
}

// tryDispose permanently marks the pointer Disposed and returns whichever
// transport was active at that instant. already is true if another caller
// had already disposed the pointer first.
func (a *activeConnection) tryDispose() (prev Transport, already bool) {
	for {
		cur := a.p.Load()
		if cur != nil && cur.disposed {
			return nil, true
		}
		disposedBox := &transportBox{disposed: true}
		if a.p.CompareAndSwap(cur, disposedBox) {
			if cur != nil {
				return cur.transport, false
			}
			return nil, false
		}
	}
}
