// Package resume implements the resumable duplex connection layer of an
// RSocket-style transport: a logical connection that sits above a
// transport, transparently replaces it on failure, persists not-yet-
// acknowledged frames, replays them on the successor, and filters
// duplicates on receive.
package resume

import (
	"sync"
	"sync/atomic"

	"github.com/inconshreveable/log15"

	"github.com/rsocket-go/rsocket-resume/log"
)

// wiring states for the deferred-wiring handshake described in §4.1: a
// session must declare demand before the initial transport is attached, so
// that no inbound frame is ever dropped for lack of a consumer.
const (
	stateCreated uint32 = iota
	stateWired
)

// ResumableDuplexConnection is the Resumable Duplex Connection: a stable,
// long-lived duplex frame channel that routes outbound frames to whatever
// transport is currently active, receives inbound frames from it, and
// swaps transports transparently on reconnect.
type ResumableDuplexConnection struct {
	side  Side
	token SessionToken
	store FramesStore
	log   log15.Logger

	active          *activeConnection
	connectionIndex atomic.Uint64

	queue *outboundQueue

	receiveState atomic.Uint32
	receiveOnce  sync.Once
	sessionOut   chan Frame

	mu       sync.Mutex
	receiver *frameReceivingSubscriber

	activeClosed chan uint64
	onCloseCh    chan struct{}
	closeErr     error
	disposeOnce  sync.Once
}

// New constructs a ResumableDuplexConnection. The store must already be
// started. The initial transport is not yet wired: wiring happens when the
// session first declares demand on the stream returned by Receive.
func New(side Side, token SessionToken, initialTransport Transport, store FramesStore, logger log.Logger) *ResumableDuplexConnection {
	c := &ResumableDuplexConnection{
		side:         side,
		token:        token,
		store:        store,
		log:          toLog15(logger),
		active:       newActiveConnection(initialTransport),
		queue:        newOutboundQueue(),
		sessionOut:   make(chan Frame),
		activeClosed: make(chan uint64, 8),
		onCloseCh:    make(chan struct{}),
	}
	c.log = c.log.New("side", side, "token", token)

	saveSource := make(chan Frame)
	go c.pumpQueue(saveSource)

	errCh := c.store.SaveFrames(saveSource)
	go c.watchSaveErrors(errCh)

	return c
}

func (c *ResumableDuplexConnection) pumpQueue(out chan<- Frame) {
	defer close(out)
	for {
		frame, ok := c.queue.pop()
		if !ok {
			return
		}
		select {
		case out <- frame:
		case <-c.onCloseCh:
			// The store side of this pipe is gone (disposed mid-save); the
			// frame would otherwise never be released.
			frame.Done()
			return
		}
	}
}

func (c *ResumableDuplexConnection) watchSaveErrors(errCh <-chan error) {
	err, ok := <-errCh
	if ok && err != nil {
		c.log.Error("frame store save failed, disposing connection", "err", err)
		c.Dispose(err)
	}
}

// SendFrame enqueues frame for the active transport. Ownership of frame
// transfers to the connection. Never blocks, never fails: a frame enqueued
// after dispose is simply released.
func (c *ResumableDuplexConnection) SendFrame(streamID uint32, frame Frame) {
	c.queue.push(streamID, frame)
}

// Receive returns the session-facing inbound stream. The first call wires
// the initial transport before returning; this is the Go-idiomatic
// collapse of the two-step "subscribe, then first demand" handshake in the
// reactive original — calling Receive is itself the declaration of
// consumption intent, since nothing will be read off an unconsumed Go
// channel anyway. Subsequent calls are silently ignored: they return the
// same channel without rewiring anything.
func (c *ResumableDuplexConnection) Receive() <-chan Frame {
	c.receiveOnce.Do(func() {
		c.receiveState.Store(stateWired)
		c.attach(c.active.current(), true)
	})
	return c.sessionOut
}

// Wired reports whether the session has declared demand and the initial
// transport attachment has run.
func (c *ResumableDuplexConnection) Wired() bool {
	return c.receiveState.Load() == stateWired
}

// Connect atomically swaps the active-connection pointer to next. It
// returns false if the connection is disposed; otherwise it disposes the
// previous transport, wires a fresh receiving subscriber and replay
// subscription to next, and returns true. Before the first Receive call it
// only swaps the pointer; Receive then wires whichever transport is current.
func (c *ResumableDuplexConnection) Connect(next Transport) bool {
	prev, ok := c.active.trySwap(next)
	if !ok {
		return false
	}
	if prev != nil {
		prev.Dispose()
	}
	if c.receiveState.Load() != stateWired {
		return true
	}
	c.attach(next, false)
	return true
}

// attach wires a receiving subscriber and replay subscription to t. Per
// invariant 5, the previous subscriber (if any) is disposed before the next
// one is created.
func (c *ResumableDuplexConnection) attach(t Transport, initial bool) {
	if t == nil {
		return
	}

	idx := c.connectionIndex.Load()
	if !initial {
		idx = c.connectionIndex.Add(1)
	}

	c.store.BeginAttachment()

	c.mu.Lock()
	old := c.receiver
	c.mu.Unlock()
	if old != nil {
		old.dispose()
	}

	recv := newFrameReceivingSubscriber(t, c.store, c.sessionOut)
	c.mu.Lock()
	c.receiver = recv
	c.mu.Unlock()

	replay := c.store.ResumeStream()
	go c.pumpReplay(t, replay, idx)
	go c.watchTransportClose(t, idx, recv)
}

func (c *ResumableDuplexConnection) pumpReplay(t Transport, replay <-chan Frame, idx uint64) {
	for frame := range replay {
		t.SendFrame(frame.StreamID(), frame)
	}

	if c.active.isDisposed() {
		return
	}
	if idx != c.connectionIndex.Load() {
		// Superseded by a newer attachment; this replay subscription ending
		// is expected, not an anomaly.
		return
	}

	c.log.Error("replay stream ended unexpectedly, closing connection")
	c.SendErrorAndClose(ErrConnectionClose{Context: ConnectionCloseContext{Message: "Connection Closed Unexpectedly"}})
}

// watchTransportClose waits for the transport attached at idx to close, then
// disposes the receiving subscriber created for that same attachment. recv
// is the one created alongside t in attach, captured directly rather than
// read back off c.receiver: by the time t closes, a newer attachment may
// already have replaced c.receiver, and disposing that successor instead of
// this transport's own receiver would silently halt inbound delivery on the
// new transport.
func (c *ResumableDuplexConnection) watchTransportClose(t Transport, idx uint64, recv *frameReceivingSubscriber) {
	<-t.OnClose()

	recv.dispose()
	if idx == c.connectionIndex.Load() {
		c.store.CancelResume()
	}

	if c.active.isDisposed() {
		return
	}

	select {
	case c.activeClosed <- idx:
	case <-c.onCloseCh:
	}
}

// Disconnect disposes the current transport without changing the
// active-connection pointer's wiring state; a successor is expected via
// Connect. No-op if disposed.
func (c *ResumableDuplexConnection) Disconnect() {
	t := c.active.current()
	if t == nil {
		return
	}
	t.Dispose()
}

// SendErrorAndClose marks the connection disposed, forwards an error frame
// on the last live transport, awaits its close, and tears everything down.
// If err wraps a cause, OnClose terminates with that cause; otherwise it
// completes normally. Idempotent with Dispose: only the first of the two to
// run performs the teardown.
func (c *ResumableDuplexConnection) SendErrorAndClose(err error) {
	c.disposeOnce.Do(func() {
		prev, _ := c.active.tryDispose()
		if prev != nil {
			prev.SendErrorAndClose(err)
			<-prev.OnClose()
		}
		c.teardown(causeOf(err))
	})
}

// Dispose tears the connection down without sending an error frame.
// Idempotent.
func (c *ResumableDuplexConnection) Dispose(cause error) {
	c.disposeOnce.Do(func() {
		prev, _ := c.active.tryDispose()
		if prev != nil {
			prev.Dispose()
		}
		c.teardown(cause)
	})
}

func (c *ResumableDuplexConnection) teardown(cause error) {
	c.mu.Lock()
	recv := c.receiver
	c.mu.Unlock()
	if recv != nil {
		recv.dispose()
	}

	c.store.CancelResume()
	c.queue.close()
	c.store.Close()

	c.closeErr = cause
	close(c.onCloseCh)
	// activeClosed is deliberately never closed: watchTransportClose
	// goroutines may still be blocked sending on it, and a closed channel is
	// a ready send case in their select, which would panic. onCloseCh is the
	// authoritative completion signal; callers of OnActiveConnectionClosed
	// must select on OnClose alongside it to learn the stream is done.
}

// causeOf returns the wrapped cause of err, or nil if err does not wrap one.
func causeOf(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

// OnClose resolves when the connection is terminally closed.
func (c *ResumableDuplexConnection) OnClose() <-chan struct{} {
	return c.onCloseCh
}

// Err returns the terminal cause of OnClose, valid once OnClose is closed.
// A nil result means the connection closed normally.
func (c *ResumableDuplexConnection) Err() error {
	return c.closeErr
}

// OnActiveConnectionClosed emits the connectionIndex each time the
// currently active transport closes. It never emits errors and is never
// closed; callers must select on OnClose alongside it to learn when the
// connection has disposed and no further values will arrive.
func (c *ResumableDuplexConnection) OnActiveConnectionClosed() <-chan uint64 {
	return c.activeClosed
}

func (c *ResumableDuplexConnection) IsDisposed() bool {
	return c.active.isDisposed()
}

func (c *ResumableDuplexConnection) RemoteAddress() string {
	t := c.active.current()
	if t == nil {
		return ""
	}
	return t.RemoteAddr()
}

func (c *ResumableDuplexConnection) Alloc() Allocator {
	t := c.active.current()
	if t == nil {
		return nil
	}
	return t.Alloc()
}
