package resume

import "sync"

// frameReceivingSubscriber is a short-lived adapter paired 1:1 with a single
// transport attachment. It applies the inbound de-duplication routing rule
// and forwards admitted frames to the connection's session-facing channel.
// A transport error or completion is swallowed here: it never reaches the
// session directly, since resumption's whole point is that a transport
// going away is not, by itself, a session-level failure.
type frameReceivingSubscriber struct {
	transport  Transport
	store      FramesStore
	sessionOut chan<- Frame

	disposeOnce sync.Once
	cancel      chan struct{}
	done        chan struct{}
}

func newFrameReceivingSubscriber(transport Transport, store FramesStore, sessionOut chan<- Frame) *frameReceivingSubscriber {
	r := &frameReceivingSubscriber{
		transport:  transport,
		store:      store,
		sessionOut: sessionOut,
		cancel:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *frameReceivingSubscriber) run() {
	defer close(r.done)
	in := r.transport.Receive()
	for {
		select {
		case <-r.cancel:
			return
		case frame, ok := <-in:
			if !ok {
				// Transport lost or closed: expected under resumption.
				// The connection learns about this via the transport's
				// own OnClose, not from us.
				return
			}
			r.handle(frame)
		}
	}
}

// handle applies the receive routing rule: connection frames (stream id 0)
// pass straight through; resumable frames are deduplicated by the store
// before being admitted.
func (r *frameReceivingSubscriber) handle(frame Frame) {
	if !IsResumable(frame) {
		r.forward(frame)
		return
	}
	if r.store.ResumableFrameReceived(frame) {
		r.forward(frame)
	} else {
		frame.Done()
	}
}

func (r *frameReceivingSubscriber) forward(frame Frame) {
	select {
	case r.sessionOut <- frame:
	case <-r.cancel:
		frame.Done()
	}
}

// dispose cancels the upstream read loop and latches cancelled. Idempotent.
func (r *frameReceivingSubscriber) dispose() {
	r.disposeOnce.Do(func() {
		close(r.cancel)
	})
	<-r.done
}
