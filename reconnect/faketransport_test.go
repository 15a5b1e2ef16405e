package reconnect

import (
	"sync"

	resume "github.com/rsocket-go/rsocket-resume"
)

type noopAllocator struct{}

func (noopAllocator) Allocate(size int) []byte { return make([]byte, size) }
func (noopAllocator) Release([]byte)           {}

// noopTransport is a bare-bones resume.Transport double: enough for the
// driver to dial, attach, and watch close on, without any frame traffic.
type noopTransport struct {
	mu      sync.Mutex
	closeCh chan struct{}
	closed  bool
	addr    string
}

func newNoopTransport(addr string) *noopTransport {
	return &noopTransport{closeCh: make(chan struct{}), addr: addr}
}

func (n *noopTransport) SendFrame(uint32, resume.Frame) {}

func (n *noopTransport) Receive() <-chan resume.Frame {
	ch := make(chan resume.Frame)
	return ch
}

func (n *noopTransport) OnClose() <-chan struct{} { return n.closeCh }

func (n *noopTransport) Dispose() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.closeCh)
}

func (n *noopTransport) SendErrorAndClose(error) { n.Dispose() }
func (n *noopTransport) RemoteAddr() string      { return n.addr }
func (n *noopTransport) Alloc() resume.Allocator { return noopAllocator{} }

var _ resume.Transport = (*noopTransport)(nil)

// noopStore is a FramesStore double that never retains or replays anything;
// sufficient for driver tests that don't exercise resumption itself.
type noopStore struct{}

func newNoopStore() *noopStore { return &noopStore{} }

func (noopStore) SaveFrames(source <-chan resume.Frame) <-chan error {
	errCh := make(chan error)
	go func() {
		defer close(errCh)
		for range source {
		}
	}()
	return errCh
}

// ResumeStream never emits and is never closed: the connection treats a
// replay stream that ends as a fatal anomaly.
func (noopStore) ResumeStream() <-chan resume.Frame {
	return make(chan resume.Frame)
}

func (noopStore) CancelResume()                          {}
func (noopStore) BeginAttachment()                        {}
func (noopStore) ResumableFrameReceived(resume.Frame) bool { return true }
func (noopStore) ReleaseFrames(uint64)                    {}
func (noopStore) Close()                                  {}
func (noopStore) SentPosition() uint64                    { return 0 }
func (noopStore) LocalAck() uint64                        { return 0 }
func (noopStore) ImpliedPosition() uint64                 { return 0 }

var _ resume.FramesStore = (*noopStore)(nil)
