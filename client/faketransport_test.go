package client

import (
	"sync"

	resume "github.com/rsocket-go/rsocket-resume"
)

type fakeAllocator struct{}

func (fakeAllocator) Allocate(size int) []byte { return make([]byte, size) }
func (fakeAllocator) Release([]byte)           {}

type fakeTransport struct {
	mu      sync.Mutex
	inbound chan resume.Frame
	closeCh chan struct{}
	closed  bool
	addr    string
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{inbound: make(chan resume.Frame, 16), closeCh: make(chan struct{}), addr: addr}
}

func (f *fakeTransport) SendFrame(uint32, resume.Frame) {}

func (f *fakeTransport) Receive() <-chan resume.Frame { return f.inbound }

func (f *fakeTransport) OnClose() <-chan struct{} { return f.closeCh }

func (f *fakeTransport) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.closeCh)
	close(f.inbound)
}

func (f *fakeTransport) SendErrorAndClose(error) { f.Dispose() }
func (f *fakeTransport) RemoteAddr() string      { return f.addr }
func (f *fakeTransport) Alloc() resume.Allocator { return fakeAllocator{} }

func (f *fakeTransport) deliver(frame resume.Frame) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		frame.Done()
		return
	}
	f.inbound <- frame
}

var _ resume.Transport = (*fakeTransport)(nil)

type fakeStore struct{ admitAll bool }

func newFakeStore() *fakeStore { return &fakeStore{admitAll: true} }

func (s *fakeStore) SaveFrames(source <-chan resume.Frame) <-chan error {
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
func (s *fakeStore) ResumeStream() <-chan resume.Frame {
	return make(chan resume.Frame)
}

func (s *fakeStore) CancelResume()   {}
func (s *fakeStore) BeginAttachment() {}

func (s *fakeStore) ResumableFrameReceived(resume.Frame) bool { return s.admitAll }

func (s *fakeStore) ReleaseFrames(uint64)      {}
func (s *fakeStore) Close()                    {}
func (s *fakeStore) SentPosition() uint64      { return 0 }
func (s *fakeStore) LocalAck() uint64          { return 0 }
func (s *fakeStore) ImpliedPosition() uint64   { return 0 }

var _ resume.FramesStore = (*fakeStore)(nil)
