package resume

import "sync"

// fakeAllocator is a no-op Allocator for tests that don't care about buffer
// reuse.
type fakeAllocator struct{}

func (fakeAllocator) Allocate(size int) []byte { return make([]byte, size) }
func (fakeAllocator) Release([]byte)           {}

// fakeTransport is an in-memory Transport double. Frames pushed with
// deliver() appear on Receive(); frames handed to SendFrame are recorded in
// sent for assertions.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []Frame
	inbound  chan Frame
	closeCh  chan struct{}
	closed   bool
	addr     string
	errSent  error
	closeErr error
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{
		inbound: make(chan Frame, 64),
		closeCh: make(chan struct{}),
		addr:    addr,
	}
}

func (f *fakeTransport) SendFrame(_ uint32, frame Frame) {
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	f.mu.Unlock()
}

func (f *fakeTransport) Receive() <-chan Frame { return f.inbound }

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

func (f *fakeTransport) SendErrorAndClose(err error) {
	f.mu.Lock()
	f.errSent = err
	f.mu.Unlock()
	f.Dispose()
}

func (f *fakeTransport) RemoteAddr() string { return f.addr }

func (f *fakeTransport) Alloc() Allocator { return fakeAllocator{} }

// deliver pushes an inbound frame to the session side of the transport. It
// silently drops the frame if the transport has already been closed out
// from under the test.
func (f *fakeTransport) deliver(frame Frame) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		frame.Done()
		return
	}
	f.inbound <- frame
}

// sentFrames returns a snapshot of frames handed to SendFrame so far.
func (f *fakeTransport) sentFrames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Frame, len(f.sent))
	copy(out, f.sent)
	return out
}

var _ Transport = (*fakeTransport)(nil)

// fakeStore is a minimal in-memory FramesStore double used by receiver and
// connection tests that don't need the real store's retention semantics.
type fakeStore struct {
	mu       sync.Mutex
	admitAll bool
	admitted []Frame
}

func newFakeStore() *fakeStore {
	return &fakeStore{admitAll: true}
}

func (s *fakeStore) SaveFrames(source <-chan Frame) <-chan error {
	errCh := make(chan error)
	go func() {
		defer close(errCh)
		for range source {
		}
	}()
	return errCh
}

// ResumeStream returns a stream that never emits and is never closed: the
// connection treats a replay stream that ends as a fatal anomaly.
func (s *fakeStore) ResumeStream() <-chan Frame {
	return make(chan Frame)
}

func (s *fakeStore) CancelResume()   {}
func (s *fakeStore) BeginAttachment() {}

func (s *fakeStore) ResumableFrameReceived(frame Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admitAll {
		s.admitted = append(s.admitted, frame)
		return true
	}
	return false
}

func (s *fakeStore) ReleaseFrames(uint64) {}
func (s *fakeStore) Close()               {}
func (s *fakeStore) SentPosition() uint64 { return 0 }
func (s *fakeStore) LocalAck() uint64     { return 0 }
func (s *fakeStore) ImpliedPosition() uint64 { return 0 }

var _ FramesStore = (*fakeStore)(nil)

// testFrame is a Frame with an observable done count, for refcount
// assertions that don't want to route through the real buffer pool.
type testFrame struct {
	streamID uint32
	buf      []byte
	mu       sync.Mutex
	doneN    int
}

// newTestFrame builds a frame whose stream id is stored directly in a field
// rather than encoded into its bytes; buf holds only the payload.
func newTestFrame(streamID uint32, payload string) *testFrame {
	return &testFrame{streamID: streamID, buf: []byte(payload)}
}

func (f *testFrame) StreamID() uint32 { return f.streamID }
func (f *testFrame) Len() int         { return len(f.buf) }
func (f *testFrame) Bytes() []byte    { return f.buf }
func (f *testFrame) Retain() Frame    { return f }

func (f *testFrame) Done() {
	f.mu.Lock()
	f.doneN++
	f.mu.Unlock()
}

func (f *testFrame) doneCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doneN
}

var _ Frame = (*testFrame)(nil)
