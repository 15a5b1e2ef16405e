package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	resume "github.com/rsocket-go/rsocket-resume"
)

// fakeFrame is a minimal resume.Frame double recording Done calls.
type fakeFrame struct {
	streamID uint32
	n        int
	mu       sync.Mutex
	doneN    int
}

func newFakeFrame(streamID uint32, n int) *fakeFrame {
	return &fakeFrame{streamID: streamID, n: n}
}

func (f *fakeFrame) StreamID() uint32 { return f.streamID }
func (f *fakeFrame) Len() int         { return f.n }
func (f *fakeFrame) Bytes() []byte    { return make([]byte, f.n) }
func (f *fakeFrame) Retain() resume.Frame {
	return f
}
func (f *fakeFrame) Done() {
	f.mu.Lock()
	f.doneN++
	f.mu.Unlock()
}

func drain(t *testing.T, ch <-chan resume.Frame, n int, timeout time.Duration) []resume.Frame {
	t.Helper()
	got := make([]resume.Frame, 0, n)
	for i := 0; i < n; i++ {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d frames", i, n)
			}
			got = append(got, f)
		case <-time.After(timeout):
			t.Fatalf("timed out waiting for frame %d/%d", i+1, n)
		}
	}
	return got
}

func TestSaveAndReleaseFrames(t *testing.T) {
	s := New(1024)

	src := make(chan resume.Frame)
	errCh := s.SaveFrames(src)

	f1 := newFakeFrame(1, 10)
	f2 := newFakeFrame(1, 20)
	src <- f1
	src <- f2
	close(src)

	select {
	case err, ok := <-errCh:
		require.False(t, ok && err != nil)
	case <-time.After(time.Second):
		t.Fatal("save loop did not exit")
	}

	require.Equal(t, uint64(30), s.SentPosition())

	s.ReleaseFrames(10)
	require.Equal(t, 1, f1.doneN)
	require.Equal(t, 0, f2.doneN)

	s.ReleaseFrames(30)
	require.Equal(t, 1, f2.doneN)
}

func TestResumeStreamReplaysRetainedEntries(t *testing.T) {
	s := New(1024)
	src := make(chan resume.Frame)
	s.SaveFrames(src)

	f1 := newFakeFrame(1, 5)
	src <- f1
	close(src)
	time.Sleep(10 * time.Millisecond)

	replay := s.ResumeStream()
	got := drain(t, replay, 1, time.Second)
	require.Equal(t, uint32(1), got[0].StreamID())
}

func TestBeginAttachmentSkipsRedeliveredBytes(t *testing.T) {
	s := New(1024)
	require.True(t, s.ResumableFrameReceived(newFakeFrame(1, 20)))

	require.Equal(t, uint64(20), s.ImpliedPosition())

	// Simulate a reconnect: the peer is allowed to redeliver the 20 bytes
	// already counted in impliedPosition exactly once.
	s.BeginAttachment()

	dup := newFakeFrame(1, 20)
	require.False(t, s.ResumableFrameReceived(dup))
	require.Equal(t, uint64(20), s.ImpliedPosition())

	fresh := newFakeFrame(1, 5)
	require.True(t, s.ResumableFrameReceived(fresh))
	require.Equal(t, uint64(25), s.ImpliedPosition())
}

func TestConnectionFramesBypassRetentionAndSkipStore(t *testing.T) {
	s := New(1024)
	src := make(chan resume.Frame)
	s.SaveFrames(src)

	f := newFakeFrame(0, 5)
	src <- f
	close(src)
	time.Sleep(10 * time.Millisecond)

	require.Equal(t, uint64(0), s.SentPosition())
	require.Equal(t, 1, f.doneN) // no live subscriber, so it's released immediately
}

func TestReserveFailsFastWhenFrameExceedsCapacity(t *testing.T) {
	s := New(10)
	src := make(chan resume.Frame)
	errCh := s.SaveFrames(src)

	big := newFakeFrame(1, 20)
	src <- big

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.ErrorAs(t, err, &resume.ErrStoreOverflow{})
	case <-time.After(time.Second):
		t.Fatal("expected oversized reserve to fail immediately")
	}
	require.Equal(t, 1, big.doneN)
}

func TestCloseReleasesRetainedEntriesAndErrorsReserve(t *testing.T) {
	s := New(1024)
	src := make(chan resume.Frame)
	s.SaveFrames(src)

	f := newFakeFrame(1, 5)
	src <- f
	time.Sleep(10 * time.Millisecond)

	s.Close()
	require.Equal(t, 1, f.doneN)

	blocked := newFakeFrame(1, 5)
	src2 := make(chan resume.Frame, 1)
	src2 <- blocked
	close(src2)
	errCh := s.SaveFrames(src2)
	err := <-errCh
	require.Error(t, err)
}
