// Package store provides the durable, bounded, append-only log of
// outbound resumable frames that a resumable connection replays across
// transport swaps.
package store

import (
	"sync"

	resume "github.com/rsocket-go/rsocket-resume"
)

type entry struct {
	offset uint64
	frame  resume.Frame
}

// Store is the default FramesStore implementation. It keeps every retained
// resumable frame in a plain slice ordered by append (the retention window
// is small relative to memory in the intended use, so a slice with
// front-trimming on release beats the bookkeeping of a true ring buffer)
// and uses a cond-based replay queue, the same wait/broadcast shape as a
// blocking buffered pipe, to hand frames to whichever transport is
// currently attached.
type Store struct {
	mu       sync.Mutex
	capacity *capacityGate

	entries      []entry
	sentPosition uint64
	localAck     uint64

	impliedPosition uint64
	skipRemaining   uint64

	live *replaySub

	closed bool
}

// New returns a Store bounding its retained, not-yet-acknowledged frame
// bytes to capacityBytes. A reserve that can never be satisfied (a single
// frame larger than capacityBytes) fails immediately rather than blocking
// forever.
func New(capacityBytes int64) *Store {
	return &Store{capacity: newCapacityGate(capacityBytes)}
}

func (s *Store) SaveFrames(source <-chan resume.Frame) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for frame := range source {
			if err := s.save(frame); err != nil {
				errCh <- err
				return
			}
		}
	}()
	return errCh
}

func (s *Store) save(frame resume.Frame) error {
	if !resume.IsResumable(frame) {
		s.mu.Lock()
		live := s.live
		s.mu.Unlock()
		if live == nil {
			frame.Done()
			return nil
		}
		live.push(frame)
		return nil
	}

	n := int64(frame.Len())
	if err := s.capacity.reserve(n); err != nil {
		frame.Done()
		return err
	}

	s.mu.Lock()
	offset := s.sentPosition
	s.entries = append(s.entries, entry{offset: offset, frame: frame})
	s.sentPosition += uint64(frame.Len())
	live := s.live
	s.mu.Unlock()

	if live != nil {
		live.push(frame.Retain())
	}
	return nil
}

func (s *Store) ResumeStream() <-chan resume.Frame {
	s.mu.Lock()
	old := s.live
	sub := newReplaySub()
	for _, e := range s.entries {
		sub.push(e.frame.Retain())
	}
	s.live = sub
	s.mu.Unlock()

	if old != nil {
		old.cancel()
	}

	out := make(chan resume.Frame)
	go func() {
		defer close(out)
		for {
			frame, err := sub.next()
			if err != nil {
				return
			}
			out <- frame
		}
	}()
	return out
}

func (s *Store) CancelResume() {
	s.mu.Lock()
	sub := s.live
	s.live = nil
	s.mu.Unlock()
	if sub != nil {
		sub.cancel()
	}
}

func (s *Store) BeginAttachment() {
	s.mu.Lock()
	s.skipRemaining = s.impliedPosition
	s.mu.Unlock()
}

func (s *Store) ResumableFrameReceived(frame resume.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := uint64(frame.Len())
	if s.skipRemaining > 0 {
		if n <= s.skipRemaining {
			s.skipRemaining -= n
			return false
		}
		s.skipRemaining = 0
	}
	s.impliedPosition += n
	return true
}

func (s *Store) ReleaseFrames(remotePosition uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if remotePosition <= s.localAck {
		return
	}
	s.localAck = remotePosition

	var freed int64
	i := 0
	for ; i < len(s.entries); i++ {
		e := s.entries[i]
		end := e.offset + uint64(e.frame.Len())
		if end > remotePosition {
			break
		}
		freed += int64(e.frame.Len())
		e.frame.Done()
	}
	s.entries = s.entries[i:]

	if freed > 0 {
		s.capacity.release(freed)
	}
}

func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.live
	s.live = nil
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	if sub != nil {
		sub.cancel()
	}
	for _, e := range entries {
		e.frame.Done()
	}
	s.capacity.setError(errClosed{})
}

func (s *Store) SentPosition() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentPosition
}

func (s *Store) LocalAck() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localAck
}

func (s *Store) ImpliedPosition() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.impliedPosition
}

type errClosed struct{}

func (errClosed) Error() string { return "resumable frame store closed" }
