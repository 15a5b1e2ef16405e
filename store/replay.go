package store

import (
	"io"
	"sync"

	resume "github.com/rsocket-go/rsocket-resume"
)

// replaySub is the blocking queue behind a single ResumeStream
// subscription. It plays the same role the inbound cond-based buffer plays
// for a stream transport: producers (save, or the historical seed in
// ResumeStream) push without blocking, and the one consumer goroutine
// blocks on the condition variable until a frame is queued or the
// subscription ends.
type replaySub struct {
	mu     sync.Mutex
	cond   sync.Cond
	queue  []resume.Frame
	closed bool
	err    error
}

func newReplaySub() *replaySub {
	s := &replaySub{}
	s.cond.L = &s.mu
	return s
}

func (s *replaySub) push(f resume.Frame) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		f.Done()
		return
	}
	s.queue = append(s.queue, f)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// next blocks until a frame is available or the subscription has ended. It
// returns io.EOF when cancelled with no error set.
func (s *replaySub) next() (resume.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if len(s.queue) > 0 {
			f := s.queue[0]
			s.queue = s.queue[1:]
			return f, nil
		}
		if s.closed {
			if s.err != nil {
				return nil, s.err
			}
			return nil, io.EOF
		}
		s.cond.Wait()
	}
}

// cancel disposes the subscription: queued frames are released and further
// pushes are dropped (with an immediate Done()) rather than queued.
func (s *replaySub) cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	queued := s.queue
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, f := range queued {
		f.Done()
	}
}
