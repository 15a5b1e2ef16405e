package store

import (
	"sync"

	resume "github.com/rsocket-go/rsocket-resume"
)

// capacityGate is a blocking bounded counter: Reserve blocks until enough
// capacity is available (or the gate is errored), and Release returns
// capacity to the pool. It is the backpressure primitive saveFrames uses to
// make slow ack'ing peers push back on the frame producer instead of
// growing the retained log without bound.
type capacityGate struct {
	mu        sync.Mutex
	cond      sync.Cond
	available int64
	capacity  int64
	err       error
}

func newCapacityGate(capacity int64) *capacityGate {
	g := &capacityGate{available: capacity, capacity: capacity}
	g.cond.L = &g.mu
	return g
}

// reserve blocks until n bytes of capacity are available, then consumes
// them. It returns immediately with an error if n exceeds the gate's total
// capacity (no amount of draining will ever satisfy the request) or if the
// gate has been errored.
func (g *capacityGate) reserve(n int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n > g.capacity {
		return resume.ErrStoreOverflow{Context: resume.StoreOverflowContext{
			Requested: int(n),
			Capacity:  int(g.capacity),
		}}
	}

	for {
		if g.err != nil {
			return g.err
		}
		if g.available >= n {
			g.available -= n
			return nil
		}
		g.cond.Wait()
	}
}

// release returns n bytes of capacity to the pool, waking any reserve
// callers that might now be satisfiable.
func (g *capacityGate) release(n int64) {
	g.mu.Lock()
	g.available += n
	g.cond.Broadcast()
	g.mu.Unlock()
}

// setError permanently fails the gate; all blocked and future reserve calls
// return err.
func (g *capacityGate) setError(err error) {
	g.mu.Lock()
	if g.err == nil {
		g.err = err
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}
