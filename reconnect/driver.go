// Package reconnect is the external reconnect driver the resumption
// contract assumes but does not implement itself: it watches a
// ResumableDuplexConnection's OnActiveConnectionClosed stream and attaches
// a freshly dialed transport with exponential backoff whenever the active
// one is lost.
package reconnect

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/jpillora/backoff"

	resume "github.com/rsocket-go/rsocket-resume"
	"github.com/rsocket-go/rsocket-resume/log"
)

// ErrPermanentlyFailed is published on StateChanges and then the channel is
// closed when the driver gives up for good (the connection disposed or ctx
// was cancelled).
var ErrPermanentlyFailed = errors.New("reconnect driver stopped: connection disposed")

// Dialer produces a new Transport for the given attachment. legNumber is 0
// for the initial dial made by client.Dial and counts the Driver's dial
// attempts from 1, so implementations can use it for logging or to pick
// among several upstream addresses.
type Dialer func(ctx context.Context, legNumber uint64) (resume.Transport, error)

// Driver re-establishes a ResumableDuplexConnection's transport across
// temporary network failures, using jpillora/backoff between attempts.
//
// Whenever the connection suffers a temporary failure, the encountered
// error is published over StateChanges. If a connection is established,
// nil is published. If the driver gives up permanently, StateChanges is
// closed after ErrPermanentlyFailed is published.
//
// If StateChanges is not serviced by the caller, the driver will hang.
type Driver struct {
	conn  *resume.ResumableDuplexConnection
	dial  Dialer
	log   log15.Logger
	boff  *backoff.Backoff
	legNo uint64

	stateChanges  chan error
	permanentOnce atomic.Bool
}

// New constructs a Driver. Call Run to start watching for disconnects.
func New(conn *resume.ResumableDuplexConnection, dial Dialer, logger log.Logger) *Driver {
	return &Driver{
		conn: conn,
		dial: dial,
		log:  toLog15(logger),
		boff: &backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    30 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		stateChanges: make(chan error),
	}
}

// StateChanges returns the channel Run publishes connection-state
// transitions on.
func (d *Driver) StateChanges() <-chan error {
	return d.stateChanges
}

// Run blocks, watching the connection's active-transport-closed stream and
// reconnecting until ctx is cancelled or the connection disposes. It is
// meant to be run in its own goroutine.
func (d *Driver) Run(ctx context.Context) {
	defer d.failPermanent(ErrPermanentlyFailed)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.conn.OnClose():
			return
		case _, ok := <-d.conn.OnActiveConnectionClosed():
			if !ok {
				return
			}
			if !d.reconnect(ctx) {
				return
			}
		}
	}
}

// reconnect dials and attaches a new transport, retrying with backoff until
// it succeeds, ctx is cancelled, or the connection disposes.
func (d *Driver) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if d.conn.IsDisposed() {
			return false
		}

		leg := atomic.AddUint64(&d.legNo, 1)
		transport, err := d.dial(ctx, leg)
		if err != nil {
			d.failTemp(err)
			continue
		}

		if !d.conn.Connect(transport) {
			// The connection disposed between our check above and Connect.
			transport.Dispose()
			return false
		}

		d.boff.Reset()
		d.log.Info("reconnected", "leg", leg)
		d.publish(nil)
		return true
	}
}

func (d *Driver) failTemp(err error) {
	d.log.Error("failed to reconnect", "err", err)
	d.publish(err)
	wait := d.boff.Duration()
	d.log.Debug("sleeping before reconnect attempt", "wait", wait)
	time.Sleep(wait)
}

func (d *Driver) failPermanent(err error) {
	if d.permanentOnce.CompareAndSwap(false, true) {
		d.publish(err)
		close(d.stateChanges)
	}
}

func (d *Driver) publish(err error) {
	select {
	case d.stateChanges <- err:
	case <-d.conn.OnClose():
	}
}
