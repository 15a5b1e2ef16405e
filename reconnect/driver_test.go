package reconnect

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	resume "github.com/rsocket-go/rsocket-resume"
	"github.com/rsocket-go/rsocket-resume/internal/testutil"
)

func newTestSession(t *testing.T, initial resume.Transport) *resume.ResumableDuplexConnection {
	t.Helper()
	store := newNoopStore()
	conn := resume.New(resume.SideClient, resume.SessionToken("tok"), initial, store, nil)
	t.Cleanup(func() { conn.Dispose(nil) })
	return conn
}

func TestDriverReconnectsAfterActiveTransportCloses(t *testing.T) {
	first := newNoopTransport("leg-1")
	conn := newTestSession(t, first)
	conn.Receive()

	var legs int32
	dialed := testutil.NewSyncPoint()
	dialer := Dialer(func(ctx context.Context, leg uint64) (resume.Transport, error) {
		atomic.AddInt32(&legs, 1)
		dialed.Signal()
		return newNoopTransport("leg-next"), nil
	})

	d := New(conn, dialer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	go func() {
		for range d.StateChanges() {
		}
	}()

	first.Dispose()
	dialed.Wait(t)

	require.GreaterOrEqual(t, atomic.LoadInt32(&legs), int32(1))
}

func TestDriverStopsWhenConnectionDisposes(t *testing.T) {
	first := newNoopTransport("leg-1")
	conn := newTestSession(t, first)

	dialer := Dialer(func(ctx context.Context, leg uint64) (resume.Transport, error) {
		return newNoopTransport("leg-next"), nil
	})
	d := New(conn, dialer, nil)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	go func() {
		for range d.StateChanges() {
		}
	}()

	conn.Dispose(nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop once the connection disposed")
	}
}
