// Package tcptransport is a reference Transport implementation over a raw
// net.Conn: frames are length-prefixed on the wire (a 4-byte big-endian
// length followed by the stream-id-prefixed payload defined by frame.go).
// It exists to give the reconnect driver something real to dial; protocol
// users are free to supply their own Transport over any byte stream.
package tcptransport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"

	"golang.org/x/net/proxy"

	resume "github.com/rsocket-go/rsocket-resume"
)

const maxFrameLen = 16 * 1024 * 1024

type sliceAllocator struct{}

func (sliceAllocator) Allocate(size int) []byte { return make([]byte, size) }
func (sliceAllocator) Release([]byte)           {}

// Transport adapts a net.Conn to the resume.Transport interface: one
// goroutine pumps the wire into an inbound channel, SendFrame writes
// synchronously under a mutex and blocks for as long as the write takes.
type Transport struct {
	conn net.Conn
	addr string

	writeMu sync.Mutex

	inbound chan resume.Frame
	closeCh chan struct{}
	closeOnce sync.Once
}

// New wraps an already-established net.Conn. It starts the read pump
// immediately.
func New(conn net.Conn) *Transport {
	t := &Transport{
		conn:    conn,
		addr:    conn.RemoteAddr().String(),
		inbound: make(chan resume.Frame, 64),
		closeCh: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Dial resolves addr (optionally through a SOCKS/HTTP proxy described by
// proxyURL) and establishes a connection, wrapped in TLS when tlsConfig is
// non-nil, returning a ready Transport. A nil proxyURL dials directly.
func Dial(ctx context.Context, addr string, proxyURL *url.URL, tlsConfig *tls.Config) (*Transport, error) {
	netDialer := &net.Dialer{}

	var d interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	} = netDialer

	if proxyURL != nil {
		proxied, err := proxy.FromURL(proxyURL, netDialer)
		if err != nil {
			return nil, fmt.Errorf("tcptransport: building proxy dialer: %w", err)
		}
		ctxDialer, ok := proxied.(interface {
			DialContext(ctx context.Context, network, address string) (net.Conn, error)
		})
		if !ok {
			return nil, fmt.Errorf("tcptransport: proxy dialer does not support DialContext")
		}
		d = ctxDialer
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcptransport: dial %s: %w", addr, err)
	}

	if tlsConfig != nil {
		conn = tls.Client(conn, tlsConfig)
	}

	return New(conn), nil
}

func (t *Transport) readLoop() {
	defer close(t.inbound)
	defer t.Dispose()

	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(t.conn, lenBuf); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		if n == 0 || n > maxFrameLen {
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(t.conn, buf); err != nil {
			return
		}
		t.inbound <- resume.NewFrame(buf, nil)
	}
}

func (t *Transport) SendFrame(_ uint32, frame resume.Frame) {
	defer frame.Done()

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(frame.Len()))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(lenBuf); err != nil {
		t.Dispose()
		return
	}
	if _, err := t.conn.Write(frame.Bytes()); err != nil {
		t.Dispose()
	}
}

func (t *Transport) Receive() <-chan resume.Frame { return t.inbound }

func (t *Transport) OnClose() <-chan struct{} { return t.closeCh }

func (t *Transport) Dispose() {
	t.closeOnce.Do(func() {
		close(t.closeCh)
		t.conn.Close()
	})
}

func (t *Transport) SendErrorAndClose(_ error) {
	t.Dispose()
}

func (t *Transport) RemoteAddr() string { return t.addr }

func (t *Transport) Alloc() resume.Allocator { return sliceAllocator{} }

var _ resume.Transport = (*Transport)(nil)
