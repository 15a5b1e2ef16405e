package client

import (
	"context"
	"crypto/tls"
	"net/url"

	resume "github.com/rsocket-go/rsocket-resume"
	"github.com/rsocket-go/rsocket-resume/internal/tcptransport"
	"github.com/rsocket-go/rsocket-resume/reconnect"
)

// TCPDialer builds a reconnect.Dialer that connects to addr over TCP (TLS if
// tlsConfig is non-nil), optionally through the SOCKS/HTTP proxy described
// by proxyURL. It is the Dialer DialConfig.WithDialer expects for the
// common case of a single fixed upstream address; callers that need
// address rotation or custom transports supply their own.
func TCPDialer(addr string, proxyURL *url.URL, tlsConfig *tls.Config) reconnect.Dialer {
	return func(ctx context.Context, _ uint64) (resume.Transport, error) {
		return tcptransport.Dial(ctx, addr, proxyURL, tlsConfig)
	}
}
