// Package client wires a ResumableDuplexConnection together with a
// reconnect driver behind a single fluent Dial call, bundling transport
// setup and reconnect-driver startup the way a ConnectConfig/Connect pair
// bundles session setup in session-oriented client libraries.
package client

import (
	"context"
	"fmt"

	resume "github.com/rsocket-go/rsocket-resume"
	"github.com/rsocket-go/rsocket-resume/log"
	"github.com/rsocket-go/rsocket-resume/reconnect"
	"github.com/rsocket-go/rsocket-resume/store"
)

// DialConfig is the fluent builder for Dial.
type DialConfig struct {
	side   resume.Side
	token  resume.SessionToken
	dialer reconnect.Dialer
	store  resume.FramesStore
	config *resume.Config
	logger log.Logger
}

// DialOptions begins a DialConfig with no dialer or store configured. Before
// calling Dial, a dialer must be supplied via WithDialer, and either a store
// via WithStore or a sizing config via WithConfig.
func DialOptions() *DialConfig {
	return &DialConfig{side: resume.SideClient}
}

func (cfg *DialConfig) WithSide(side resume.Side) *DialConfig {
	cfg.side = side
	return cfg
}

func (cfg *DialConfig) WithToken(token resume.SessionToken) *DialConfig {
	cfg.token = token
	return cfg
}

// WithDialer supplies the function used to obtain both the initial
// transport and every reconnect attempt thereafter.
func (cfg *DialConfig) WithDialer(dialer reconnect.Dialer) *DialConfig {
	cfg.dialer = dialer
	return cfg
}

func (cfg *DialConfig) WithStore(store resume.FramesStore) *DialConfig {
	cfg.store = store
	return cfg
}

// WithConfig supplies the sizing configuration Dial uses to build the
// frames store when no explicit store is given via WithStore: the store's
// retention bound comes from cfg.Resume.BufferSizeBytes. Ignored if
// WithStore is also used, since an explicit store always wins.
func (cfg *DialConfig) WithConfig(c *resume.Config) *DialConfig {
	cfg.config = c
	return cfg
}

func (cfg *DialConfig) WithLogger(logger log.Logger) *DialConfig {
	cfg.logger = logger
	return cfg
}

// Session is a ResumableDuplexConnection together with the reconnect driver
// keeping it alive, bundled behind Close for callers that don't need to
// manage the two separately.
type Session struct {
	*resume.ResumableDuplexConnection
	driver *reconnect.Driver
	cancel context.CancelFunc
}

// Dial establishes the initial transport via cfg's dialer, constructs a
// ResumableDuplexConnection over it, and starts a reconnect driver that
// keeps re-dialing with backoff for the life of the session.
func Dial(ctx context.Context, cfg *DialConfig) (*Session, error) {
	if cfg.dialer == nil {
		return nil, fmt.Errorf("client: DialConfig requires WithDialer")
	}
	if cfg.store == nil {
		if cfg.config == nil {
			return nil, fmt.Errorf("client: DialConfig requires WithStore or WithConfig")
		}
		if err := cfg.config.Validate(); err != nil {
			return nil, fmt.Errorf("client: invalid resume config: %w", err)
		}
		cfg.store = store.New(cfg.config.Resume.BufferSizeBytes)
	}

	initial, err := cfg.dialer(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("client: initial dial failed: %w", err)
	}

	conn := resume.New(cfg.side, cfg.token, initial, cfg.store, cfg.logger)
	driver := reconnect.New(conn, cfg.dialer, cfg.logger)

	driverCtx, cancel := context.WithCancel(context.Background())
	go driver.Run(driverCtx)

	s := &Session{
		ResumableDuplexConnection: conn,
		driver:                    driver,
		cancel:                    cancel,
	}
	go s.drainDriverState()
	return s, nil
}

// drainDriverState keeps the reconnect driver's state-change channel
// serviced so it never blocks; callers that care about reconnect state
// should watch OnActiveConnectionClosed on the embedded connection instead.
func (s *Session) drainDriverState() {
	for range s.driver.StateChanges() {
	}
}

// Close stops the reconnect driver and disposes the underlying connection.
func (s *Session) Close() error {
	s.cancel()
	s.Dispose(nil)
	return s.Err()
}
