package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/worldsync/internal/adapter/metrics"
	"github.com/pscheid92/worldsync/internal/broadcast"
	"github.com/pscheid92/worldsync/internal/domain"
	"github.com/pscheid92/worldsync/internal/platform/correlation"
	"github.com/pscheid92/worldsync/internal/protocol"
	"golang.org/x/sync/errgroup"
)

// ShutdownReason is sent in the close frame when the server closes the mailbox.
const ShutdownReason = "server shutting down"

// Conn is the subset of *websocket.Conn a session drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Broadcaster admits and removes subscribers and fans packets out.
type Broadcaster interface {
	domain.Publisher
	Subscribe(source domain.Snapshotter) (*broadcast.Subscriber, error)
	Unregister(sub *broadcast.Subscriber) bool
}

// Config holds the keep-alive and framing limits of a session.
type Config struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxMessageBytes: 64 * 1024,
	}
}

// Session is one peer's channel. Create with New and drive with Run.
type Session struct {
	conn        Conn
	store       domain.EntityStore
	broadcaster Broadcaster
	parser      *protocol.Parser
	clock       clockwork.Clock
	config      Config
	metrics     *metrics.WebSocketMetrics

	// mu guards the fields set on admission against a concurrent Close.
	mu         sync.Mutex
	subscriber *broadcast.Subscriber
	logger     *slog.Logger
	startedAt  time.Time

	state        atomic.Int32
	teardownOnce sync.Once
}

// New creates a session for an upgraded connection. m may be nil.
func New(conn Conn, store domain.EntityStore, broadcaster Broadcaster, parser *protocol.Parser, config Config, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Session {
	return &Session{
		conn:        conn,
		store:       store,
		broadcaster: broadcaster,
		parser:      parser,
		clock:       clock,
		config:      config,
		metrics:     m,
		logger:      slog.Default(),
	}
}

// State reports where the session is in its lifecycle.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run admits the session's subscriber, then blocks until the session ends.
// Transport failures end the session and are not returned; only a failed
// admission is.
func (s *Session) Run(ctx context.Context) error {
	sub, err := s.broadcaster.Subscribe(s.store)
	if err != nil {
		s.writeClose(websocket.CloseTryAgainLater, ShutdownReason)
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("admit subscriber: %w", err)
	}

	s.mu.Lock()
	if s.State() == StateClosed {
		s.mu.Unlock()
		s.broadcaster.Unregister(sub)
		sub.Close()
		return nil
	}
	s.subscriber = sub
	s.startedAt = s.clock.Now()
	s.logger = slog.Default().With("subscriber_id", sub.ID().String())
	s.mu.Unlock()

	ctx, _ = correlation.Ensure(ctx)
	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
	}
	s.logger.InfoContext(ctx, "Session opened", "seeded", sub.Len())
	defer s.teardown(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.readLoop(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return s.writeLoop(ctx)
	})
	g.Go(func() error {
		return s.pingLoop(ctx)
	})
	g.Go(func() error {
		// ReadMessage does not observe ctx; closing the conn unblocks it.
		<-ctx.Done()
		_ = s.conn.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.DebugContext(ctx, "Session ended with transport error", "error", err)
	}
	return nil
}

// Close tears the session down from outside. Safe to call concurrently with
// Run and more than once.
func (s *Session) Close() {
	s.teardown(context.Background())
}

func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(s.config.MaxMessageBytes)
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.drain()
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		s.extendReadDeadline()

		if len(data) == 0 {
			s.logger.DebugContext(ctx, "Peer sent empty message, draining")
			s.drain()
			return nil
		}
		s.apply(ctx, data)
	}
}

// apply merges a packet into the world and republishes the original bytes.
// Malformed packets are dropped; the session stays open.
func (s *Session) apply(ctx context.Context, data []byte) {
	packet, err := s.parser.Parse(data)
	if err != nil {
		if s.metrics != nil {
			s.metrics.MalformedPackets.Inc()
		}
		s.logger.DebugContext(ctx, "Dropped malformed packet", "error", err, "bytes", len(data))
		return
	}

	s.store.Merge(packet.Entity, packet.Properties)
	s.broadcaster.Publish(packet.Raw)

	if s.metrics != nil {
		s.metrics.PacketsReceived.Inc()
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		message, err := s.subscriber.Next(ctx)
		if errors.Is(err, broadcast.ErrSubscriberClosed) {
			if s.State() == StateOpen {
				s.writeClose(websocket.CloseGoingAway, ShutdownReason)
			}
			return nil
		}
		if err != nil {
			return nil
		}

		s.extendWriteDeadline()
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			deadline := s.clock.Now().Add(s.config.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (s *Session) teardown(ctx context.Context) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateClosed))
		sub, logger, startedAt := s.subscriber, s.logger, s.startedAt
		s.mu.Unlock()

		if sub == nil {
			_ = s.conn.Close()
			return
		}

		s.broadcaster.Unregister(sub)
		sub.Close()
		_ = s.conn.Close()

		duration := s.clock.Since(startedAt)
		if s.metrics != nil {
			s.metrics.ActiveConnections.Dec()
			s.metrics.SessionDuration.Observe(duration.Seconds())
		}
		logger.InfoContext(ctx, "Session closed", "duration", duration)
	})
}

func (s *Session) drain() {
	s.state.CompareAndSwap(int32(StateOpen), int32(StateDraining))
}

func (s *Session) writeClose(code int, reason string) {
	deadline := s.clock.Now().Add(s.config.WriteTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

func (s *Session) extendReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(s.config.PongTimeout))
}

func (s *Session) extendWriteDeadline() {
	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(s.config.WriteTimeout))
}
