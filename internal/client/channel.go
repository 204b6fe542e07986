package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/worldsync/internal/domain"
	"github.com/pscheid92/worldsync/internal/platform/retry"
	"github.com/pscheid92/worldsync/internal/protocol"
)

const closeGracePeriod = time.Second

// ErrStopWatch can be returned by a watch handler to end Watch cleanly.
var ErrStopWatch = errors.New("stop watching")

// Message is one mutation received on the channel.
type Message struct {
	Entity     string
	Properties domain.Properties
	Raw        []byte
}

// DialError is a failed WebSocket handshake.
type DialError struct {
	StatusCode int
	Err        error
}

func (e *DialError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("dial subscribe: %v", e.Err)
	}
	return fmt.Sprintf("dial subscribe: status %d: %v", e.StatusCode, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Send delivers one packet {entity: props} over a short-lived channel
// session. The server applies it and echoes it to every subscriber.
func (c *Client) Send(ctx context.Context, entity string, props domain.Properties) error {
	packet, err := protocol.EncodeEntity(entity, props)
	if err != nil {
		return err
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, packet); err != nil {
		return fmt.Errorf("send packet: %w", err)
	}

	deadline := time.Now().Add(closeGracePeriod)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}
	return nil
}

// Watch streams every message from the channel to handle until ctx is done
// or handle returns an error. ErrStopWatch ends Watch without error. When the
// connection drops, Watch reconnects using the client's retry policy; each
// reconnect replays the seed, so handle sees the full current world again.
func (c *Client) Watch(ctx context.Context, handle func(Message) error) error {
	for {
		conn, err := retry.Do(ctx, c.retry, classifyDialError, c.dial)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("connect: %w", err)
		}

		err = c.readAll(ctx, conn, handle)
		switch {
		case errors.Is(err, ErrStopWatch):
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errTransport):
			slog.WarnContext(ctx, "Channel lost, reconnecting", "error", err)
		default:
			return err
		}
	}
}

var errTransport = errors.New("transport failure")

func (c *Client) readAll(ctx context.Context, conn *websocket.Conn, handle func(Message) error) error {
	stop := context.AfterFunc(ctx, func() {
		deadline := time.Now().Add(closeGracePeriod)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	})
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", errTransport, err)
		}

		msg := Message{Raw: data}
		if packet, err := c.parser.Parse(data); err == nil {
			msg.Entity = packet.Entity
			msg.Properties = packet.Properties
		}
		if err := handle(msg); err != nil {
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/subscribe"

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		dialErr := &DialError{Err: err}
		if resp != nil {
			dialErr.StatusCode = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, dialErr
	}
	return conn, nil
}

// classifyDialError retries network failures, backs off longer when the
// server sheds load, and gives up on other refusals.
func classifyDialError(err error) retry.Action {
	var dialErr *DialError
	if !errors.As(err, &dialErr) {
		return retry.Retry
	}
	switch {
	case dialErr.StatusCode == 0:
		return retry.Retry
	case dialErr.StatusCode == http.StatusTooManyRequests, dialErr.StatusCode == http.StatusServiceUnavailable:
		return retry.After
	case dialErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}
