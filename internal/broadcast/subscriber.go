package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSubscriberClosed is returned by Next once the mailbox has been closed.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Subscriber is a per-connection mailbox of outbound messages.
type Subscriber struct {
	id uuid.UUID

	mu     sync.Mutex
	queue  [][]byte
	closed bool

	wakeChannel chan struct{}
	doneChannel chan struct{}
	closeOnce   sync.Once
}

// NewSubscriber creates a mailbox pre-loaded with the given seed messages.
func NewSubscriber(seed [][]byte) *Subscriber {
	queue := make([][]byte, 0, len(seed))
	queue = append(queue, seed...)
	return &Subscriber{
		id:          uuid.New(),
		queue:       queue,
		wakeChannel: make(chan struct{}, 1),
		doneChannel: make(chan struct{}),
	}
}

// ID returns the subscriber's identity.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Put enqueues message without blocking and returns the resulting mailbox
// depth. Messages put after Close are discarded and 0 is returned.
func (s *Subscriber) Put(message []byte) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.queue = append(s.queue, message)
	depth := len(s.queue)
	s.mu.Unlock()

	select {
	case s.wakeChannel <- struct{}{}:
	default:
	}
	return depth
}

// Next blocks until a message is available, the mailbox is closed, or ctx
// is done. Pending messages are not flushed after Close.
func (s *Subscriber) Next(ctx context.Context) ([]byte, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrSubscriberClosed
		}
		if len(s.queue) > 0 {
			message := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return message, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wakeChannel:
		case <-s.doneChannel:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of pending messages.
func (s *Subscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close discards pending messages and wakes any blocked Next. Safe to call
// more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.doneChannel)
	})
}

// Done is closed once the mailbox has been closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.doneChannel
}
