package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/worldsync/internal/adapter/metrics"
	"github.com/pscheid92/worldsync/internal/domain"
	"github.com/pscheid92/worldsync/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscriber) []string {
	t.Helper()
	var out []string
	for sub.Len() > 0 {
		msg, err := sub.Next(context.Background())
		require.NoError(t, err)
		out = append(out, string(msg))
	}
	return out
}

func TestBroadcaster_PublishReachesEveryRegisteredSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	first := NewSubscriber(nil)
	second := NewSubscriber(nil)
	require.NoError(t, b.Register(first))
	require.NoError(t, b.Register(second))

	b.Publish([]byte(`{"cat":{"x":1}}`))

	assert.Equal(t, []string{`{"cat":{"x":1}}`}, drain(t, first))
	assert.Equal(t, []string{`{"cat":{"x":1}}`}, drain(t, second))
}

func TestBroadcaster_NoSubscribersNoPanic(t *testing.T) {
	b := NewBroadcaster(nil)
	assert.NotPanics(t, func() { b.Publish([]byte("x")) })
}

func TestBroadcaster_UnregisterIsIdempotent(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := NewSubscriber(nil)
	require.NoError(t, b.Register(sub))

	assert.True(t, b.Unregister(sub))
	assert.False(t, b.Unregister(sub))
	assert.False(t, b.Unregister(NewSubscriber(nil)))
	assert.Equal(t, 0, b.Count())

	b.Publish([]byte("after"))
	assert.Equal(t, 0, sub.Len())
}

func TestBroadcaster_UnregisterDoesNotCloseMailbox(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := NewSubscriber(nil)
	require.NoError(t, b.Register(sub))
	b.Unregister(sub)

	assert.Equal(t, 1, sub.Put([]byte("direct")))
}

func TestBroadcaster_SubscribeSeedsFromSnapshot(t *testing.T) {
	store := world.NewStore(nil, nil)
	store.Update("dog", "bark", "woof")
	store.Update("cat", "x", 1.0)

	b := NewBroadcaster(nil)
	sub, err := b.Subscribe(store)
	require.NoError(t, err)

	assert.Equal(t, []string{`{"cat":{"x":1}}`, `{"dog":{"bark":"woof"}}`}, drain(t, sub))
	assert.Equal(t, 1, b.Count())
}

func TestBroadcaster_SubscribeEmptyWorldHasNoSeed(t *testing.T) {
	b := NewBroadcaster(nil)
	sub, err := b.Subscribe(world.NewStore(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, sub.Len())
}

func TestBroadcaster_SetNotifiesSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	store := world.NewStore(b, nil)

	sub, err := b.Subscribe(store)
	require.NoError(t, err)

	store.Set("cat", domain.Properties{"x": 9.0})
	store.Update("cat", "y", 2.0)
	store.Clear()

	assert.Equal(t, []string{`{"cat":{"x":9}}`}, drain(t, sub))
}

func TestBroadcaster_NoMutationLostBetweenSeedAndRegistration(t *testing.T) {
	b := NewBroadcaster(nil)
	store := world.NewStore(b, nil)

	const writes = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range writes {
			store.Set(fmt.Sprintf("e%03d", i), domain.Properties{"i": float64(i)})
		}
	}()

	sub, err := b.Subscribe(store)
	require.NoError(t, err)
	wg.Wait()

	seen := map[string]bool{}
	for _, msg := range drain(t, sub) {
		seen[msg] = true
	}
	for i := range writes {
		msg := fmt.Sprintf(`{"e%03d":{"i":%d}}`, i, i)
		assert.True(t, seen[msg], "missing %s", msg)
	}
}

func TestBroadcaster_ConcurrentPublishSameOrderForAll(t *testing.T) {
	b := NewBroadcaster(nil)
	subs := make([]*Subscriber, 5)
	for i := range subs {
		subs[i] = NewSubscriber(nil)
		require.NoError(t, b.Register(subs[i]))
	}

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				b.Publish(fmt.Appendf(nil, "%d-%d", p, i))
			}
		}()
	}
	wg.Wait()

	reference := drain(t, subs[0])
	require.Len(t, reference, 400)
	for _, sub := range subs[1:] {
		assert.Equal(t, reference, drain(t, sub))
	}
}

func TestBroadcaster_ConcurrentRegisterAndPublish(t *testing.T) {
	b := NewBroadcaster(nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := NewSubscriber(nil)
			_ = b.Register(sub)
			b.Unregister(sub)
		}()
		go func() {
			defer wg.Done()
			b.Publish([]byte("x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.Count())
}

func TestBroadcaster_CloseClosesMailboxesAndRejectsNew(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := NewSubscriber(nil)
	require.NoError(t, b.Register(sub))
	require.NoError(t, b.Check(context.Background()))

	b.Close()
	b.Close()

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriberClosed)
	assert.Equal(t, 0, b.Count())

	assert.ErrorIs(t, b.Register(NewSubscriber(nil)), ErrBroadcasterClosed)
	_, err = b.Subscribe(world.NewStore(nil, nil))
	assert.ErrorIs(t, err, ErrBroadcasterClosed)
	assert.ErrorIs(t, b.Check(context.Background()), ErrBroadcasterClosed)
}

func TestBroadcaster_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBroadcastMetrics(reg)
	b := NewBroadcaster(m)

	first := NewSubscriber(nil)
	second := NewSubscriber(nil)
	require.NoError(t, b.Register(first))
	require.NoError(t, b.Register(second))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Subscribers))

	b.Publish([]byte("a"))
	b.Publish([]byte("b"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesPublished))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Deliveries))

	b.Unregister(first)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscribers))
}
