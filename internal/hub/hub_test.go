package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"xpertly/internal/logging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu     sync.Mutex
	events [][]byte
	fail   bool
}

func (c *collectingSink) Deliver(event []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("sink closed")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *collectingSink) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = string(e)
	}
	return out
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New(logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestPublishDeliversInOrder(t *testing.T) {
	h := startHub(t)
	exeID := uuid.New()
	sink := &collectingSink{}

	_, err := h.Subscribe(context.Background(), exeID, sink)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Publish(exeID, []byte(fmt.Sprintf("event-%d", i))))
	}

	assert.Eventually(t, func() bool { return len(sink.snapshot()) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"event-0", "event-1", "event-2", "event-3", "event-4"}, sink.snapshot())
}

func TestEarlyEventsBufferedAndReplayed(t *testing.T) {
	h := startHub(t)
	exeID := uuid.New()

	require.NoError(t, h.Publish(exeID, []byte("first")))
	require.NoError(t, h.Publish(exeID, []byte("second")))

	sink := &collectingSink{}
	_, err := h.Subscribe(context.Background(), exeID, sink)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, sink.snapshot())

	// replay happens once; a second subscriber starts clean
	late := &collectingSink{}
	_, err = h.Subscribe(context.Background(), exeID, late)
	require.NoError(t, err)
	require.NoError(t, h.Publish(exeID, []byte("third")))

	assert.Eventually(t, func() bool { return len(late.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"third"}, late.snapshot())
}

func TestEventsScopedToExecution(t *testing.T) {
	h := startHub(t)
	exeA, exeB := uuid.New(), uuid.New()
	sinkA, sinkB := &collectingSink{}, &collectingSink{}

	_, err := h.Subscribe(context.Background(), exeA, sinkA)
	require.NoError(t, err)
	_, err = h.Subscribe(context.Background(), exeB, sinkB)
	require.NoError(t, err)

	require.NoError(t, h.Publish(exeA, []byte("for-a")))

	assert.Eventually(t, func() bool { return len(sinkA.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, sinkB.snapshot())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := startHub(t)
	exeID := uuid.New()
	sink := &collectingSink{}

	sessionID, err := h.Subscribe(context.Background(), exeID, sink)
	require.NoError(t, err)

	h.Unsubscribe(sessionID)
	require.NoError(t, h.Publish(exeID, []byte("after-detach")))

	// event lands in the buffer, not the old sink
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot())

	// a new subscriber still gets the buffered event
	replacement := &collectingSink{}
	_, err = h.Subscribe(context.Background(), exeID, replacement)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(replacement.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	h := startHub(t)
	exeID := uuid.New()
	broken := &collectingSink{fail: true}
	healthy := &collectingSink{}

	_, err := h.Subscribe(context.Background(), exeID, broken)
	require.NoError(t, err)
	_, err = h.Subscribe(context.Background(), exeID, healthy)
	require.NoError(t, err)

	require.NoError(t, h.Publish(exeID, []byte("event")))
	assert.Eventually(t, func() bool { return len(healthy.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}
