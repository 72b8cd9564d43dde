package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"redeemdesk/internal/notify"
	"redeemdesk/internal/pool"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	blocks []uint64
	failOn map[uint64]bool
	seen   chan uint64
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{failOn: map[uint64]bool{}, seen: make(chan uint64, 64)}
}

func (h *recordingHandler) OnBlock(_ context.Context, n uint64) error {
	h.mu.Lock()
	h.blocks = append(h.blocks, n)
	fail := h.failOn[n]
	h.mu.Unlock()
	h.seen <- n
	if fail {
		return errors.New("allowance lookup failed")
	}
	return nil
}

func (h *recordingHandler) waitFor(t *testing.T, n uint64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-h.seen:
			if got == n {
				return
			}
		case <-deadline:
			t.Fatalf("block %d never handled", n)
		}
	}
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestWatcherContinuesAfterBlockError(t *testing.T) {
	fake := pool.NewFakeClient(pool.FakeConfig{StartBlock: 10})
	handler := newRecordingHandler()
	handler.failOn[11] = true
	feed := notify.NewFeed(10)
	var errCount int
	var errMu sync.Mutex

	w := New(fake, handler, feed, Options{
		Logger: quietLogger(),
		OnError: func(error) {
			errMu.Lock()
			errCount++
			errMu.Unlock()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	handler.waitFor(t, 10)
	fake.Mine()
	handler.waitFor(t, 11)
	fake.Mine()
	handler.waitFor(t, 12)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	notes := feed.Since("")
	require.Len(t, notes, 1)
	assert.Equal(t, notify.KindError, notes[0].Kind)
	assert.Equal(t, "allowance lookup failed", notes[0].Message)
	errMu.Lock()
	assert.Equal(t, 1, errCount)
	errMu.Unlock()
}

// flakyClient drops its first subscription with an error.
type flakyClient struct {
	*pool.FakeClient
	mu    sync.Mutex
	calls int
}

func (c *flakyClient) SubscribeNewBlocks(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first {
		return event.NewSubscription(func(<-chan struct{}) error {
			return errors.New("websocket closed")
		}), nil
	}
	return c.FakeClient.SubscribeNewBlocks(ctx, ch)
}

func TestWatcherResubscribes(t *testing.T) {
	client := &flakyClient{FakeClient: pool.NewFakeClient(pool.FakeConfig{StartBlock: 5})}
	handler := newRecordingHandler()
	w := New(client, handler, nil, Options{ResubscribeDelay: time.Millisecond, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	handler.waitFor(t, 5)
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.calls >= 2
	}, 2*time.Second, time.Millisecond)

	// Give the second subscription time to attach before mining.
	handler.waitFor(t, 5)
	client.Mine()
	handler.waitFor(t, 6)
}

// headlessClient cannot read the chain head but still streams blocks.
type headlessClient struct {
	*pool.FakeClient
}

func (c headlessClient) BlockNumber(context.Context) (uint64, error) {
	return 0, errors.New("rpc unavailable")
}

func TestWatcherReportsInitialHeadError(t *testing.T) {
	client := headlessClient{pool.NewFakeClient(pool.FakeConfig{StartBlock: 20})}
	handler := newRecordingHandler()
	feed := notify.NewFeed(10)
	var errCount int
	var errMu sync.Mutex

	w := New(client, handler, feed, Options{
		Logger: quietLogger(),
		OnError: func(error) {
			errMu.Lock()
			errCount++
			errMu.Unlock()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(feed.Since("")) == 1
	}, 2*time.Second, time.Millisecond)
	notes := feed.Since("")
	assert.Equal(t, notify.KindError, notes[0].Kind)
	assert.Contains(t, notes[0].Message, "rpc unavailable")
	errMu.Lock()
	assert.Equal(t, 1, errCount)
	errMu.Unlock()

	client.Mine()
	handler.waitFor(t, 21)
}
