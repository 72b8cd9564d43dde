// Package watcher feeds new chain heads into the redeem controller.
package watcher

import (
	"context"
	"fmt"
	"time"

	"redeemdesk/internal/notify"
	"redeemdesk/internal/pool"

	"github.com/sirupsen/logrus"
)

const DefaultResubscribeDelay = 5 * time.Second

// BlockHandler receives every new head. Errors are reported but never stop the watcher.
type BlockHandler interface {
	OnBlock(ctx context.Context, number uint64) error
}

type Watcher struct {
	client           pool.Client
	handler          BlockHandler
	notifier         notify.Notifier
	resubscribeDelay time.Duration
	onError          func(error)
	log              *logrus.Entry
}

type Options struct {
	ResubscribeDelay time.Duration
	// OnError is called for every failed block evaluation, e.g. to count it.
	OnError func(error)
	Logger  *logrus.Entry
}

func New(client pool.Client, handler BlockHandler, notifier notify.Notifier, opts Options) *Watcher {
	delay := opts.ResubscribeDelay
	if delay <= 0 {
		delay = DefaultResubscribeDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Watcher{
		client:           client,
		handler:          handler,
		notifier:         notifier,
		resubscribeDelay: delay,
		onError:          opts.OnError,
		log:              logger.WithField("role", "blockwatcher"),
	}
}

// Run observes new blocks until ctx is cancelled. A dropped subscription is
// re-established after the resubscribe delay.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.WithError(err).Warnf("Block subscription lost, resubscribing in %s", w.resubscribeDelay)
		select {
		case <-time.After(w.resubscribeDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) watch(ctx context.Context) error {
	blocks := make(chan uint64, 16)
	sub, err := w.client.SubscribeNewBlocks(ctx, blocks)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		w.log.WithError(err).Warn("Initial head read failed")
		w.report(ctx, fmt.Errorf("read chain head: %w", err))
	} else {
		w.handle(ctx, head)
	}

	for {
		select {
		case n := <-blocks:
			w.handle(ctx, n)
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) handle(ctx context.Context, number uint64) {
	w.log.Debugf("New block %d", number)
	err := w.handler.OnBlock(ctx, number)
	if err == nil {
		return
	}
	w.log.WithError(err).WithField("block", number).Warn("Block evaluation failed")
	w.report(ctx, err)
}

// report hands a failed evaluation to the error hook and the notifier.
func (w *Watcher) report(ctx context.Context, err error) {
	if w.onError != nil {
		w.onError(err)
	}
	if w.notifier != nil {
		w.notifier.Notify(ctx, notify.New(notify.KindError, pool.ShortMessage(err)))
	}
}
