package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"redeemdesk/internal/config"
	"redeemdesk/internal/journal"
	"redeemdesk/internal/logging"
	"redeemdesk/internal/notify"
	"redeemdesk/internal/pool"
	"redeemdesk/internal/redeem"
	"redeemdesk/internal/watcher"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// devAccount signs transactions on the in-memory chain.
var devAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

// app is everything a command needs, built once from configuration.
type app struct {
	cfg      *config.AppConfig
	log      *logrus.Entry
	client   pool.Client
	fake     *pool.FakeClient
	journal  journal.Store
	feed     *notify.Feed
	notifier notify.Notifier
	ctrl     *redeem.Controller
	closers  []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	a := &app{
		cfg: cfg,
		log: logging.New(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat),
	}

	tokens := redeem.Tokens{
		Dollar:     cfg.Redeem.Dollar,
		Governance: cfg.Redeem.Governance,
		Diamond:    cfg.Redeem.Diamond,
	}
	if cfg.DevMode() {
		a.fake = pool.NewFakeClient(pool.FakeConfig{Account: devAccount, Protocol: cfg.Chain.Protocol})
		a.client = a.fake
		tokens = redeem.Tokens{Dollar: pool.FakeDollar, Governance: pool.FakeGovernance, Diamond: pool.FakeDiamond}
		a.log.WithField("account", devAccount.Hex()).Warn("no chain configured, using in-memory chain")
	} else {
		eth, err := pool.NewEthClient(ctx, pool.EthClientConfig{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
			Diamond:       cfg.Redeem.Diamond.Hex(),
			Protocol:      cfg.Chain.Protocol,
			Logger:        a.log,
		})
		if err != nil {
			return nil, fmt.Errorf("pool client error: %w", err)
		}
		a.client = eth
		a.closers = append(a.closers, eth.Close)
	}

	if cfg.Service.JournalDSN != "" {
		pg, err := journal.NewPostgresStore(ctx, cfg.Service.JournalDSN)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("journal error: %w", err)
		}
		a.journal = pg
		a.closers = append(a.closers, pg.Close)
	} else {
		fs, err := journal.NewFileStore(cfg.Service.JournalPath)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("journal error: %w", err)
		}
		a.journal = fs
	}

	a.feed = notify.NewFeed(0)
	notifier := notify.Multi{a.feed, notify.LogSink{Log: a.log}}
	if cfg.Service.NotifyWebhookURL != "" {
		notifier = append(notifier, notify.NewWebhookSink(cfg.Service.NotifyWebhookURL, 5*time.Second, a.log))
	}
	a.notifier = notifier

	a.ctrl = redeem.NewController(a.client, redeem.Config{
		Tokens:          tokens,
		ExplorerURL:     cfg.Redeem.ExplorerURL,
		FinalityTimeout: cfg.Redeem.FinalityTimeout,
		AllowanceGate:   cfg.Redeem.AllowanceGate,
		Notifier:        notifier,
		Journal:         a.journal,
		Logger:          a.log,
	})
	return a, nil
}

// startChain begins block production on the in-memory chain, if any, and
// runs the block watcher until ctx ends.
func (a *app) startChain(ctx context.Context, onError func(error)) {
	if a.fake != nil {
		go a.fake.AutoMine(ctx, a.cfg.Chain.DevBlockTime)
	}
	w := watcher.New(a.client, a.ctrl, a.notifier, watcher.Options{
		OnError: onError,
		Logger:  a.log,
	})
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.WithError(err).Error("block watcher stopped")
		}
	}()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
