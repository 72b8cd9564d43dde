// Package redeem coordinates the redeem-and-collect flow against the pool:
// form state, the interaction lock, the redemption marker and the derived
// enablement of each action.
package redeem

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"redeemdesk/internal/journal"
	"redeemdesk/internal/notify"
	"redeemdesk/internal/pool"
	"redeemdesk/internal/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ConfirmationDepth is the number of blocks that must follow a redemption
// before its payout can be collected.
const ConfirmationDepth = 2

const DefaultFinalityTimeout = 10 * time.Minute

var (
	ErrInteractionLocked   = errors.New("another interaction is in progress")
	ErrZeroAmount          = errors.New("dollar amount must be greater than zero")
	ErrUnknownCollateral   = errors.New("unknown collateral index")
	ErrCollectNotReady     = errors.New("redemption is not collectable yet")
	ErrNoAccount           = errors.New("no connected account")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrFinalityTimeout     = errors.New("timed out waiting for transaction finality")
)

// Tokens are the fixed contract addresses the flow works against.
type Tokens struct {
	Dollar     common.Address
	Governance common.Address
	Diamond    common.Address
}

type Config struct {
	Tokens          Tokens
	ExplorerURL     string
	FinalityTimeout time.Duration
	// AllowanceGate hides redeem behind approve until the dollar allowance covers the amount.
	AllowanceGate bool
	Notifier      notify.Notifier
	Journal       journal.Store
	Logger        *logrus.Entry
}

type Collateral struct {
	Index        uint64         `json:"index"`
	Symbol       string         `json:"symbol"`
	Address      common.Address `json:"address"`
	Enabled      bool           `json:"enabled"`
	RedeemPaused bool           `json:"redeemPaused"`
}

type FormState struct {
	SelectedCollateralIndex uint64          `json:"selectedCollateralIndex"`
	DollarAmount            decimal.Decimal `json:"dollarAmount"`
	GovernanceOutMin        decimal.Decimal `json:"governanceOutMin"`
	CollateralOutMin        decimal.Decimal `json:"collateralOutMin"`
}

// View is the derived state a UI renders from.
type View struct {
	Form            FormState `json:"form"`
	Account         string    `json:"account,omitempty"`
	Protocol        string    `json:"protocol"`
	Locked          bool      `json:"locked"`
	RedeemEnabled   bool      `json:"redeemEnabled"`
	ApproveEnabled  bool      `json:"approveEnabled"`
	CollectEnabled  bool      `json:"collectEnabled"`
	RedeemVisible   bool      `json:"redeemVisible"`
	ApproveVisible  bool      `json:"approveVisible"`
	CurrentBlock    uint64    `json:"currentBlock"`
	RedemptionBlock uint64    `json:"redemptionBlock"`
}

// Controller owns all mutable state of one redeem session.
type Controller struct {
	client   pool.Client
	tokens   Tokens
	explorer string
	timeout  time.Duration
	gate     bool
	notifier notify.Notifier
	journal  journal.Store
	log      *logrus.Entry

	mu              sync.Mutex
	collaterals     []Collateral
	byIndex         map[uint64]common.Address
	decimals        map[common.Address]uint8
	form            FormState
	locked          bool
	redemptionBlock uint64
	currentBlock    uint64
	allowed         bool
	blockSignal     chan struct{}
}

func NewController(client pool.Client, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	timeout := cfg.FinalityTimeout
	if timeout <= 0 {
		timeout = DefaultFinalityTimeout
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.LogSink{Log: logger}
	}
	return &Controller{
		client:      client,
		tokens:      cfg.Tokens,
		explorer:    cfg.ExplorerURL,
		timeout:     timeout,
		gate:        cfg.AllowanceGate,
		notifier:    notifier,
		journal:     cfg.Journal,
		log:         logger.WithField("component", "redeem"),
		byIndex:     make(map[uint64]common.Address),
		decimals:    make(map[common.Address]uint8),
		blockSignal: make(chan struct{}),
	}
}

// LoadCollaterals fetches the collateral list and then each entry's metadata
// in parallel. Any failure aborts the load and leaves the directory empty.
func (c *Controller) LoadCollaterals(ctx context.Context) ([]Collateral, error) {
	ids, err := c.client.ListCollaterals(ctx)
	if err != nil {
		c.resetDirectory()
		return nil, fmt.Errorf("list collaterals: %w", err)
	}

	infos := make([]pool.CollateralInfo, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			info, err := c.client.CollateralInfo(gctx, id)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.resetDirectory()
		return nil, fmt.Errorf("load collateral information: %w", err)
	}

	entries := make([]Collateral, 0, len(infos))
	byIndex := make(map[uint64]common.Address, len(infos))
	for _, info := range infos {
		entries = append(entries, Collateral{
			Index:        info.Index,
			Symbol:       info.Symbol,
			Address:      info.Address,
			Enabled:      info.Enabled,
			RedeemPaused: info.RedeemPaused,
		})
		byIndex[info.Index] = info.Address
	}

	c.mu.Lock()
	c.collaterals = entries
	c.byIndex = byIndex
	c.mu.Unlock()

	c.log.WithField("count", len(entries)).Info("collateral directory loaded")
	return c.Collaterals(), nil
}

func (c *Controller) resetDirectory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collaterals = nil
	c.byIndex = make(map[uint64]common.Address)
}

// Collaterals returns the directory in fetch order.
func (c *Controller) Collaterals() []Collateral {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Collateral(nil), c.collaterals...)
}

func (c *Controller) OnCollateralChange(index uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byIndex[index]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCollateral, index)
	}
	c.form.SelectedCollateralIndex = index
	return nil
}

// OnAmountChange sets the dollar amount. Invalid input resets it to zero.
func (c *Controller) OnAmountChange(value string) error {
	return c.setAmount(value, func(f *FormState) *decimal.Decimal { return &f.DollarAmount })
}

func (c *Controller) OnGovernanceMinChange(value string) error {
	return c.setAmount(value, func(f *FormState) *decimal.Decimal { return &f.GovernanceOutMin })
}

func (c *Controller) OnCollateralMinChange(value string) error {
	return c.setAmount(value, func(f *FormState) *decimal.Decimal { return &f.CollateralOutMin })
}

func (c *Controller) setAmount(value string, field func(*FormState) *decimal.Decimal) error {
	amount, err := units.ParseAmount(value)
	c.mu.Lock()
	defer c.mu.Unlock()
	*field(&c.form) = amount
	return err
}

// View recomputes every derived flag from the current state.
func (c *Controller) View() View {
	account := c.client.Account()
	hasAccount := account != (common.Address{})

	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Form:            c.form,
		Protocol:        c.client.Protocol().String(),
		Locked:          c.locked,
		CurrentBlock:    c.currentBlock,
		RedemptionBlock: c.redemptionBlock,
		RedeemEnabled:   hasAccount && !c.locked && c.form.DollarAmount.IsPositive(),
		ApproveEnabled:  hasAccount && !c.locked,
		CollectEnabled:  collectable(c.redemptionBlock, c.currentBlock),
		RedeemVisible:   !c.gate || c.allowed,
		ApproveVisible:  c.gate && !c.allowed,
	}
	if hasAccount {
		v.Account = account.Hex()
	}
	return v
}

func collectable(marker, head uint64) bool {
	return marker != 0 && head >= marker && head-marker >= ConfirmationDepth
}

// acquire takes the interaction lock and returns a snapshot of the form
// together with a release func that is safe to call more than once.
func (c *Controller) acquire() (FormState, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return FormState{}, nil, ErrInteractionLocked
	}
	c.locked = true
	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			c.locked = false
			c.mu.Unlock()
		})
	}
	return c.form, release, nil
}

func (c *Controller) collateralAddress(index uint64) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.byIndex[index]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownCollateral, index)
	}
	return addr, nil
}

// tokenDecimals caches decimals per token; they never change for a deployed token.
func (c *Controller) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	c.mu.Lock()
	d, ok := c.decimals[token]
	c.mu.Unlock()
	if ok {
		return d, nil
	}
	d, err := c.client.TokenDecimals(ctx, token)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.decimals[token] = d
	c.mu.Unlock()
	return d, nil
}

func (c *Controller) toFixed(ctx context.Context, token common.Address, amount decimal.Decimal) (*big.Int, error) {
	d, err := c.tokenDecimals(ctx, token)
	if err != nil {
		return nil, err
	}
	return units.ToFixed(amount, d)
}
