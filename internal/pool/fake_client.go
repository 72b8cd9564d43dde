package pool

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// FakeClient is an in-memory chain used in dev mode and tests. Every
// transaction is final immediately unless scripted otherwise.
type FakeClient struct {
	mu          sync.Mutex
	account     common.Address
	protocol    ProtocolVersion
	collaterals []CollateralInfo
	decimals    map[common.Address]uint8
	allowances  map[allowanceKey]*big.Int
	outcomes    map[common.Hash]FinalityStatus
	stalled     map[common.Hash]bool
	block       uint64
	nonce       uint64
	revertNext  bool
	stallNext   bool
	failNext    error
	infoErr     error
	blocks      event.FeedOf[uint64]

	Redemptions []RedeemRequest
	Collections []*big.Int
	Approvals   []*big.Int
}

type allowanceKey struct {
	token, owner, spender common.Address
}

type FakeConfig struct {
	Account  common.Address
	Protocol ProtocolVersion
	// StartBlock defaults to 1.
	StartBlock uint64
}

var (
	FakeDollar     = common.HexToAddress("0x0F644658510c95CB46955e55D7BA9DDa9E9fBEc6")
	FakeGovernance = common.HexToAddress("0x4e38D89362f7e5db0096CE44ebD021c3962aA9a0")
	FakeDiamond    = common.HexToAddress("0xED3084c98148e2528DaDCB53C56352e549C488fA")
	FakeLUSD       = common.HexToAddress("0x5f98805A4E8be255a32880FDeC7F6728C6568bA0")
	FakeUSDC       = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func NewFakeClient(cfg FakeConfig) *FakeClient {
	protocol := cfg.Protocol
	if protocol == 0 {
		protocol = ProtocolV2
	}
	start := cfg.StartBlock
	if start == 0 {
		start = 1
	}
	return &FakeClient{
		account:  cfg.Account,
		protocol: protocol,
		collaterals: []CollateralInfo{
			{Index: 0, Symbol: "LUSD", Address: FakeLUSD, Enabled: true},
			{Index: 1, Symbol: "USDC", Address: FakeUSDC, Enabled: true},
		},
		decimals: map[common.Address]uint8{
			FakeDollar:     18,
			FakeGovernance: 18,
			FakeLUSD:       18,
			FakeUSDC:       6,
		},
		allowances: make(map[allowanceKey]*big.Int),
		outcomes:   make(map[common.Hash]FinalityStatus),
		stalled:    make(map[common.Hash]bool),
		block:      start,
	}
}

func (f *FakeClient) Account() common.Address {
	return f.account
}

func (f *FakeClient) Protocol() ProtocolVersion {
	return f.protocol
}

// SetCollaterals replaces the collateral set the fake reports.
func (f *FakeClient) SetCollaterals(infos []CollateralInfo, decimals map[common.Address]uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collaterals = infos
	for addr, d := range decimals {
		f.decimals[addr] = d
	}
}

// FailCollateralInfo makes every CollateralInfo call return err.
func (f *FakeClient) FailCollateralInfo(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoErr = err
}

// RevertNext makes the next accepted transaction finalize as reverted.
func (f *FakeClient) RevertNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revertNext = true
}

// StallNext makes the next accepted transaction never reach finality.
func (f *FakeClient) StallNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stallNext = true
}

// FailNext makes the next submission fail before acceptance.
func (f *FakeClient) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

func (f *FakeClient) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

func (f *FakeClient) ListCollaterals(context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]common.Address, 0, len(f.collaterals))
	for _, c := range f.collaterals {
		out = append(out, c.Address)
	}
	return out, nil
}

func (f *FakeClient) CollateralInfo(_ context.Context, id common.Address) (CollateralInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return CollateralInfo{}, f.infoErr
	}
	for _, c := range f.collaterals {
		if c.Address == id {
			return c, nil
		}
	}
	return CollateralInfo{}, fmt.Errorf("collateral %s not found", id.Hex())
}

func (f *FakeClient) TokenDecimals(_ context.Context, token common.Address) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decimals[token]
	if !ok {
		return 0, fmt.Errorf("decimals %s: no contract code", token.Hex())
	}
	return d, nil
}

func (f *FakeClient) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.allowances[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *FakeClient) Approve(_ context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := f.acceptLocked("approve")
	if err != nil {
		return common.Hash{}, err
	}
	f.Approvals = append(f.Approvals, new(big.Int).Set(amount))
	if f.outcomes[hash] == FinalitySuccess {
		f.allowances[allowanceKey{token, f.account, spender}] = new(big.Int).Set(amount)
	}
	return hash, nil
}

func (f *FakeClient) Redeem(_ context.Context, req RedeemRequest) (common.Hash, error) {
	if _, err := f.protocol.redeemArgs(req); err != nil {
		return common.Hash{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := f.acceptLocked("redeemDollar")
	if err != nil {
		return common.Hash{}, err
	}
	f.Redemptions = append(f.Redemptions, req)
	return hash, nil
}

func (f *FakeClient) CollectRedemption(_ context.Context, collateralIndex *big.Int) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := f.acceptLocked("collectRedemption")
	if err != nil {
		return common.Hash{}, err
	}
	f.Collections = append(f.Collections, new(big.Int).Set(collateralIndex))
	return hash, nil
}

func (f *FakeClient) acceptLocked(method string) (common.Hash, error) {
	if f.account == (common.Address{}) {
		return common.Hash{}, ErrReadOnly
	}
	if err := f.failNext; err != nil {
		f.failNext = nil
		return common.Hash{}, err
	}
	f.nonce++
	hash := fakeTxHash(method, f.account, f.nonce)
	status := FinalitySuccess
	if f.revertNext {
		status = FinalityReverted
		f.revertNext = false
	}
	f.outcomes[hash] = status
	if f.stallNext {
		f.stalled[hash] = true
		f.stallNext = false
	}
	return hash, nil
}

func (f *FakeClient) WaitForFinality(ctx context.Context, hash common.Hash) (FinalityStatus, error) {
	f.mu.Lock()
	status, ok := f.outcomes[hash]
	stalled := f.stalled[hash]
	f.mu.Unlock()
	if !ok {
		return 0, errors.New("transaction not found")
	}
	if stalled {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return status, nil
}

func (f *FakeClient) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *FakeClient) SubscribeNewBlocks(_ context.Context, ch chan<- uint64) (ethereum.Subscription, error) {
	return f.blocks.Subscribe(ch), nil
}

// Mine advances the head by one block and notifies subscribers.
func (f *FakeClient) Mine() uint64 {
	f.mu.Lock()
	f.block++
	n := f.block
	f.mu.Unlock()
	f.blocks.Send(n)
	return n
}

// AutoMine mines a block every interval until ctx ends.
func (f *FakeClient) AutoMine(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Mine()
		}
	}
}

func (f *FakeClient) Ping(context.Context) error {
	return nil
}

func fakeTxHash(method string, from common.Address, nonce uint64) common.Hash {
	return sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", method, from.Hex(), nonce)))
}
