package redeem

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OnBlock records a new head and re-evaluates the allowance gate when enabled.
// Collect enablement is derived from the recorded head in View.
func (c *Controller) OnBlock(ctx context.Context, number uint64) error {
	c.mu.Lock()
	c.currentBlock = number
	signal := c.blockSignal
	c.blockSignal = make(chan struct{})
	c.mu.Unlock()
	close(signal)

	if !c.gate {
		return nil
	}
	if _, err := c.CheckAllowance(ctx); err != nil {
		return fmt.Errorf("allowance check at block %d: %w", number, err)
	}
	return nil
}

// CheckAllowance compares the account's dollar allowance for the diamond with
// the entered amount and updates which of approve and redeem is shown.
func (c *Controller) CheckAllowance(ctx context.Context) (bool, error) {
	c.mu.Lock()
	amount := c.form.DollarAmount
	c.mu.Unlock()

	required, err := c.toFixed(ctx, c.tokens.Dollar, amount)
	if err != nil {
		return false, err
	}

	allowance := new(big.Int)
	if owner := c.client.Account(); owner != (common.Address{}) {
		allowance, err = c.client.Allowance(ctx, c.tokens.Dollar, owner, c.tokens.Diamond)
		if err != nil {
			return false, err
		}
	}

	allowed := allowance.Cmp(required) >= 0
	c.mu.Lock()
	c.allowed = allowed
	c.mu.Unlock()
	return allowed, nil
}

// WaitCollectable blocks until the last redemption has reached the
// confirmation depth or ctx ends.
func (c *Controller) WaitCollectable(ctx context.Context) error {
	for {
		c.mu.Lock()
		ready := collectable(c.redemptionBlock, c.currentBlock)
		signal := c.blockSignal
		c.mu.Unlock()
		if ready {
			return nil
		}
		select {
		case <-signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
