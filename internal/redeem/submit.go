package redeem

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"redeemdesk/internal/journal"
	"redeemdesk/internal/notify"
	"redeemdesk/internal/pool"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	msgRedeemed  = "Successfully redeemed"
	msgCollected = "Successfully collected redemption"
	msgApproved  = "Successfully allowed to burn dollar"
	msgReverted  = "transaction reverted"
	msgTimeout   = "timed out waiting for transaction finality"
)

// Outcome describes a submitted transaction after its finality wait.
type Outcome struct {
	Action  journal.Kind   `json:"action"`
	TxHash  string         `json:"txHash,omitempty"`
	Block   uint64         `json:"block,omitempty"`
	Status  journal.Status `json:"status"`
	Link    string         `json:"link,omitempty"`
	Message string         `json:"message"`
}

// OnApprove approves the diamond to burn the entered dollar amount. Like
// redeem and collect, the lock is released once the transaction is accepted.
func (c *Controller) OnApprove(ctx context.Context) (Outcome, error) {
	form, release, err := c.acquire()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	fail := func(err error) (Outcome, error) {
		release()
		return c.fail(ctx, journal.Entry{Kind: journal.KindApprove}, err)
	}

	if c.client.Account() == (common.Address{}) {
		return fail(ErrNoAccount)
	}
	amount, err := c.toFixed(ctx, c.tokens.Dollar, form.DollarAmount)
	if err != nil {
		return fail(err)
	}
	hash, err := c.client.Approve(ctx, c.tokens.Dollar, c.tokens.Diamond, amount)
	if err != nil {
		return fail(err)
	}
	release()

	entry := journal.Entry{TxHash: hash.Hex(), Kind: journal.KindApprove, Amount: amount.String()}
	c.record(ctx, entry, journal.StatusPending)
	return c.awaitFinality(ctx, entry, msgApproved)
}

// OnSubmitRedeem redeems the entered dollar amount against the selected
// collateral. The lock is released as soon as the transaction is accepted;
// the finality wait does not hold it.
func (c *Controller) OnSubmitRedeem(ctx context.Context) (Outcome, error) {
	form, release, err := c.acquire()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	if !form.DollarAmount.IsPositive() {
		return Outcome{}, ErrZeroAmount
	}
	collateral, err := c.collateralAddress(form.SelectedCollateralIndex)
	if err != nil {
		return Outcome{}, err
	}

	base := journal.Entry{Kind: journal.KindRedeem, CollateralIndex: form.SelectedCollateralIndex}
	fail := func(err error) (Outcome, error) {
		release()
		return c.fail(ctx, base, err)
	}

	req, err := c.buildRedeemRequest(ctx, form, collateral)
	if err != nil {
		return fail(err)
	}
	hash, err := c.client.Redeem(ctx, req)
	if err != nil {
		return fail(err)
	}
	release()

	entry := base
	entry.TxHash = hash.Hex()
	entry.Amount = req.DollarAmount.String()
	c.record(ctx, entry, journal.StatusPending)

	block, err := c.client.BlockNumber(ctx)
	if err != nil {
		return c.fail(ctx, entry, fmt.Errorf("block number after redeem: %w", err))
	}
	c.mu.Lock()
	c.redemptionBlock = block
	c.mu.Unlock()
	entry.Block = block
	c.log.WithFields(logrus.Fields{"tx": entry.TxHash, "block": block}).Info("redemption accepted")

	return c.awaitFinality(ctx, entry, msgRedeemed)
}

func (c *Controller) buildRedeemRequest(ctx context.Context, form FormState, collateral common.Address) (pool.RedeemRequest, error) {
	dollarAmount, err := c.toFixed(ctx, c.tokens.Dollar, form.DollarAmount)
	if err != nil {
		return pool.RedeemRequest{}, fmt.Errorf("dollar amount: %w", err)
	}
	req := pool.RedeemRequest{
		CollateralIndex: new(big.Int).SetUint64(form.SelectedCollateralIndex),
		DollarAmount:    dollarAmount,
	}
	if !c.client.Protocol().SupportsSlippage() {
		if !form.GovernanceOutMin.IsZero() || !form.CollateralOutMin.IsZero() {
			return pool.RedeemRequest{}, pool.ErrSlippageUnsupported
		}
		return req, nil
	}
	if req.CollateralOutMin, err = c.toFixed(ctx, collateral, form.CollateralOutMin); err != nil {
		return pool.RedeemRequest{}, fmt.Errorf("collateral minimum: %w", err)
	}
	if req.GovernanceOutMin, err = c.toFixed(ctx, c.tokens.Governance, form.GovernanceOutMin); err != nil {
		return pool.RedeemRequest{}, fmt.Errorf("governance minimum: %w", err)
	}
	return req, nil
}

// OnCollectRedemption collects the payout of the last redemption. The
// confirmation depth is enforced here as well as in View.
func (c *Controller) OnCollectRedemption(ctx context.Context) (Outcome, error) {
	form, release, err := c.acquire()
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	c.mu.Lock()
	ready := collectable(c.redemptionBlock, c.currentBlock)
	c.mu.Unlock()
	if !ready {
		return Outcome{}, ErrCollectNotReady
	}

	base := journal.Entry{Kind: journal.KindCollect, CollateralIndex: form.SelectedCollateralIndex}
	hash, err := c.client.CollectRedemption(ctx, new(big.Int).SetUint64(form.SelectedCollateralIndex))
	if err != nil {
		release()
		return c.fail(ctx, base, err)
	}
	release()

	entry := base
	entry.TxHash = hash.Hex()
	c.record(ctx, entry, journal.StatusPending)
	return c.awaitFinality(ctx, entry, msgCollected)
}

// awaitFinality waits for the receipt within the finality timeout and emits
// exactly one notification for the outcome.
func (c *Controller) awaitFinality(ctx context.Context, entry journal.Entry, successMsg string) (Outcome, error) {
	wctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.client.WaitForFinality(wctx, common.HexToHash(entry.TxHash))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrFinalityTimeout
		}
		return c.fail(ctx, entry, err)
	}
	if status != pool.FinalitySuccess {
		return c.fail(ctx, entry, ErrTransactionReverted)
	}

	link := c.txLink(entry.TxHash)
	out := Outcome{
		Action:  entry.Kind,
		TxHash:  entry.TxHash,
		Block:   entry.Block,
		Status:  journal.StatusSuccess,
		Link:    link,
		Message: successMsg + ": " + link,
	}
	c.record(ctx, entry, journal.StatusSuccess)

	n := notify.New(notify.KindSuccess, out.Message)
	n.TxHash = entry.TxHash
	n.Link = link
	c.notifier.Notify(ctx, n)
	return out, nil
}

// fail reports err once and returns it with the outcome so far.
func (c *Controller) fail(ctx context.Context, entry journal.Entry, err error) (Outcome, error) {
	status := journal.StatusFailed
	message := pool.ShortMessage(err)
	switch {
	case errors.Is(err, ErrTransactionReverted):
		status, message = journal.StatusReverted, msgReverted
	case errors.Is(err, ErrFinalityTimeout):
		status, message = journal.StatusTimeout, msgTimeout
	}

	out := Outcome{
		Action:  entry.Kind,
		TxHash:  entry.TxHash,
		Block:   entry.Block,
		Status:  status,
		Message: message,
	}
	if entry.TxHash != "" {
		out.Link = c.txLink(entry.TxHash)
		entry.Error = message
		c.record(ctx, entry, status)
	}

	c.log.WithError(err).WithFields(logrus.Fields{"action": entry.Kind, "tx": entry.TxHash}).Warn("interaction failed")

	n := notify.New(notify.KindError, message)
	n.TxHash = entry.TxHash
	n.Link = out.Link
	c.notifier.Notify(ctx, n)
	return out, err
}

func (c *Controller) record(ctx context.Context, entry journal.Entry, status journal.Status) {
	if c.journal == nil {
		return
	}
	entry.Status = status
	if err := c.journal.Put(context.WithoutCancel(ctx), entry); err != nil {
		c.log.WithError(err).WithField("tx", entry.TxHash).Error("journal write failed")
	}
}

func (c *Controller) txLink(hash string) string {
	if c.explorer == "" {
		return hash
	}
	return strings.TrimRight(c.explorer, "/") + "/tx/" + hash
}
