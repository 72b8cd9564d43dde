package pool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Client abstracts the on-chain pool and token interaction.
type Client interface {
	// Account is the connected signer. The zero address means no account is connected.
	Account() common.Address
	Protocol() ProtocolVersion

	ListCollaterals(ctx context.Context) ([]common.Address, error)
	CollateralInfo(ctx context.Context, id common.Address) (CollateralInfo, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	Redeem(ctx context.Context, req RedeemRequest) (common.Hash, error)
	CollectRedemption(ctx context.Context, collateralIndex *big.Int) (common.Hash, error)

	// WaitForFinality blocks until the transaction has a receipt or ctx ends.
	WaitForFinality(ctx context.Context, tx common.Hash) (FinalityStatus, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SubscribeNewBlocks(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error)
}

// HealthChecker is implemented by clients that can probe their RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type CollateralInfo struct {
	Index        uint64
	Symbol       string
	Address      common.Address
	Enabled      bool
	RedeemPaused bool
}

type RedeemRequest struct {
	CollateralIndex  *big.Int
	DollarAmount     *big.Int
	GovernanceOutMin *big.Int // v2 only
	CollateralOutMin *big.Int // v2 only
}

type FinalityStatus int

const (
	FinalitySuccess FinalityStatus = iota + 1
	FinalityReverted
)

func (s FinalityStatus) String() string {
	switch s {
	case FinalitySuccess:
		return "success"
	case FinalityReverted:
		return "reverted"
	default:
		return "unknown"
	}
}
