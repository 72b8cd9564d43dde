package pool

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"redeemdesk/internal/contracts"
)

var (
	ErrSlippageUnsupported = errors.New("protocol v1 redeem has no minimum output bounds")
	ErrUnknownProtocol     = errors.New("unknown protocol version")
)

// ProtocolVersion selects the redeemDollar signature deployed on the pool.
// Versions are not interchangeable: v1 carries no slippage protection.
type ProtocolVersion int

const (
	ProtocolV1 ProtocolVersion = 1
	ProtocolV2 ProtocolVersion = 2
)

func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v") {
	case "1":
		return ProtocolV1, nil
	case "2", "":
		return ProtocolV2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// SupportsSlippage reports whether redeemDollar takes minimum output amounts.
func (v ProtocolVersion) SupportsSlippage() bool {
	return v == ProtocolV2
}

func (v ProtocolVersion) poolABI() (string, error) {
	switch v {
	case ProtocolV1:
		return contracts.PoolV1ABI, nil
	case ProtocolV2:
		return contracts.PoolV2ABI, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownProtocol, int(v))
	}
}

// redeemArgs builds the redeemDollar arguments for this version.
func (v ProtocolVersion) redeemArgs(req RedeemRequest) ([]interface{}, error) {
	if err := validateRedeemRequest(req); err != nil {
		return nil, err
	}
	switch v {
	case ProtocolV1:
		if nonZero(req.GovernanceOutMin) || nonZero(req.CollateralOutMin) {
			return nil, ErrSlippageUnsupported
		}
		return []interface{}{req.CollateralIndex, req.DollarAmount}, nil
	case ProtocolV2:
		return []interface{}{req.CollateralIndex, req.DollarAmount, orZero(req.GovernanceOutMin), orZero(req.CollateralOutMin)}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownProtocol, int(v))
	}
}

func validateRedeemRequest(req RedeemRequest) error {
	if req.CollateralIndex == nil || req.CollateralIndex.Sign() < 0 {
		return errors.New("invalid collateral index")
	}
	if req.DollarAmount == nil || req.DollarAmount.Sign() <= 0 {
		return errors.New("dollar amount must be positive")
	}
	return nil
}

func nonZero(v *big.Int) bool {
	return v != nil && v.Sign() != 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
