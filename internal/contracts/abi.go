// Package contracts holds the ABI fragments redeemdesk calls on chain.
package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI covers the token calls the redeem flow needs.
const ERC20ABI = `[
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const poolReadABI = `
  {"type":"function","name":"allCollaterals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"collateralInformation","stateMutability":"view","inputs":[{"name":"collateralAddress","type":"address"}],"outputs":[{"name":"returnData","type":"tuple","components":[
    {"name":"index","type":"uint256"},
    {"name":"symbol","type":"string"},
    {"name":"collateralAddress","type":"address"},
    {"name":"collateralPriceFeedAddress","type":"address"},
    {"name":"collateralPriceFeedStalenessThreshold","type":"uint256"},
    {"name":"isEnabled","type":"bool"},
    {"name":"missingDecimals","type":"uint256"},
    {"name":"price","type":"uint256"},
    {"name":"poolCeiling","type":"uint256"},
    {"name":"isMintPaused","type":"bool"},
    {"name":"isRedeemPaused","type":"bool"},
    {"name":"isBorrowPaused","type":"bool"},
    {"name":"mintingFee","type":"uint256"},
    {"name":"redemptionFee","type":"uint256"}
  ]}]},
  {"type":"function","name":"collectRedemption","stateMutability":"nonpayable","inputs":[{"name":"collateralIndex","type":"uint256"}],"outputs":[{"name":"governanceAmount","type":"uint256"},{"name":"collateralAmount","type":"uint256"}]}`

// PoolV1ABI is the pool facet before slippage bounds were added to redeemDollar.
const PoolV1ABI = `[` + poolReadABI + `,
  {"type":"function","name":"redeemDollar","stateMutability":"nonpayable","inputs":[{"name":"collateralIndex","type":"uint256"},{"name":"dollarAmount","type":"uint256"}],"outputs":[{"name":"collateralOut","type":"uint256"},{"name":"governanceOut","type":"uint256"}]}
]`

// PoolV2ABI adds governanceOutMin and collateralOutMin to redeemDollar.
const PoolV2ABI = `[` + poolReadABI + `,
  {"type":"function","name":"redeemDollar","stateMutability":"nonpayable","inputs":[{"name":"collateralIndex","type":"uint256"},{"name":"dollarAmount","type":"uint256"},{"name":"governanceOutMin","type":"uint256"},{"name":"collateralOutMin","type":"uint256"}],"outputs":[{"name":"collateralOut","type":"uint256"},{"name":"governanceOut","type":"uint256"}]}
]`

// CollateralInformation mirrors the tuple returned by collateralInformation.
type CollateralInformation struct {
	Index                                 *big.Int
	Symbol                                string
	CollateralAddress                     common.Address
	CollateralPriceFeedAddress            common.Address
	CollateralPriceFeedStalenessThreshold *big.Int
	IsEnabled                             bool
	MissingDecimals                       *big.Int
	Price                                 *big.Int
	PoolCeiling                           *big.Int
	IsMintPaused                          bool
	IsRedeemPaused                        bool
	IsBorrowPaused                        bool
	MintingFee                            *big.Int
	RedemptionFee                         *big.Int
}

// Parse decodes one of the ABI constants above.
func Parse(raw string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(raw))
}
