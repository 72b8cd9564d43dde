package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestABIsParse(t *testing.T) {
	erc20, err := Parse(ERC20ABI)
	require.NoError(t, err)
	assert.Contains(t, erc20.Methods, "allowance")
	assert.Contains(t, erc20.Methods, "approve")

	v1, err := Parse(PoolV1ABI)
	require.NoError(t, err)
	assert.Len(t, v1.Methods["redeemDollar"].Inputs, 2)

	v2, err := Parse(PoolV2ABI)
	require.NoError(t, err)
	assert.Len(t, v2.Methods["redeemDollar"].Inputs, 4)
	assert.Len(t, v2.Methods["collateralInformation"].Outputs[0].Type.TupleElems, 14)
}
