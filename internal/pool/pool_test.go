package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestParseProtocolVersion(t *testing.T) {
	v, err := ParseProtocolVersion("v1")
	require.NoError(t, err)
	assert.Equal(t, ProtocolV1, v)

	v, err = ParseProtocolVersion("")
	require.NoError(t, err)
	assert.Equal(t, ProtocolV2, v)

	_, err = ParseProtocolVersion("3")
	assert.ErrorIs(t, err, ErrUnknownProtocol)
}

func TestRedeemArgsPerVersion(t *testing.T) {
	req := RedeemRequest{
		CollateralIndex:  big.NewInt(1),
		DollarAmount:     big.NewInt(100),
		GovernanceOutMin: big.NewInt(5),
	}

	args, err := ProtocolV2.redeemArgs(req)
	require.NoError(t, err)
	require.Len(t, args, 4)
	assert.Equal(t, "5", args[2].(*big.Int).String())
	assert.Equal(t, "0", args[3].(*big.Int).String())

	_, err = ProtocolV1.redeemArgs(req)
	assert.ErrorIs(t, err, ErrSlippageUnsupported)

	req.GovernanceOutMin = nil
	args, err = ProtocolV1.redeemArgs(req)
	require.NoError(t, err)
	assert.Len(t, args, 2)
}

func TestRedeemArgsRejectsEmptyAmount(t *testing.T) {
	_, err := ProtocolV2.redeemArgs(RedeemRequest{CollateralIndex: big.NewInt(0), DollarAmount: big.NewInt(0)})
	assert.Error(t, err)
}

type fakeRPCError struct {
	msg  string
	data interface{}
}

func (e *fakeRPCError) Error() string          { return e.msg }
func (e *fakeRPCError) ErrorCode() int         { return 3 }
func (e *fakeRPCError) ErrorData() interface{} { return e.data }

func revertData(t *testing.T, reason string) string {
	stringTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func TestShortMessage(t *testing.T) {
	assert.Equal(t, "", ShortMessage(nil))

	reverted := fmt.Errorf("redeem tx: %w", &fakeRPCError{msg: "execution reverted", data: revertData(t, "Collateral disabled")})
	assert.Equal(t, "execution reverted: Collateral disabled", ShortMessage(reverted))

	rpcOnly := fmt.Errorf("approve tx: %w", &fakeRPCError{msg: "insufficient funds for gas"})
	assert.Equal(t, "insufficient funds for gas", ShortMessage(rpcOnly))

	assert.Equal(t, "plain failure", ShortMessage(errors.New("plain failure")))
	assert.Equal(t, GenericFailure, ShortMessage(errors.New(" ")))
}

func TestFakeClientRedeemLifecycle(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeClient(FakeConfig{Account: testAccount})

	hash, err := fake.Redeem(ctx, RedeemRequest{CollateralIndex: big.NewInt(0), DollarAmount: big.NewInt(10)})
	require.NoError(t, err)
	status, err := fake.WaitForFinality(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, FinalitySuccess, status)
	require.Len(t, fake.Redemptions, 1)

	fake.RevertNext()
	hash, err = fake.CollectRedemption(ctx, big.NewInt(0))
	require.NoError(t, err)
	status, err = fake.WaitForFinality(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, FinalityReverted, status)
}

func TestFakeClientReadOnlyWithoutAccount(t *testing.T) {
	fake := NewFakeClient(FakeConfig{})
	_, err := fake.Approve(context.Background(), FakeDollar, FakeDiamond, big.NewInt(1))
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestFakeClientApproveSetsAllowance(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeClient(FakeConfig{Account: testAccount})

	_, err := fake.Approve(ctx, FakeDollar, FakeDiamond, big.NewInt(42))
	require.NoError(t, err)

	got, err := fake.Allowance(ctx, FakeDollar, testAccount, FakeDiamond)
	require.NoError(t, err)
	assert.Equal(t, "42", got.String())
}

func TestFakeClientStalledFinalityHonoursContext(t *testing.T) {
	fake := NewFakeClient(FakeConfig{Account: testAccount})
	fake.StallNext()
	hash, err := fake.CollectRedemption(context.Background(), big.NewInt(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = fake.WaitForFinality(ctx, hash)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFakeClientMineNotifiesSubscribers(t *testing.T) {
	fake := NewFakeClient(FakeConfig{StartBlock: 1000})
	ch := make(chan uint64, 1)
	sub, err := fake.SubscribeNewBlocks(context.Background(), ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	fake.Mine()
	assert.Equal(t, uint64(1001), <-ch)
}
