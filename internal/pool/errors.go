package pool

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrReadOnly = errors.New("client is read-only")

// GenericFailure is shown when an error carries no usable message.
const GenericFailure = "transaction failed"

// ShortMessage picks the most specific user-facing text for a failed chain call:
// a decoded revert reason, then the node's RPC message, then the error itself.
func ShortMessage(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := revertReason(dataErr.ErrorData()); ok {
			return "execution reverted: " + reason
		}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if msg := strings.TrimSpace(rpcErr.Error()); msg != "" {
			return msg
		}
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return GenericFailure
}

func revertReason(data interface{}) (string, bool) {
	hexData, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil || reason == "" {
		return "", false
	}
	return reason, true
}
