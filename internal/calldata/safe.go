package calldata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

// EncodeSafeSetup builds the Safe initializer with no module setup and no
// deployment payment.
func EncodeSafeSetup(owners []common.Address, threshold *big.Int, fallbackHandler common.Address) ([]byte, error) {
	if len(owners) == 0 {
		return nil, clierr.New(clierr.CodeEncoding, "safe setup requires at least one owner")
	}
	if threshold == nil || threshold.Sign() <= 0 || threshold.Cmp(big.NewInt(int64(len(owners)))) > 0 {
		return nil, clierr.New(clierr.CodeEncoding, "safe threshold must be between 1 and the owner count")
	}
	return Encode(SafeABI, Request{
		FunctionName: "setup",
		Args: []any{
			owners,
			threshold,
			common.Address{},
			[]byte{},
			fallbackHandler,
			common.Address{},
			big.NewInt(0),
			common.Address{},
		},
	})
}

func EncodeCreateProxyWithNonce(singleton common.Address, initializer []byte, saltNonce *big.Int) ([]byte, error) {
	return Encode(SafeProxyFactoryABI, Request{
		FunctionName: "createProxyWithNonce",
		Args:         []any{singleton, initializer, saltNonce},
	})
}

// ExecArgs are the execTransaction fields of a fully signed Safe transaction.
type ExecArgs struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Signatures     []byte
}

func EncodeExecTransaction(args ExecArgs) ([]byte, error) {
	data := args.Data
	if data == nil {
		data = []byte{}
	}
	return Encode(SafeABI, Request{
		FunctionName: "execTransaction",
		Args: []any{
			args.To,
			orZero(args.Value),
			data,
			args.Operation,
			orZero(args.SafeTxGas),
			orZero(args.BaseGas),
			orZero(args.GasPrice),
			args.GasToken,
			args.RefundReceiver,
			args.Signatures,
		},
	})
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
