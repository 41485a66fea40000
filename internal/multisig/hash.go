package multisig

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

// OperationCall is the only Safe operation the orchestrator proposes.
const OperationCall uint8 = 0

// SafeTx holds the fields covered by the Safe transaction hash.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

var safeTxTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"SafeTx": {
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "operation", Type: "uint8"},
		{Name: "safeTxGas", Type: "uint256"},
		{Name: "baseGas", Type: "uint256"},
		{Name: "gasPrice", Type: "uint256"},
		{Name: "gasToken", Type: "address"},
		{Name: "refundReceiver", Type: "address"},
		{Name: "nonce", Type: "uint256"},
	},
}

// TxHash returns the EIP-712 SafeTx hash that owners sign for safe on chainID.
func TxHash(chainID int64, safe common.Address, tx SafeTx) (common.Hash, error) {
	typed := apitypes.TypedData{
		Types:       safeTxTypes,
		PrimaryType: "SafeTx",
		Domain: apitypes.TypedDataDomain{
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: safe.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"to":             tx.To.Hex(),
			"value":          hexOrDecimal(tx.Value),
			"data":           hexutil.Encode(nonNilBytes(tx.Data)),
			"operation":      math.NewHexOrDecimal256(int64(tx.Operation)),
			"safeTxGas":      hexOrDecimal(tx.SafeTxGas),
			"baseGas":        hexOrDecimal(tx.BaseGas),
			"gasPrice":       hexOrDecimal(tx.GasPrice),
			"gasToken":       tx.GasToken.Hex(),
			"refundReceiver": tx.RefundReceiver.Hex(),
			"nonce":          hexOrDecimal(tx.Nonce),
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeEncoding, "hash safe transaction", err)
	}
	return common.BytesToHash(hash), nil
}

func hexOrDecimal(v *big.Int) *math.HexOrDecimal256 {
	if v == nil {
		v = new(big.Int)
	}
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
