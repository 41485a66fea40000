package calldata

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

func EncodeSupply(amount *big.Int, receiver common.Address, useAsCollateral bool) ([]byte, error) {
	return Encode(LendingPoolABI, Request{FunctionName: "supply", Args: []any{amount, receiver, useAsCollateral}})
}

func EncodeWithdraw(amount *big.Int, receiver, owner common.Address) ([]byte, error) {
	return Encode(LendingPoolABI, Request{FunctionName: "withdraw", Args: []any{amount, receiver, owner}})
}

// EncodeBorrow targets the pool's take(uint256).
func EncodeBorrow(amount *big.Int) ([]byte, error) {
	return Encode(LendingPoolABI, Request{FunctionName: "take", Args: []any{amount}})
}

// EncodeRepay targets the pool's putAmount(uint256).
func EncodeRepay(amount *big.Int) ([]byte, error) {
	return Encode(LendingPoolABI, Request{FunctionName: "putAmount", Args: []any{amount}})
}

func DecodeSupply(data []byte) (*big.Int, common.Address, bool, error) {
	d, err := decodeMethod(LendingPoolABI, data, "supply")
	if err != nil {
		return nil, common.Address{}, false, err
	}
	return d.Args[0].(*big.Int), d.Args[1].(common.Address), d.Args[2].(bool), nil
}

func DecodeWithdraw(data []byte) (*big.Int, common.Address, common.Address, error) {
	d, err := decodeMethod(LendingPoolABI, data, "withdraw")
	if err != nil {
		return nil, common.Address{}, common.Address{}, err
	}
	return d.Args[0].(*big.Int), d.Args[1].(common.Address), d.Args[2].(common.Address), nil
}

// DecodeAmountCall decodes take or putAmount and reports which one it was.
func DecodeAmountCall(data []byte) (string, *big.Int, error) {
	d, err := Decode(LendingPoolABI, data)
	if err != nil {
		return "", nil, err
	}
	if d.Method != "take" && d.Method != "putAmount" {
		return "", nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("unexpected method %s", d.Method))
	}
	return d.Method, d.Args[0].(*big.Int), nil
}

func decodeMethod(contract abi.ABI, data []byte, name string) (Decoded, error) {
	d, err := Decode(contract, data)
	if err != nil {
		return Decoded{}, err
	}
	if d.Method != name {
		return Decoded{}, clierr.New(clierr.CodeEncoding, fmt.Sprintf("expected %s calldata, got %s", name, d.Method))
	}
	return d, nil
}
