package calldata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

func EncodeTransfer(recipient common.Address, amount *big.Int) ([]byte, error) {
	return Encode(ERC20ABI, Request{FunctionName: "transfer", Args: []any{recipient, amount}})
}

func EncodeSwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) ([]byte, error) {
	if len(path) == 0 {
		return nil, clierr.New(clierr.CodeEncoding, "swap path must not be empty")
	}
	return Encode(SwapRouterABI, Request{
		FunctionName: "swapExactTokensForTokens",
		Args:         []any{amountIn, amountOutMin, path, recipient, deadline},
	})
}

func DecodeTransfer(data []byte) (common.Address, *big.Int, error) {
	d, err := decodeMethod(ERC20ABI, data, "transfer")
	if err != nil {
		return common.Address{}, nil, err
	}
	return d.Args[0].(common.Address), d.Args[1].(*big.Int), nil
}

// SwapArgs mirrors swapExactTokensForTokens inputs.
type SwapArgs struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     *big.Int
}

func DecodeSwapExactTokensForTokens(data []byte) (SwapArgs, error) {
	d, err := decodeMethod(SwapRouterABI, data, "swapExactTokensForTokens")
	if err != nil {
		return SwapArgs{}, err
	}
	return SwapArgs{
		AmountIn:     d.Args[0].(*big.Int),
		AmountOutMin: d.Args[1].(*big.Int),
		Path:         d.Args[2].([]common.Address),
		Recipient:    d.Args[3].(common.Address),
		Deadline:     d.Args[4].(*big.Int),
	}, nil
}
