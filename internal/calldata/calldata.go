// Package calldata encodes and decodes contract calls for the ERC20, swap
// router, lending pool and Safe ABIs. Every function here is pure.
package calldata

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/registry"
)

var (
	ERC20ABI            = mustABI(registry.ERC20ABI)
	SwapRouterABI       = mustABI(registry.SwapRouterABI)
	LendingPoolABI      = mustABI(registry.LendingPoolABI)
	LendingPoolViewABI  = mustABI(registry.LendingPoolViewABI)
	SafeABI             = mustABI(registry.SafeABI)
	SafeProxyFactoryABI = mustABI(registry.SafeProxyFactoryABI)
)

// Request names a method and its arguments; it is consumed once by Encode.
type Request struct {
	FunctionName string
	Args         []any
}

// Response is an unsigned, unsent transaction intent.
type Response struct {
	To          common.Address `json:"to"`
	Data        hexutil.Bytes  `json:"data"`
	Description string         `json:"description"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		To          string `json:"to"`
		Data        string `json:"data"`
		Description string `json:"description"`
	}{r.To.Hex(), hexutil.Encode(r.Data), r.Description})
}

// Encode validates arity and Go types against the method inputs before packing.
func Encode(contract abi.ABI, req Request) ([]byte, error) {
	method, ok := contract.Methods[req.FunctionName]
	if !ok {
		return nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("unknown method %s", req.FunctionName))
	}
	if len(req.Args) != len(method.Inputs) {
		return nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("%s expects %d arguments, got %d", req.FunctionName, len(method.Inputs), len(req.Args)))
	}
	for i, input := range method.Inputs {
		arg := req.Args[i]
		if arg == nil {
			return nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("%s argument %s is nil", req.FunctionName, input.Name))
		}
		want := input.Type.GetType()
		if got := reflect.TypeOf(arg); got != want {
			return nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("%s argument %s: expected %s, got %s", req.FunctionName, input.Name, want, got))
		}
		if n, ok := arg.(*big.Int); ok {
			if n == nil || n.Sign() < 0 || n.BitLen() > input.Type.Size {
				return nil, clierr.New(clierr.CodeEncoding, fmt.Sprintf("%s argument %s out of range for %s", req.FunctionName, input.Name, input.Type.String()))
			}
		}
	}
	data, err := contract.Pack(req.FunctionName, req.Args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeEncoding, fmt.Sprintf("pack %s calldata", req.FunctionName), err)
	}
	return data, nil
}

// Decoded is a call decoded back into its method name and ordered arguments.
type Decoded struct {
	Method string
	Args   []any
}

func Decode(contract abi.ABI, data []byte) (Decoded, error) {
	if len(data) < 4 {
		return Decoded{}, clierr.New(clierr.CodeEncoding, "calldata shorter than a selector")
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return Decoded{}, clierr.Wrap(clierr.CodeEncoding, "unknown selector", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return Decoded{}, clierr.Wrap(clierr.CodeEncoding, fmt.Sprintf("unpack %s calldata", method.Name), err)
	}
	return Decoded{Method: method.Name, Args: args}, nil
}

// Selector returns the 4-byte selector of a method as 0x-hex.
func Selector(contract abi.ABI, name string) string {
	m, ok := contract.Methods[name]
	if !ok {
		return ""
	}
	return hexutil.Encode(m.ID)
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
