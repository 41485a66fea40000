package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

// Call packs method, reads it from to and unpacks the outputs.
func Call(ctx context.Context, r Reader, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeEncoding, fmt.Sprintf("pack %s", method), err)
	}
	out, err := r.ReadContract(ctx, to, data)
	if err != nil {
		return nil, err
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainCall, fmt.Sprintf("decode %s result from %s", method, to.Hex()), err)
	}
	return values, nil
}
