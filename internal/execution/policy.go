package execution

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/calldata"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
)

// directMethods lists, per journaled action name, the only method a direct
// submission may call.
var directMethods = map[string][]byte{
	"transfer": calldata.ERC20ABI.Methods["transfer"].ID,
}

func validateCallPolicy(action *Action, target common.Address, data []byte) error {
	if target == (common.Address{}) {
		return clierr.New(clierr.CodeUsage, "direct submission target is the zero address")
	}
	selector, ok := directMethods[action.Name]
	if !ok {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("action %s is not allowed to submit directly", action.Name))
	}
	if len(data) < 4 || !bytes.Equal(data[:4], selector) {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("action %s calldata does not match its allowed method", action.Name))
	}
	return nil
}
