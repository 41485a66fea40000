package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/logging"
	"github.com/ggonzalez94/chedda-agent/internal/wallet"
)

var log = logging.Logger("execution")

// Journal persists action state after every transition. Store implements it.
type Journal interface {
	Save(action Action) error
}

// Encode records the call produced for a validated action.
func (a *Action) Encode(target common.Address, data []byte, value *big.Int, description string) error {
	if value == nil {
		value = new(big.Int)
	}
	a.Target = target.Hex()
	a.Data = hexutil.Encode(data)
	a.Value = value.String()
	a.Description = description
	return a.transition(ActionStatusEncoded)
}

// Fail marks a non-terminal action failed with msg.
func (a *Action) Fail(msg string) {
	if a.Terminal() {
		return
	}
	a.Status = ActionStatusFailed
	a.Error = msg
	a.Touch()
}

// Submit broadcasts an encoded action from the provider's signer and waits
// for its receipt. The journal sees SUBMITTED before the wait begins so an
// interrupted wait still leaves the tx hash on record.
func Submit(ctx context.Context, journal Journal, action *Action, provider wallet.Provider) (*types.Receipt, error) {
	if action == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing action")
	}
	if provider == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing wallet provider")
	}
	if action.Status != ActionStatusEncoded {
		return nil, clierr.New(clierr.CodeUsage, "action must be encoded before submission")
	}
	target := common.HexToAddress(action.Target)
	data, err := hexutil.Decode(action.Data)
	if err != nil {
		return nil, fail(journal, action, clierr.Wrap(clierr.CodeEncoding, "decode journaled calldata", err))
	}
	value, ok := new(big.Int).SetString(action.Value, 10)
	if !ok {
		return nil, fail(journal, action, clierr.New(clierr.CodeEncoding, "invalid journaled value"))
	}
	if err := validateCallPolicy(action, target, data); err != nil {
		return nil, fail(journal, action, err)
	}
	action.FromAddress = provider.Address().Hex()

	hash, err := provider.SendTransaction(ctx, wallet.TxRequest{To: target, Value: value, Data: data})
	if err != nil {
		return nil, fail(journal, action, err)
	}
	action.TxHash = hash.Hex()
	_ = action.transition(ActionStatusSubmitted)
	save(journal, action)

	receipt, err := provider.WaitForTransactionReceipt(ctx, hash)
	if err != nil {
		return receipt, fail(journal, action, err)
	}
	_ = action.transition(ActionStatusConfirmed)
	save(journal, action)
	return receipt, nil
}

func fail(journal Journal, action *Action, err error) error {
	action.Fail(err.Error())
	save(journal, action)
	return err
}

func save(journal Journal, action *Action) {
	if journal == nil {
		return
	}
	if err := journal.Save(*action); err != nil {
		log.Warnw("journal save failed", "action", action.ActionID, "status", action.Status, "err", err)
	}
}
