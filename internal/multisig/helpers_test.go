package multisig

import (
	"encoding/json"
	"fmt"

	"github.com/ggonzalez94/chedda-agent/internal/safeapi"
)

func serviceTx(nonce string, required, confirmations int) safeapi.Transaction {
	tx := safeapi.Transaction{
		Safe:                  "0x5aFE3855358E112B5647B952709E6165e1c1eEEe",
		To:                    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Value:                 "0",
		SafeTxGas:             json.Number("0"),
		BaseGas:               json.Number("0"),
		GasPrice:              "0",
		Nonce:                 json.Number(nonce),
		ConfirmationsRequired: required,
	}
	for i := 0; i < confirmations; i++ {
		tx.Confirmations = append(tx.Confirmations, safeapi.Confirmation{Owner: fmt.Sprintf("0x%040x", i+1), Signature: "0x00"})
	}
	return tx
}
