package multisig

import (
	"bytes"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ggonzalez94/chedda-agent/internal/safeapi"
)

type ProposalStatus string

const (
	ProposalProposed  ProposalStatus = "proposed"
	ProposalConfirmed ProposalStatus = "confirmed"
	ProposalExecuted  ProposalStatus = "executed"
	ProposalAbandoned ProposalStatus = "abandoned"
)

type Signature struct {
	Signer    common.Address `json:"signer"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Proposal is a Safe transaction moving through
// proposed -> confirmed -> executed, or abandoned when another transaction
// consumed its nonce.
type Proposal struct {
	SafeAddress           common.Address `json:"safe_address"`
	To                    common.Address `json:"to"`
	Value                 *big.Int       `json:"value"`
	Data                  hexutil.Bytes  `json:"data"`
	Operation             uint8          `json:"operation"`
	SafeTxGas             *big.Int       `json:"safe_tx_gas"`
	BaseGas               *big.Int       `json:"base_gas"`
	GasPrice              *big.Int       `json:"gas_price"`
	GasToken              common.Address `json:"gas_token"`
	RefundReceiver        common.Address `json:"refund_receiver"`
	Nonce                 uint64         `json:"nonce"`
	TxHash                common.Hash    `json:"tx_hash"`
	Signatures            []Signature    `json:"signatures"`
	ConfirmationsRequired int            `json:"confirmations_required"`
	Status                ProposalStatus `json:"status"`
	ExecutionTxHash       string         `json:"execution_tx_hash,omitempty"`
}

func (p *Proposal) SafeTx() SafeTx {
	return SafeTx{
		To:             p.To,
		Value:          p.Value,
		Data:           p.Data,
		Operation:      p.Operation,
		SafeTxGas:      p.SafeTxGas,
		BaseGas:        p.BaseGas,
		GasPrice:       p.GasPrice,
		GasToken:       p.GasToken,
		RefundReceiver: p.RefundReceiver,
		Nonce:          new(big.Int).SetUint64(p.Nonce),
	}
}

func (p *Proposal) SignedBy(owner common.Address) bool {
	for _, s := range p.Signatures {
		if s.Signer == owner {
			return true
		}
	}
	return false
}

func (p *Proposal) refreshStatus() {
	if p.Status == ProposalExecuted || p.Status == ProposalAbandoned {
		return
	}
	if p.ConfirmationsRequired > 0 && len(p.Signatures) >= p.ConfirmationsRequired {
		p.Status = ProposalConfirmed
		return
	}
	p.Status = ProposalProposed
}

// PackedSignatures concatenates signatures ordered by signer ascending, the
// layout Safe.checkSignatures requires.
func (p *Proposal) PackedSignatures() []byte {
	sigs := append([]Signature(nil), p.Signatures...)
	sort.Slice(sigs, func(i, j int) bool {
		return bytes.Compare(sigs[i].Signer.Bytes(), sigs[j].Signer.Bytes()) < 0
	})
	out := make([]byte, 0, 65*len(sigs))
	for _, s := range sigs {
		out = append(out, s.Signature...)
	}
	return out
}

// fromService converts a service record; onChainNonce marks superseded
// transactions as abandoned.
func fromService(tx safeapi.Transaction, onChainNonce uint64) (*Proposal, error) {
	nonce, err := parseUint(tx.Nonce.String())
	if err != nil {
		return nil, err
	}
	p := &Proposal{
		SafeAddress:           common.HexToAddress(tx.Safe),
		To:                    common.HexToAddress(tx.To),
		Value:                 parseBig(tx.Value),
		Operation:             tx.Operation,
		SafeTxGas:             parseBig(tx.SafeTxGas.String()),
		BaseGas:               parseBig(tx.BaseGas.String()),
		GasPrice:              parseBig(tx.GasPrice),
		GasToken:              common.HexToAddress(tx.GasToken),
		RefundReceiver:        common.HexToAddress(tx.RefundReceiver),
		Nonce:                 nonce,
		TxHash:                common.HexToHash(tx.SafeTxHash),
		ConfirmationsRequired: tx.ConfirmationsRequired,
	}
	if tx.Data != nil {
		p.Data = common.FromHex(*tx.Data)
	}
	for _, c := range tx.Confirmations {
		p.Signatures = append(p.Signatures, Signature{
			Signer:    common.HexToAddress(c.Owner),
			Signature: common.FromHex(c.Signature),
		})
	}
	switch {
	case tx.IsExecuted:
		p.Status = ProposalExecuted
		if tx.TransactionHash != nil {
			p.ExecutionTxHash = *tx.TransactionHash
		}
	case nonce < onChainNonce:
		p.Status = ProposalAbandoned
	default:
		p.refreshStatus()
	}
	return p, nil
}

func parseBig(v string) *big.Int {
	out, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
	if !ok {
		return new(big.Int)
	}
	return out
}
