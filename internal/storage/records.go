package storage

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MultisigWallet is the persisted association between an (agent, user)
// pair and the Safe deployed for it. Owners are ordered agent, user,
// coordinator and never change after creation.
type MultisigWallet struct {
	Network          string           `json:"network"`
	Address          common.Address   `json:"address"`
	AgentAddress     common.Address   `json:"agent_address"`
	UserAddress      common.Address   `json:"user_address"`
	Owners           []common.Address `json:"owners"`
	Threshold        int              `json:"threshold"`
	AgentID          string           `json:"agent_id,omitempty"`
	SaltNonce        string           `json:"salt_nonce"`
	DeploymentTxHash string           `json:"deployment_tx_hash,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

func (m *MultisigWallet) Validate() error {
	if m == nil || strings.TrimSpace(m.Network) == "" {
		return ErrInvalidInput
	}
	if m.Address == (common.Address{}) || m.AgentAddress == (common.Address{}) || m.UserAddress == (common.Address{}) {
		return ErrInvalidInput
	}
	if m.Threshold < 1 || m.Threshold > len(m.Owners) {
		return ErrInvalidInput
	}
	return nil
}

// Agent is a registered agent runtime identity.
type Agent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Address   common.Address `json:"address"`
	CreatedAt time.Time      `json:"created_at"`
}

func (a *Agent) Validate() error {
	if a == nil || strings.TrimSpace(a.ID) == "" || a.Address == (common.Address{}) {
		return ErrInvalidInput
	}
	return nil
}

// PairKey is the canonical uniqueness key of a multisig.
func PairKey(network string, agent, user common.Address) string {
	return strings.ToLower(network + ":" + agent.Hex() + ":" + user.Hex())
}

// JoinOwners and SplitOwners convert owner lists for column storage.
func JoinOwners(owners []common.Address) string {
	parts := make([]string, len(owners))
	for i, o := range owners {
		parts[i] = o.Hex()
	}
	return strings.Join(parts, ",")
}

func SplitOwners(raw string) []common.Address {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]common.Address, 0, len(parts))
	for _, p := range parts {
		out = append(out, common.HexToAddress(strings.TrimSpace(p)))
	}
	return out
}
