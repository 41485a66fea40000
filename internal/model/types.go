package model

import "time"

const EnvelopeVersion = "v1"

// Envelope wraps every CLI and HTTP response.
type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Network   string    `json:"network,omitempty"`
	ActionID  string    `json:"action_id,omitempty"`
}

// VaultEntry is one row of the vault registry listing.
type VaultEntry struct {
	Network      string `json:"network"`
	Category     string `json:"category"`
	Vault        string `json:"vault"`
	DepositToken string `json:"deposit_token"`
	TokenAddress string `json:"token_address"`
	Decimals     int    `json:"decimals"`
}

// ActionInfo describes a dispatchable action for listings.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Mutating    bool   `json:"mutating"`
}

// MultisigPrediction is the counterfactual address of a pair's multisig.
type MultisigPrediction struct {
	Network   string   `json:"network"`
	Address   string   `json:"address"`
	Owners    []string `json:"owners"`
	Threshold int      `json:"threshold"`
	SaltNonce string   `json:"salt_nonce"`
	Deployed  bool     `json:"deployed"`
}
