// Package safeapi is a client for the Safe Transaction Service, which stores
// multisig proposals and collects owner confirmations off-chain.
package safeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/httpx"
)

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

// ProposeRequest is the body of a new multisig transaction. Numeric fields
// are decimal strings; Signature is the proposer's owner signature.
type ProposeRequest struct {
	To                      string `json:"to"`
	Value                   string `json:"value"`
	Data                    string `json:"data"`
	Operation               uint8  `json:"operation"`
	SafeTxGas               string `json:"safeTxGas"`
	BaseGas                 string `json:"baseGas"`
	GasPrice                string `json:"gasPrice"`
	GasToken                string `json:"gasToken"`
	RefundReceiver          string `json:"refundReceiver"`
	Nonce                   uint64 `json:"nonce"`
	ContractTransactionHash string `json:"contractTransactionHash"`
	Sender                  string `json:"sender"`
	Signature               string `json:"signature"`
	Origin                  string `json:"origin,omitempty"`
}

type Confirmation struct {
	Owner          string `json:"owner"`
	Signature      string `json:"signature"`
	SignatureType  string `json:"signatureType,omitempty"`
	SubmissionDate string `json:"submissionDate,omitempty"`
}

// Transaction is a multisig transaction as reported by the service.
type Transaction struct {
	Safe                  string         `json:"safe"`
	To                    string         `json:"to"`
	Value                 string         `json:"value"`
	Data                  *string        `json:"data"`
	Operation             uint8          `json:"operation"`
	SafeTxGas             json.Number    `json:"safeTxGas"`
	BaseGas               json.Number    `json:"baseGas"`
	GasPrice              string         `json:"gasPrice"`
	GasToken              string         `json:"gasToken"`
	RefundReceiver        string         `json:"refundReceiver"`
	Nonce                 json.Number    `json:"nonce"`
	SafeTxHash            string         `json:"safeTxHash"`
	IsExecuted            bool           `json:"isExecuted"`
	ConfirmationsRequired int            `json:"confirmationsRequired"`
	Confirmations         []Confirmation `json:"confirmations"`
	TransactionHash       *string        `json:"transactionHash"`
	SubmissionDate        string         `json:"submissionDate,omitempty"`
}

type page struct {
	Count   int           `json:"count"`
	Results []Transaction `json:"results"`
}

func (c *Client) ProposeTransaction(ctx context.Context, safe common.Address, req ProposeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "marshal proposal", err)
	}
	endpoint := fmt.Sprintf("%s/api/v1/safes/%s/multisig-transactions/", c.baseURL, safe.Hex())
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, endpoint, body, nil, nil); err != nil {
		return fmt.Errorf("propose transaction %s: %w", req.ContractTransactionHash, err)
	}
	return nil
}

// PendingTransactions lists unexecuted transactions for safe, ordered by
// nonce ascending.
func (c *Client) PendingTransactions(ctx context.Context, safe common.Address) ([]Transaction, error) {
	q := url.Values{}
	q.Set("executed", "false")
	q.Set("ordering", "nonce")
	endpoint := fmt.Sprintf("%s/api/v1/safes/%s/multisig-transactions/?%s", c.baseURL, safe.Hex(), q.Encode())
	var out page
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, endpoint, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	pending := make([]Transaction, 0, len(out.Results))
	for _, tx := range out.Results {
		if !tx.IsExecuted {
			pending = append(pending, tx)
		}
	}
	return pending, nil
}

func (c *Client) ConfirmTransaction(ctx context.Context, safeTxHash common.Hash, signature []byte) error {
	body, err := json.Marshal(map[string]string{"signature": "0x" + common.Bytes2Hex(signature)})
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "marshal confirmation", err)
	}
	endpoint := fmt.Sprintf("%s/api/v1/multisig-transactions/%s/confirmations/", c.baseURL, safeTxHash.Hex())
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, endpoint, body, nil, nil); err != nil {
		return fmt.Errorf("confirm transaction %s: %w", safeTxHash.Hex(), err)
	}
	return nil
}

func (c *Client) GetTransaction(ctx context.Context, safeTxHash common.Hash) (*Transaction, error) {
	endpoint := fmt.Sprintf("%s/api/v1/multisig-transactions/%s/", c.baseURL, safeTxHash.Hex())
	var out Transaction
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodGet, endpoint, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", safeTxHash.Hex(), err)
	}
	return &out, nil
}
