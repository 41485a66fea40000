package safeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/chedda-agent/internal/httpx"
)

var testSafe = common.HexToAddress("0x00000000000000000000000000000000000000dd")

func TestProposeTransactionPostsBody(t *testing.T) {
	var got ProposeRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(httpx.New(2*time.Second, 0), srv.URL+"/")
	req := ProposeRequest{
		To:                      "0x00000000000000000000000000000000000000ee",
		Value:                   "0",
		Data:                    "0x1234",
		SafeTxGas:               "0",
		BaseGas:                 "0",
		GasPrice:                "0",
		GasToken:                common.Address{}.Hex(),
		RefundReceiver:          common.Address{}.Hex(),
		Nonce:                   4,
		ContractTransactionHash: "0xabc",
		Sender:                  "0x00000000000000000000000000000000000000cc",
		Signature:               "0xsig",
	}
	if err := client.ProposeTransaction(context.Background(), testSafe, req); err != nil {
		t.Fatalf("ProposeTransaction failed: %v", err)
	}
	if path != "/api/v1/safes/"+testSafe.Hex()+"/multisig-transactions/" {
		t.Fatalf("unexpected path %s", path)
	}
	if got.Nonce != 4 || got.ContractTransactionHash != "0xabc" || got.Sender != req.Sender {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestPendingTransactionsFiltersExecuted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("executed") != "false" {
			t.Errorf("expected executed=false filter, got %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"count":2,"results":[
			{"safe":"0xdd","to":"0xee","value":"0","data":"0x12","operation":0,"safeTxGas":0,"baseGas":0,"gasPrice":"0","nonce":3,"safeTxHash":"0x01","isExecuted":false,"confirmationsRequired":3,"confirmations":[{"owner":"0xcc","signature":"0xaa"}]},
			{"safe":"0xdd","to":"0xee","value":"0","data":null,"operation":0,"safeTxGas":"0","baseGas":"0","gasPrice":"0","nonce":"2","safeTxHash":"0x02","isExecuted":true,"confirmationsRequired":3,"confirmations":[]}
		]}`))
	}))
	defer srv.Close()

	client := New(httpx.New(2*time.Second, 0), srv.URL)
	pending, err := client.PendingTransactions(context.Background(), testSafe)
	if err != nil {
		t.Fatalf("PendingTransactions failed: %v", err)
	}
	if len(pending) != 1 || pending[0].SafeTxHash != "0x01" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}
	if pending[0].Nonce.String() != "3" || len(pending[0].Confirmations) != 1 {
		t.Fatalf("unexpected decoded transaction: %+v", pending[0])
	}
}

func TestConfirmTransaction(t *testing.T) {
	hash := common.HexToHash("0x" + strings.Repeat("ab", 32))
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/multisig-transactions/"+hash.Hex()+"/confirmations/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := New(httpx.New(2*time.Second, 0), srv.URL)
	if err := client.ConfirmTransaction(context.Background(), hash, []byte{0x01, 0x1f}); err != nil {
		t.Fatalf("ConfirmTransaction failed: %v", err)
	}
	if body["signature"] != "0x011f" {
		t.Fatalf("unexpected signature body: %v", body)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(httpx.New(2*time.Second, 0), srv.URL)
	_, err := client.GetTransaction(context.Background(), common.HexToHash("0x01"))
	if !httpx.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
