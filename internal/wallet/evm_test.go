package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution/signer"
	"github.com/ggonzalez94/chedda-agent/internal/id"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

type walletRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type fakeChain struct {
	mu             sync.Mutex
	chainID        string
	receiptStatus  string
	receiptMissing bool
	callResult     string
	code           string
	rawTxs         []string
}

func (f *fakeChain) serve(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req walletRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch req.Method {
		case "eth_chainId":
			writeRPCResult(t, w, req.ID, f.chainID)
		case "eth_call":
			writeRPCResult(t, w, req.ID, f.callResult)
		case "eth_getCode":
			writeRPCResult(t, w, req.ID, f.code)
		case "eth_estimateGas":
			writeRPCResult(t, w, req.ID, "0x5208")
		case "eth_maxPriorityFeePerGas":
			writeRPCResult(t, w, req.ID, "0x77359400")
		case "eth_getBlockByNumber":
			writeRPCResult(t, w, req.ID, testHeader())
		case "eth_getTransactionCount":
			writeRPCResult(t, w, req.ID, "0x7")
		case "eth_sendRawTransaction":
			var raw string
			_ = json.Unmarshal(req.Params[0], &raw)
			f.rawTxs = append(f.rawTxs, raw)
			writeRPCResult(t, w, req.ID, "0x"+strings.Repeat("ab", 32))
		case "eth_getTransactionReceipt":
			if f.receiptMissing {
				writeRPCResult(t, w, req.ID, nil)
				return
			}
			var hash string
			_ = json.Unmarshal(req.Params[0], &hash)
			writeRPCResult(t, w, req.ID, testReceipt(hash, f.receiptStatus))
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}))
}

func testHeader() map[string]any {
	zeroHash := "0x" + strings.Repeat("00", 32)
	return map[string]any{
		"parentHash":       zeroHash,
		"sha3Uncles":       zeroHash,
		"miner":            "0x0000000000000000000000000000000000000000",
		"stateRoot":        zeroHash,
		"transactionsRoot": zeroHash,
		"receiptsRoot":     zeroHash,
		"logsBloom":        "0x" + strings.Repeat("00", 256),
		"difficulty":       "0x0",
		"number":           "0x10",
		"gasLimit":         "0x1c9c380",
		"gasUsed":          "0x0",
		"timestamp":        "0x6553f100",
		"extraData":        "0x",
		"mixHash":          zeroHash,
		"nonce":            "0x0000000000000000",
		"baseFeePerGas":    "0x3b9aca00",
	}
}

func testReceipt(hash, status string) map[string]any {
	return map[string]any{
		"transactionHash":   hash,
		"status":            status,
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"logsBloom":         "0x" + strings.Repeat("00", 256),
		"logs":              []any{},
		"type":              "0x2",
	}
}

func writeRPCResult(t *testing.T, w http.ResponseWriter, id json.RawMessage, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"jsonrpc": "2.0", "id": decodeRPCID(id), "result": result}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encode rpc result: %v", err)
	}
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      decodeRPCID(id),
		"error":   map[string]any{"code": code, "message": message},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func decodeRPCID(raw json.RawMessage) any {
	if len(raw) == 0 {
		return 1
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return 1
	}
	return out
}

func baseSepolia(t *testing.T) id.Network {
	t.Helper()
	n, err := id.ParseNetwork("base-sepolia")
	if err != nil {
		t.Fatalf("ParseNetwork failed: %v", err)
	}
	return n
}

func testSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return s
}

func fastOptions() Options {
	return Options{PollInterval: 5 * time.Millisecond, ReceiptTimeout: 200 * time.Millisecond, GasMultiplier: 1.2}
}

func TestDialRejectsChainMismatch(t *testing.T) {
	chain := &fakeChain{chainID: "0x1"}
	srv := chain.serve(t)
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, baseSepolia(t), nil, fastOptions())
	if err == nil || !strings.Contains(err.Error(), "chain mismatch") {
		t.Fatalf("expected chain mismatch error, got %v", err)
	}
}

func TestReadContractAndCall(t *testing.T) {
	chain := &fakeChain{chainID: "0x14a34", callResult: hexutil.Encode(common.LeftPadBytes(big.NewInt(1_500_000).Bytes(), 32))}
	srv := chain.serve(t)
	defer srv.Close()

	p, err := Dial(context.Background(), srv.URL, baseSepolia(t), nil, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer p.Close()
	if p.Address() != (common.Address{}) {
		t.Fatal("read-only provider must report the zero address")
	}

	erc20 := mustERC20(t)
	out, err := Call(context.Background(), p, erc20, common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), "balanceOf", common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok || bal.Int64() != 1_500_000 {
		t.Fatalf("unexpected balance output: %#v", out)
	}
}

func TestSendTransactionWithoutSigner(t *testing.T) {
	chain := &fakeChain{chainID: "0x14a34"}
	srv := chain.serve(t)
	defer srv.Close()

	p, err := Dial(context.Background(), srv.URL, baseSepolia(t), nil, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer p.Close()
	_, err = p.SendTransaction(context.Background(), TxRequest{To: common.HexToAddress("0x01")})
	if !clierr.IsCode(err, clierr.CodeSigner) {
		t.Fatalf("expected signer error, got %v", err)
	}
}

func TestSendTransactionBuildsDynamicFeeTx(t *testing.T) {
	chain := &fakeChain{chainID: "0x14a34", receiptStatus: "0x1"}
	srv := chain.serve(t)
	defer srv.Close()

	s := testSigner(t)
	p, err := Dial(context.Background(), srv.URL, baseSepolia(t), s, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer p.Close()

	target := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	hash, err := p.SendTransaction(context.Background(), TxRequest{To: target, Data: []byte{0xa9, 0x05, 0x9c, 0xbb}})
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	if len(chain.rawTxs) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(chain.rawTxs))
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(common.FromHex(chain.rawTxs[0])); err != nil {
		t.Fatalf("decode raw tx: %v", err)
	}
	if tx.Hash() != hash {
		t.Fatalf("returned hash %s does not match broadcast %s", hash.Hex(), tx.Hash().Hex())
	}
	if tx.Nonce() != 7 {
		t.Fatalf("expected pending nonce 7, got %d", tx.Nonce())
	}
	if tx.Gas() != 25_200 {
		t.Fatalf("expected gas limit 25200, got %d", tx.Gas())
	}
	if tx.GasFeeCap().Int64() != 4_000_000_000 {
		t.Fatalf("expected fee cap 4 gwei, got %s", tx.GasFeeCap())
	}
	if tx.ChainId().Int64() != 84532 {
		t.Fatalf("unexpected chain id %s", tx.ChainId())
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), &tx)
	if err != nil || from != s.Address() {
		t.Fatalf("unexpected sender %s (%v)", from.Hex(), err)
	}

	receipt, err := p.WaitForTransactionReceipt(context.Background(), hash)
	if err != nil {
		t.Fatalf("WaitForTransactionReceipt failed: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("unexpected receipt status %d", receipt.Status)
	}
}

func TestWaitDistinguishesRevertFromTimeout(t *testing.T) {
	chain := &fakeChain{chainID: "0x14a34", receiptStatus: "0x0"}
	srv := chain.serve(t)
	defer srv.Close()

	p, err := Dial(context.Background(), srv.URL, baseSepolia(t), testSigner(t), fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer p.Close()
	hash := common.HexToHash("0x" + strings.Repeat("cd", 32))

	receipt, err := p.WaitForTransactionReceipt(context.Background(), hash)
	if !clierr.IsCode(err, clierr.CodeReverted) {
		t.Fatalf("expected revert error, got %v", err)
	}
	if receipt == nil {
		t.Fatal("expected reverted receipt to be returned")
	}

	chain.mu.Lock()
	chain.receiptMissing = true
	chain.mu.Unlock()
	_, err = p.WaitForTransactionReceipt(context.Background(), hash)
	if !clierr.IsCode(err, clierr.CodeReceiptTimeout) {
		t.Fatalf("expected receipt timeout, got %v", err)
	}
}

func TestCodeAt(t *testing.T) {
	chain := &fakeChain{chainID: "0x14a34", code: "0x6080"}
	srv := chain.serve(t)
	defer srv.Close()

	p, err := Dial(context.Background(), srv.URL, baseSepolia(t), nil, fastOptions())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer p.Close()
	code, err := p.CodeAt(context.Background(), common.HexToAddress("0x01"))
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	if len(code) != 2 {
		t.Fatalf("unexpected code %x", code)
	}
}
