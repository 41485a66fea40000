package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/execution/signer"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/logging"
	"github.com/ggonzalez94/chedda-agent/internal/metrics"
)

var log = logging.Logger("wallet")

type Options struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
	GasMultiplier  float64
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   2 * time.Second,
		ReceiptTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
	}
}

// EVM is a Provider backed by a JSON-RPC endpoint. A nil signer yields a
// read-only provider.
type EVM struct {
	client  *ethclient.Client
	network id.Network
	chainID *big.Int
	signer  signer.Signer
	opts    Options
}

// Dial connects to rpcURL and checks that it serves network.
func Dial(ctx context.Context, rpcURL string, network id.Network, txSigner signer.Signer, opts Options) (*EVM, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	started := time.Now()
	chainID, err := client.ChainID(ctx)
	metrics.ObserveChainCall("eth_chainId", started, err)
	if err != nil {
		client.Close()
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if chainID.Int64() != network.ChainID {
		client.Close()
		got := fmt.Sprintf("eip155:%d", chainID.Int64())
		if n, ok := id.NetworkByChainID(chainID.Int64()); ok {
			got = n.Slug
		}
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc chain mismatch: expected %s, got %s", network.Slug, got))
	}
	return &EVM{client: client, network: network, chainID: chainID, signer: txSigner, opts: opts}, nil
}

func (e *EVM) Close() {
	if e != nil && e.client != nil {
		e.client.Close()
	}
}

func (e *EVM) Network() id.Network { return e.network }

func (e *EVM) Address() common.Address {
	if e.signer == nil {
		return common.Address{}
	}
	return e.signer.Address()
}

func (e *EVM) ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{From: e.Address(), To: &to, Data: data}
	started := time.Now()
	out, err := e.client.CallContract(ctx, msg, nil)
	metrics.ObserveChainCall("eth_call", started, err)
	if err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeChainCall, fmt.Sprintf("read contract %s", to.Hex()), err)
	}
	return out, nil
}

func (e *EVM) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	started := time.Now()
	code, err := e.client.CodeAt(ctx, addr, nil)
	metrics.ObserveChainCall("eth_getCode", started, err)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainCall, fmt.Sprintf("read code at %s", addr.Hex()), err)
	}
	return code, nil
}

// SendTransaction signs and broadcasts req as an EIP-1559 transaction.
func (e *EVM) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if e.signer == nil {
		return common.Hash{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	from := e.signer.Address()
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: req.Data}

	unlock := acquireSignerNonceLock(e.chainID, from)
	defer unlock()

	started := time.Now()
	gasLimit, err := e.client.EstimateGas(ctx, msg)
	metrics.ObserveChainCall("eth_estimateGas", started, err)
	if err != nil {
		return common.Hash{}, wrapEVMExecutionError(clierr.CodeChainCall, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * e.opts.GasMultiplier)

	tipCap, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := e.signer.SignTx(e.chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	started = time.Now()
	err = e.client.SendTransaction(ctx, signed)
	metrics.ObserveChainCall("eth_sendRawTransaction", started, err)
	if err != nil {
		return common.Hash{}, wrapEVMExecutionError(clierr.CodeChainCall, "broadcast transaction", err)
	}
	log.Debugw("transaction broadcast", "hash", signed.Hash().Hex(), "from", from.Hex(), "to", to.Hex(), "nonce", nonce)
	return signed.Hash(), nil
}

// WaitForTransactionReceipt polls until the receipt is available. A reverted
// receipt is returned together with a CodeReverted error; running out of
// time yields CodeReceiptTimeout.
func (e *EVM) WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := e.client.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				metrics.TransactionsTotal.WithLabelValues("confirmed").Inc()
				return receipt, nil
			}
			metrics.TransactionsTotal.WithLabelValues("reverted").Inc()
			return receipt, clierr.New(clierr.CodeReverted, fmt.Sprintf("transaction %s reverted on-chain", hash.Hex()))
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			log.Debugw("receipt poll failed", "hash", hash.Hex(), "err", err)
		}
		select {
		case <-waitCtx.Done():
			metrics.TransactionsTotal.WithLabelValues("timeout").Inc()
			return nil, clierr.Wrap(clierr.CodeReceiptTimeout, fmt.Sprintf("timed out waiting for receipt of %s", hash.Hex()), waitCtx.Err())
		case <-ticker.C:
		}
	}
}
