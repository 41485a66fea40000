// Package wallettest provides an in-memory chain for tests of code that
// takes a wallet.Provider.
package wallettest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/ggonzalez94/chedda-agent/internal/errors"
	"github.com/ggonzalez94/chedda-agent/internal/id"
	"github.com/ggonzalez94/chedda-agent/internal/wallet"
)

// ReadFunc answers a view call with the method's output values.
type ReadFunc func(args []any) ([]any, error)

// SendFunc executes a transaction. A non-nil error reverts it.
type SendFunc func(from common.Address, args []any) ([]*types.Log, error)

type route struct {
	method abi.Method
	read   ReadFunc
	send   SendFunc
}

// Chain implements wallet.Provider and wallet.CodeReader. Every sent
// transaction is mined immediately.
type Chain struct {
	mu       sync.Mutex
	network  id.Network
	from     common.Address
	code     map[common.Address][]byte
	routes   map[string]route
	receipts map[common.Hash]*types.Receipt
	sent     []wallet.TxRequest
	nonce    uint64
}

var (
	_ wallet.Provider   = (*Chain)(nil)
	_ wallet.CodeReader = (*Chain)(nil)
)

func New(network id.Network, from common.Address) *Chain {
	return &Chain{
		network:  network,
		from:     from,
		code:     make(map[common.Address][]byte),
		routes:   make(map[string]route),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func routeKey(to common.Address, selector []byte) string {
	return to.Hex() + fmt.Sprintf("%x", selector)
}

// HandleRead answers view calls of method on to.
func (c *Chain) HandleRead(to common.Address, contract abi.ABI, method string, fn ReadFunc) {
	m := contract.Methods[method]
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[routeKey(to, m.ID)] = route{method: m, read: fn}
}

// HandleSend executes transactions calling method on to.
func (c *Chain) HandleSend(to common.Address, contract abi.ABI, method string, fn SendFunc) {
	m := contract.Methods[method]
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[routeKey(to, m.ID)] = route{method: m, send: fn}
}

func (c *Chain) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = append([]byte(nil), code...)
}

// Sent returns the transactions broadcast so far.
func (c *Chain) Sent() []wallet.TxRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wallet.TxRequest(nil), c.sent...)
}

// SentTo counts broadcasts addressed to to.
func (c *Chain) SentTo(to common.Address) int {
	n := 0
	for _, tx := range c.Sent() {
		if tx.To == to {
			n++
		}
	}
	return n
}

func (c *Chain) Network() id.Network { return c.network }

func (c *Chain) Address() common.Address { return c.from }

func (c *Chain) CodeAt(_ context.Context, addr common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.code[addr]...), nil
}

func (c *Chain) lookup(to common.Address, data []byte) (route, []any, error) {
	if len(data) < 4 {
		return route{}, nil, clierr.New(clierr.CodeChainCall, "execution reverted: no selector")
	}
	c.mu.Lock()
	r, ok := c.routes[routeKey(to, data[:4])]
	c.mu.Unlock()
	if !ok {
		return route{}, nil, clierr.New(clierr.CodeChainCall, fmt.Sprintf("execution reverted: no handler for %x on %s", data[:4], to.Hex()))
	}
	args, err := r.method.Inputs.Unpack(data[4:])
	if err != nil {
		return route{}, nil, clierr.Wrap(clierr.CodeChainCall, "decode call input", err)
	}
	return r, args, nil
}

func (c *Chain) ReadContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	r, args, err := c.lookup(to, data)
	if err != nil {
		return nil, err
	}
	if r.read == nil {
		return nil, clierr.New(clierr.CodeChainCall, fmt.Sprintf("%s is not a view", r.method.Name))
	}
	out, err := r.read(args)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainCall, "execution reverted", err)
	}
	return r.method.Outputs.Pack(out...)
}

func (c *Chain) SendTransaction(_ context.Context, req wallet.TxRequest) (common.Hash, error) {
	if c.from == (common.Address{}) {
		return common.Hash{}, clierr.New(clierr.CodeSigner, "no signer configured")
	}
	r, args, err := c.lookup(req.To, req.Data)
	if err != nil {
		return common.Hash{}, err
	}
	if r.send == nil {
		return common.Hash{}, clierr.New(clierr.CodeChainCall, fmt.Sprintf("%s is a view", r.method.Name))
	}
	c.mu.Lock()
	c.sent = append(c.sent, req)
	c.nonce++
	block := new(big.Int).SetUint64(c.nonce)
	hash := crypto.Keccak256Hash(c.from.Bytes(), block.Bytes(), req.Data)
	c.mu.Unlock()

	receipt := &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: block}
	logs, sendErr := r.send(c.from, args)
	if sendErr != nil {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Logs = logs
	}
	c.mu.Lock()
	c.receipts[hash] = receipt
	c.mu.Unlock()
	return hash, nil
}

func (c *Chain) WaitForTransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	receipt, ok := c.receipts[hash]
	c.mu.Unlock()
	if !ok {
		return nil, clierr.New(clierr.CodeReceiptTimeout, fmt.Sprintf("no receipt for %s", hash.Hex()))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, clierr.New(clierr.CodeReverted, fmt.Sprintf("transaction %s reverted", hash.Hex()))
	}
	return receipt, nil
}
