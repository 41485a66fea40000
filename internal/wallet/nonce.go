package wallet

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var signerNonceLocks sync.Map

// acquireSignerNonceLock serializes nonce selection and broadcast for one
// sender on one chain across every provider in the process.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := chainID.String() + ":" + strings.ToLower(addr.Hex())
	v, _ := signerNonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
