package multisig

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SaltNonce is the deterministic createProxyWithNonce salt for a pair, so
// that every process predicts the same Safe address for it.
func SaltNonce(agent, user common.Address) *big.Int {
	h := crypto.Keccak256([]byte("chedda-multisig"), agent.Bytes(), user.Bytes())
	return new(big.Int).SetBytes(h)
}

// PredictAddress mirrors SafeProxyFactory.createProxyWithNonce:
// salt = keccak(keccak(initializer) || saltNonce) and
// init code = proxyCreationCode || uint256(singleton).
func PredictAddress(factory, singleton common.Address, proxyCreationCode, initializer []byte, saltNonce *big.Int) common.Address {
	salt := crypto.Keccak256(crypto.Keccak256(initializer), common.LeftPadBytes(saltNonce.Bytes(), 32))
	deploymentData := make([]byte, 0, len(proxyCreationCode)+32)
	deploymentData = append(deploymentData, proxyCreationCode...)
	deploymentData = append(deploymentData, common.LeftPadBytes(singleton.Bytes(), 32)...)
	var salt32 [32]byte
	copy(salt32[:], salt)
	return crypto.CreateAddress2(factory, salt32, crypto.Keccak256(deploymentData))
}
