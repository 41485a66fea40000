package registry

import "github.com/ethereum/go-ethereum/common"

// SafeDeployment holds the canonical Safe v1.4.1 contracts for a chain.
type SafeDeployment struct {
	ProxyFactory    common.Address
	Singleton       common.Address
	FallbackHandler common.Address
}

var canonicalSafeV141 = SafeDeployment{
	ProxyFactory:    common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67"),
	Singleton:       common.HexToAddress("0x29fcB43b46531BcA003ddC8FCB67FFE91900C762"), // SafeL2
	FallbackHandler: common.HexToAddress("0xfd0732Dc9E303f09fCEf3a7388Ad10A83459Ec99"),
}

var safeDeploymentsByChainID = map[int64]SafeDeployment{
	8453:  canonicalSafeV141,
	84532: canonicalSafeV141,
}

func SafeContracts(chainID int64) (SafeDeployment, bool) {
	d, ok := safeDeploymentsByChainID[chainID]
	return d, ok
}
