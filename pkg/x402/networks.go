package x402

import "strings"

// Network identifiers understood by the signer.
const (
	NetworkBase        = "base"
	NetworkBaseSepolia = "base-sepolia"
)

// Chain ids for the supported networks.
const (
	ChainIDBase        int64 = 8453
	ChainIDBaseSepolia int64 = 84532
)

var chainIDs = map[string]int64{
	NetworkBase:        ChainIDBase,
	"eip155:8453":      ChainIDBase,
	NetworkBaseSepolia: ChainIDBaseSepolia,
	"eip155:84532":     ChainIDBaseSepolia,
}

// ChainID resolves a network name (short or CAIP-2) to its EVM chain id.
// Unknown networks resolve to Base mainnet rather than failing.
func ChainID(network string) int64 {
	if id, ok := chainIDs[strings.ToLower(strings.TrimSpace(network))]; ok {
		return id
	}
	return ChainIDBase
}

// KnownNetwork reports whether network has an explicit chain id entry.
func KnownNetwork(network string) bool {
	_, ok := chainIDs[strings.ToLower(strings.TrimSpace(network))]
	return ok
}
