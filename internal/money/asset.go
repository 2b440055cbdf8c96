package money

import (
	"fmt"
	"strings"
	"sync"
)

// Asset represents a token with its properties.
type Asset struct {
	Code     string // Asset code (USDC, ETH)
	Decimals uint8  // Number of decimal places (6 for USDC, 18 for ETH)
	Metadata AssetMetadata
}

// AssetMetadata contains chain-specific information.
type AssetMetadata struct {
	// Contracts maps network names to the token contract. Empty for native assets.
	Contracts map[string]string
}

// Global asset registry with concurrent access protection
var (
	assetRegistry = map[string]Asset{
		"USDC": {
			Code:     "USDC",
			Decimals: 6, // micro-USDC
			Metadata: AssetMetadata{
				Contracts: map[string]string{
					"base":         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
					"base-sepolia": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				},
			},
		},
		"ETH": {
			Code:     "ETH",
			Decimals: 18, // wei
		},
	}
	assetRegistryMu sync.RWMutex
)

// USDC is the settlement asset of x402 exact payments.
var USDC = MustGetAsset("USDC")

// GetAsset retrieves an asset from the registry. Lookup is case-insensitive.
func GetAsset(code string) (Asset, error) {
	assetRegistryMu.RLock()
	asset, ok := assetRegistry[strings.ToUpper(code)]
	assetRegistryMu.RUnlock()

	if !ok {
		return Asset{}, fmt.Errorf("money: unknown asset: %s", code)
	}
	return asset, nil
}

// MustGetAsset retrieves an asset and panics if not found (for tests/constants).
func MustGetAsset(code string) Asset {
	asset, err := GetAsset(code)
	if err != nil {
		panic(err)
	}
	return asset
}

// RegisterAsset adds a new asset to the registry.
func RegisterAsset(asset Asset) error {
	if asset.Code == "" {
		return fmt.Errorf("money: asset code required")
	}
	if asset.Decimals > 18 {
		return fmt.Errorf("money: decimals must be <= 18")
	}

	assetRegistryMu.Lock()
	assetRegistry[strings.ToUpper(asset.Code)] = asset
	assetRegistryMu.Unlock()

	return nil
}

// Contract returns the token contract on network, if the asset has one there.
func (a Asset) Contract(network string) (string, bool) {
	addr, ok := a.Metadata.Contracts[strings.ToLower(network)]
	return addr, ok
}
