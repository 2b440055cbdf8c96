package x402

import "time"

// Wire headers
const (
	// HeaderPayment carries the base64 payment envelope on the paid retry.
	HeaderPayment = "X-PAYMENT"

	// HeaderAPIKey carries a pre-purchased access key in bypass mode.
	HeaderAPIKey = "X-API-KEY"
)

// Protocol defaults
const (
	// DefaultVersion is assumed when a 402 body omits x402Version.
	DefaultVersion = 1

	// SchemeExact is the EIP-3009 transfer-with-authorization scheme.
	SchemeExact = "exact"

	// DefaultMaxTimeoutSeconds bounds validBefore when the requirement omits it.
	DefaultMaxTimeoutSeconds = 900

	// ClockSkewTolerance is subtracted from now to form validAfter.
	ClockSkewTolerance = 600 * time.Second
)

// Token defaults used when a requirement omits its EIP-712 domain hints.
// These describe native USDC on Base mainnet.
const (
	DefaultTokenName    = "USD Coin"
	DefaultTokenVersion = "2"
	DefaultTokenAddress = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	// AtomicDecimals is the fixed scale of USDC atomic units.
	AtomicDecimals = 6
)

// nonJSONPlaceholder replaces bodies that are not valid JSON.
const nonJSONPlaceholder = `{"error":"non-json response"}`
