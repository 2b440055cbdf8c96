package errors

// ErrorCode represents a machine-readable error identifier surfaced to callers
// of the client and to the status server.
type ErrorCode string

// Configuration errors (credentials, budgets, endpoints)
const (
	ErrCodeConfigError       ErrorCode = "config_error"
	ErrCodeMissingPrivateKey ErrorCode = "missing_private_key"
	ErrCodeInvalidPrivateKey ErrorCode = "invalid_private_key"
	ErrCodeInvalidLimit      ErrorCode = "invalid_spend_limit"
	ErrCodeInvalidEndpoint   ErrorCode = "invalid_endpoint"
	ErrCodeNotConfigured     ErrorCode = "wallet_not_configured"
)

// Protocol errors (402 challenge and signing)
const (
	ErrCodeProtocolError       ErrorCode = "protocol_error"
	ErrCodeMissingAccepts      ErrorCode = "missing_payment_requirements"
	ErrCodeInvalidChallenge    ErrorCode = "invalid_payment_challenge"
	ErrCodeInvalidRequirements ErrorCode = "invalid_payment_requirements"
	ErrCodeSigningFailed       ErrorCode = "signing_failed"
	ErrCodeInvalidPaymentProof ErrorCode = "invalid_payment_proof"
)

// Budget errors
const (
	ErrCodeBudgetExceeded    ErrorCode = "budget_exceeded"
	ErrCodeSpendLimitReached ErrorCode = "spend_limit_reached"
)

// Transport errors
const (
	ErrCodeTransportError ErrorCode = "transport_error"
	ErrCodeCircuitOpen    ErrorCode = "circuit_open"
	ErrCodeNonJSONBody    ErrorCode = "non_json_response"
)

// Input validation errors
const (
	ErrCodeMissingField  ErrorCode = "missing_field"
	ErrCodeInvalidField  ErrorCode = "invalid_field"
	ErrCodeInvalidWallet ErrorCode = "invalid_wallet"
	ErrCodeInvalidAmount ErrorCode = "invalid_amount"
)

// Authorization errors
const (
	ErrCodeUnauthorized ErrorCode = "unauthorized"
)

// Internal/System Errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
)

// IsRetryable returns whether the caller may reasonably repeat the operation
// unchanged. The client itself never retries.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeTransportError,
		ErrCodeCircuitOpen:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - Client validation errors
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidWallet,
		ErrCodeInvalidAmount,
		ErrCodeInvalidLimit,
		ErrCodeInvalidPrivateKey,
		ErrCodeInvalidEndpoint,
		ErrCodeInvalidPaymentProof:
		return 400

	// 401 Unauthorized - Missing or wrong admin key
	case ErrCodeUnauthorized:
		return 401

	// 402 Payment Required - Budget refusals
	case ErrCodeBudgetExceeded,
		ErrCodeSpendLimitReached:
		return 402

	// 409 Conflict - Session not ready
	case ErrCodeNotConfigured,
		ErrCodeMissingPrivateKey:
		return 409

	// 502 Bad Gateway - Remote service misbehaved or unreachable
	case ErrCodeProtocolError,
		ErrCodeMissingAccepts,
		ErrCodeInvalidChallenge,
		ErrCodeInvalidRequirements,
		ErrCodeTransportError,
		ErrCodeNonJSONBody:
		return 502

	// 503 Service Unavailable - Breaker open
	case ErrCodeCircuitOpen:
		return 503

	default:
		return 500
	}
}
