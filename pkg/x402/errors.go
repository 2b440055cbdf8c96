package x402

import (
	stderrors "errors"
	"fmt"

	"github.com/pinionos/x402-client/internal/errors"
)

// Kind classifies failures into the four families callers act on.
type Kind string

const (
	KindConfig         Kind = "config"
	KindProtocol       Kind = "protocol"
	KindBudgetExceeded Kind = "budget_exceeded"
	KindTransport      Kind = "transport"
)

// Sentinels for errors.Is matching against a Kind.
var (
	ErrConfig         = stderrors.New("x402: configuration error")
	ErrProtocol       = stderrors.New("x402: protocol error")
	ErrBudgetExceeded = stderrors.New("x402: budget exceeded")
	ErrTransport      = stderrors.New("x402: transport error")
)

// Error is returned by every failing client operation.
type Error struct {
	Kind   Kind
	Code   errors.ErrorCode
	Op     string // operation name, e.g. "balance"
	Target string // URL, address or offending value
	Err    error
}

// NewError builds an Error. err may be nil.
func NewError(kind Kind, code errors.ErrorCode, op, target string, err error) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Target: target, Err: err}
}

func (e *Error) Error() string {
	msg := "x402"
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Target != "" {
		msg += " " + e.Target
	}
	msg += ": " + string(e.Code)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrProtocol:
		return e.Kind == KindProtocol
	case ErrBudgetExceeded:
		return e.Kind == KindBudgetExceeded
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

// ErrorCode implements errors.Coded.
func (e *Error) ErrorCode() errors.ErrorCode {
	return e.Code
}

// UserMessage renders a short explanation suitable for an end user.
func (e *Error) UserMessage() string {
	switch e.Code {
	case errors.ErrCodeNotConfigured, errors.ErrCodeMissingPrivateKey:
		return "Wallet not configured. Provide a private key or generate a wallet first."
	case errors.ErrCodeInvalidPrivateKey:
		return "Invalid private key."
	case errors.ErrCodeInvalidLimit:
		return "Spend limit must be a non-negative number."
	case errors.ErrCodeBudgetExceeded:
		return "Payment exceeds the per-call maximum amount."
	case errors.ErrCodeSpendLimitReached:
		return "Session spend limit reached. Raise the budget or reset spend to continue."
	case errors.ErrCodeMissingAccepts, errors.ErrCodeInvalidChallenge, errors.ErrCodeInvalidRequirements:
		return "The service returned a payment challenge this client cannot understand."
	case errors.ErrCodeSigningFailed:
		return "Could not sign the payment authorization."
	case errors.ErrCodeCircuitOpen:
		return "The service is failing repeatedly; requests are paused. Try again shortly."
	case errors.ErrCodeTransportError:
		return "Could not reach the service. Check the endpoint and your connection."
	default:
		return fmt.Sprintf("Request failed: %s", e.Code)
	}
}

// withContext copies err with op and target filled in when they are empty.
func withContext(err error, op, target string) error {
	var xe *Error
	if !stderrors.As(err, &xe) {
		return err
	}
	out := *xe
	if out.Op == "" {
		out.Op = op
	}
	if out.Target == "" {
		out.Target = target
	}
	return &out
}
