package skills

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/pinionos/x402-client/internal/errors"
)

// ErrInvalidInput matches every argument validation failure. Validation
// runs before any HTTP call, so a rejected input never costs a payment.
var ErrInvalidInput = stderrors.New("invalid input")

// InputError describes a rejected argument.
type InputError struct {
	Op     string
	Field  string
	Value  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("skills %s: %s: %s", e.Op, e.Field, e.Reason)
	}
	return fmt.Sprintf("skills %s: %s %q: %s", e.Op, e.Field, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// ErrorCode maps the failure onto the shared error catalogue.
func (e *InputError) ErrorCode() errors.ErrorCode {
	switch {
	case e.Value == "":
		return errors.ErrCodeMissingField
	case e.Field == "amount":
		return errors.ErrCodeInvalidAmount
	case e.Field == "address" || e.Field == "to":
		return errors.ErrCodeInvalidWallet
	default:
		return errors.ErrCodeInvalidField
	}
}

func invalid(op, field, value, reason string) error {
	return &InputError{Op: op, Field: field, Value: value, Reason: reason}
}

// Supported tokens for Send.
const (
	TokenETH  = "ETH"
	TokenUSDC = "USDC"
)

func validateAddress(op, field, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", invalid(op, field, "", "is required")
	}
	if !common.IsHexAddress(addr) || !strings.HasPrefix(strings.ToLower(addr), "0x") {
		return "", invalid(op, field, addr, "must be a 0x-prefixed 20-byte hex address")
	}
	return addr, nil
}

func validateTxHash(op, hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return "", invalid(op, "hash", "", "is required")
	}
	raw, err := hexutil.Decode(hash)
	if err != nil || len(raw) != common.HashLength {
		return "", invalid(op, "hash", hash, "must be a 0x-prefixed 32-byte hex hash")
	}
	return hash, nil
}

func validateAmount(op, amount string) (string, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return "", invalid(op, "amount", "", "is required")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", invalid(op, "amount", amount, "must be a decimal number")
	}
	if !d.IsPositive() {
		return "", invalid(op, "amount", amount, "must be greater than zero")
	}
	return amount, nil
}

func validateSendToken(op, token string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(token))
	switch t {
	case TokenETH, TokenUSDC:
		return t, nil
	case "":
		return "", invalid(op, "token", "", "is required")
	}
	return "", invalid(op, "token", token, "must be ETH or USDC")
}

func required(op, field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid(op, field, "", "is required")
	}
	return value, nil
}
