package x402

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/pinionos/x402-client/internal/errors"
)

// Amount is an atomic integer carried as a decimal string. Some servers emit
// it as a bare JSON number, so both forms are accepted on decode.
type Amount string

// UnmarshalJSON accepts "10000" and 10000.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("x402: amount must be a string or number: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// PaymentRequirement is one entry of a 402 body's accepts list.
type PaymentRequirement struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	Asset             string            `json:"asset"`
	PayTo             string            `json:"payTo"`
	MaxAmountRequired Amount            `json:"maxAmountRequired"`
	MaxTimeoutSeconds int64             `json:"maxTimeoutSeconds,omitempty"`
	Resource          string            `json:"resource,omitempty"`
	Description       string            `json:"description,omitempty"`
	MimeType          string            `json:"mimeType,omitempty"`
	Extra             *RequirementExtra `json:"extra,omitempty"`
}

// RequirementExtra carries the token's EIP-712 domain hints.
type RequirementExtra struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// AmountAtomic parses MaxAmountRequired as a non-negative integer.
func (r PaymentRequirement) AmountAtomic() (*big.Int, error) {
	raw := strings.TrimSpace(string(r.MaxAmountRequired))
	if raw == "" {
		return nil, stderrors.New("maxAmountRequired is empty")
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("maxAmountRequired %q is not an integer", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("maxAmountRequired %q is negative", raw)
	}
	return v, nil
}

// TimeoutSeconds returns MaxTimeoutSeconds or the protocol default.
func (r PaymentRequirement) TimeoutSeconds() int64 {
	if r.MaxTimeoutSeconds <= 0 {
		return DefaultMaxTimeoutSeconds
	}
	return r.MaxTimeoutSeconds
}

// TokenName is the EIP-712 domain name for the asset.
func (r PaymentRequirement) TokenName() string {
	if r.Extra != nil && r.Extra.Name != "" {
		return r.Extra.Name
	}
	return DefaultTokenName
}

// TokenVersion is the EIP-712 domain version for the asset.
func (r PaymentRequirement) TokenVersion() string {
	if r.Extra != nil && r.Extra.Version != "" {
		return r.Extra.Version
	}
	return DefaultTokenVersion
}

// VerifyingContract is the asset contract, falling back to Base USDC.
func (r PaymentRequirement) VerifyingContract() string {
	if r.Asset != "" {
		return r.Asset
	}
	return DefaultTokenAddress
}

// PaymentRequired is the body of a 402 response.
type PaymentRequired struct {
	X402Version int                  `json:"x402Version"`
	Error       string               `json:"error,omitempty"`
	Accepts     []PaymentRequirement `json:"accepts"`
}

// ParsePaymentRequired extracts the selected requirement and protocol version
// from a 402 body. The first offered requirement is always selected.
func ParsePaymentRequired(body []byte) (PaymentRequirement, int, error) {
	var challenge PaymentRequired
	if err := json.Unmarshal(body, &challenge); err != nil {
		return PaymentRequirement{}, 0, NewError(KindProtocol, errors.ErrCodeInvalidChallenge, "", "",
			fmt.Errorf("decode 402 body: %w", err))
	}
	if len(challenge.Accepts) == 0 {
		return PaymentRequirement{}, 0, NewError(KindProtocol, errors.ErrCodeMissingAccepts, "", "",
			stderrors.New("could not parse payment requirements from 402 response"))
	}

	version := challenge.X402Version
	if version == 0 {
		version = DefaultVersion
	}
	return challenge.Accepts[0], version, nil
}

// Authorization is the EIP-3009 message signed by the payer.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactPayload is the scheme payload of the exact scheme.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is the envelope carried in the X-PAYMENT header.
// Field names and nesting are the interoperability contract with verifiers.
type PaymentPayload struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`
}

// EncodePaymentHeader renders the envelope as base64 of its JSON.
func EncodePaymentHeader(p PaymentPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("x402: marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader is the inverse of EncodePaymentHeader. Raw JSON is
// accepted as well, which keeps manual testing simple.
func DecodePaymentHeader(header string) (PaymentPayload, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return PaymentPayload{}, NewError(KindProtocol, errors.ErrCodeInvalidPaymentProof, "", "",
			stderrors.New("empty payment header"))
	}

	var data []byte
	if strings.HasPrefix(raw, "{") {
		data = []byte(raw)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(raw)
			if err != nil {
				return PaymentPayload{}, NewError(KindProtocol, errors.ErrCodeInvalidPaymentProof, "", "",
					fmt.Errorf("decode base64: %w", err))
			}
		}
		data = decoded
	}

	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return PaymentPayload{}, NewError(KindProtocol, errors.ErrCodeInvalidPaymentProof, "", "",
			fmt.Errorf("parse payment payload: %w", err))
	}
	if payload.Payload.Signature == "" {
		return payload, NewError(KindProtocol, errors.ErrCodeInvalidPaymentProof, "", "",
			stderrors.New("payment payload missing signature"))
	}
	return payload, nil
}
