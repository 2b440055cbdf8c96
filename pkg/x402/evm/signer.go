// Package evm signs x402 "exact" payments as EIP-3009
// TransferWithAuthorization messages using EIP-712 typed data.
package evm

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/pkg/x402"
)

const primaryType = "TransferWithAuthorization"

var eip712Types = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	primaryType: []apitypes.Type{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// NonceSource returns a fresh 32-byte authorization nonce.
type NonceSource func() ([32]byte, error)

// RandomNonce reads 32 bytes from crypto/rand.
func RandomNonce() ([32]byte, error) {
	var n [32]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("read random nonce: %w", err)
	}
	return n, nil
}

// Signer holds one secp256k1 key and signs payment authorizations with it.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	nonce   NonceSource
	now     func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithNonceSource replaces the random nonce source, mainly for tests.
func WithNonceSource(src NonceSource) Option {
	return func(s *Signer) {
		if src != nil {
			s.nonce = src
		}
	}
}

// WithClock replaces time.Now when building authorization windows.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSigner parses a hex private key, with or without a 0x prefix.
func NewSigner(hexKey string, opts ...Option) (*Signer, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if raw == "" {
		return nil, x402.NewError(x402.KindConfig, errors.ErrCodeMissingPrivateKey, "new_signer", "",
			stderrors.New("private key is empty"))
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		// The key itself is never echoed into the error.
		return nil, x402.NewError(x402.KindConfig, errors.ErrCodeInvalidPrivateKey, "new_signer", "",
			stderrors.New("private key must be 32 bytes of hex"))
	}
	return newSigner(key, opts...), nil
}

// GenerateSigner creates a signer over a freshly generated key and returns
// the key as 0x-prefixed hex.
func GenerateSigner(opts ...Option) (*Signer, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	s := newSigner(key, opts...)
	return s, s.PrivateKeyHex(), nil
}

func newSigner(key *ecdsa.PrivateKey, opts ...Option) *Signer {
	s := &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		nonce:   RandomNonce,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address returns the checksummed payer address.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// PrivateKeyHex returns the key as 0x-prefixed hex.
func (s *Signer) PrivateKeyHex() string {
	return "0x" + hex.EncodeToString(crypto.FromECDSA(s.key))
}

// NewAuthorization builds an authorization for req with a fresh nonce.
func (s *Signer) NewAuthorization(req x402.PaymentRequirement) (x402.Authorization, error) {
	nonce, err := s.nonce()
	if err != nil {
		return x402.Authorization{}, err
	}
	amount, err := req.AmountAtomic()
	if err != nil {
		return x402.Authorization{}, err
	}

	now := s.now().Unix()
	skew := int64(x402.ClockSkewTolerance / time.Second)
	return x402.Authorization{
		From:        s.Address(),
		To:          req.PayTo,
		Value:       amount.String(),
		ValidAfter:  strconv.FormatInt(now-skew, 10),
		ValidBefore: strconv.FormatInt(now+req.TimeoutSeconds(), 10),
		Nonce:       "0x" + hex.EncodeToString(nonce[:]),
	}, nil
}

// SignAuthorization returns the 65-byte signature as 0x hex with v in {27, 28}.
// Signing is deterministic for identical inputs.
func (s *Signer) SignAuthorization(auth x402.Authorization, req x402.PaymentRequirement) (string, error) {
	digest, err := HashAuthorization(auth, req)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// CreatePayment implements x402.PaymentSigner.
func (s *Signer) CreatePayment(req x402.PaymentRequirement, x402Version int) (x402.PaymentPayload, error) {
	auth, err := s.NewAuthorization(req)
	if err != nil {
		return x402.PaymentPayload{}, err
	}
	sig, err := s.SignAuthorization(auth, req)
	if err != nil {
		return x402.PaymentPayload{}, err
	}
	scheme := req.Scheme
	if scheme == "" {
		scheme = x402.SchemeExact
	}
	return x402.PaymentPayload{
		X402Version: x402Version,
		Scheme:      scheme,
		Network:     req.Network,
		Payload: x402.ExactPayload{
			Signature:     sig,
			Authorization: auth,
		},
	}, nil
}

// TypedData builds the EIP-712 document for auth under req's token domain.
func TypedData(auth x402.Authorization, req x402.PaymentRequirement) (apitypes.TypedData, error) {
	contract := req.VerifyingContract()
	for name, addr := range map[string]string{"from": auth.From, "to": auth.To, "verifyingContract": contract} {
		if !common.IsHexAddress(addr) {
			return apitypes.TypedData{}, fmt.Errorf("%s %q is not a hex address", name, addr)
		}
	}

	value, err := parseUint(auth.Value, "value")
	if err != nil {
		return apitypes.TypedData{}, err
	}
	validAfter, err := parseUint(auth.ValidAfter, "validAfter")
	if err != nil {
		return apitypes.TypedData{}, err
	}
	validBefore, err := parseUint(auth.ValidBefore, "validBefore")
	if err != nil {
		return apitypes.TypedData{}, err
	}

	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil || len(nonceBytes) != 32 {
		return apitypes.TypedData{}, fmt.Errorf("nonce %q must be 32 bytes of hex", auth.Nonce)
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	chainID := math.HexOrDecimal256(*big.NewInt(x402.ChainID(req.Network)))

	return apitypes.TypedData{
		Types:       eip712Types,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              req.TokenName(),
			Version:           req.TokenVersion(),
			ChainId:           &chainID,
			VerifyingContract: common.HexToAddress(contract).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        common.HexToAddress(auth.From).Hex(),
			"to":          common.HexToAddress(auth.To).Hex(),
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       nonce,
		},
	}, nil
}

// HashAuthorization returns keccak256(0x19 0x01 || domainSeparator || structHash).
func HashAuthorization(auth x402.Authorization, req x402.PaymentRequirement) ([]byte, error) {
	td, err := TypedData(auth, req)
	if err != nil {
		return nil, err
	}
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}
	raw := append(append([]byte("\x19\x01"), domainSeparator...), structHash...)
	return crypto.Keccak256(raw), nil
}

// RecoverAuthorizer returns the address that produced sig over auth.
func RecoverAuthorizer(auth x402.Authorization, req x402.PaymentRequirement, sig string) (string, error) {
	digest, err := HashAuthorization(auth, req)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != crypto.SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(raw))
	}
	if raw[64] == 27 || raw[64] == 28 {
		raw[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func parseUint(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s %q is not a non-negative integer", field, s)
	}
	return v, nil
}
