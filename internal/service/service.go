// Package service owns the payment session: the wallet, the spend ledger and
// the clients built on them. It performs no HTTP or signing itself.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pinionos/x402-client/internal/circuitbreaker"
	"github.com/pinionos/x402-client/internal/config"
	"github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/internal/ledger"
	"github.com/pinionos/x402-client/internal/logger"
	"github.com/pinionos/x402-client/internal/observability"
	"github.com/pinionos/x402-client/internal/skills"
	"github.com/pinionos/x402-client/pkg/x402"
	"github.com/pinionos/x402-client/pkg/x402/evm"
)

// ErrNotConfigured is returned by operations that need a wallet before one
// has been configured.
var ErrNotConfigured = x402.NewError(x402.KindConfig, errors.ErrCodeNotConfigured, "", "",
	stderrors.New("wallet not configured; set "+config.EnvPrivateKey+" or generate a wallet"))

// Options holds the long-lived dependencies shared by every session.
type Options struct {
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// Registry receives exchange and spend events. Optional.
	Registry *observability.Registry
	// Breakers isolates the skill API from arbitrary paid services. Optional.
	Breakers *circuitbreaker.Manager
	// PayServiceMaxAmount is the default per-call ceiling for PayService in
	// atomic units. Defaults to config.DefaultPayServiceMaxAmount.
	PayServiceMaxAmount string
}

// SessionConfig selects the wallet and endpoint for a session.
type SessionConfig struct {
	PrivateKey string
	APIKey     string
	APIURL     string
	Network    string
}

// Status is a read-only view of the service.
type Status struct {
	Configured    bool          `json:"configured"`
	WalletAddress string        `json:"walletAddress,omitempty"`
	Network       string        `json:"network"`
	APIURL        string        `json:"apiUrl,omitempty"`
	BypassMode    bool          `json:"bypassMode"`
	Spend         ledger.Status `json:"spend"`
}

// Wallet is a freshly generated key pair.
type Wallet struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

// PayOptions configures a PayService call.
type PayOptions struct {
	Method string
	Body   any
	// MaxAmount is the ceiling in atomic units. Empty uses the service default.
	MaxAmount string
}

type session struct {
	cfg    SessionConfig
	signer *evm.Signer
	skills *skills.Client
	payer  *x402.Client
}

// Service is the session facade. It is safe for concurrent use; Configure
// swaps the whole session atomically.
type Service struct {
	httpClient *http.Client
	logger     zerolog.Logger
	registry   *observability.Registry
	breakers   *circuitbreaker.Manager
	payMax     *big.Int
	ledger     *ledger.Ledger
	session    atomic.Pointer[session]
}

// New creates an unconfigured service.
func New(opts Options) *Service {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	payMax, ok := new(big.Int).SetString(opts.PayServiceMaxAmount, 10)
	if !ok || payMax.Sign() <= 0 {
		payMax, _ = new(big.Int).SetString(config.DefaultPayServiceMaxAmount, 10)
	}
	return &Service{
		httpClient: hc,
		logger:     opts.Logger,
		registry:   opts.Registry,
		breakers:   opts.Breakers,
		payMax:     payMax,
		ledger:     ledger.New(),
	}
}

// Start resolves settings from runtime, the environment and cfg, in that
// order, and configures a session when a private key is available. A missing
// or invalid key is logged and leaves the service unconfigured.
func (s *Service) Start(cfg *config.Config, runtime config.Lookup) error {
	resolved := cfg.ResolveSession(runtime)

	if resolved.MaxBudget != "" {
		if err := s.SetBudget(resolved.MaxBudget); err != nil {
			return fmt.Errorf("apply max budget: %w", err)
		}
	}

	if resolved.PrivateKey == "" {
		s.logger.Warn().
			Str("setting", config.EnvPrivateKey).
			Msg("service.wallet_not_configured")
		return nil
	}

	err := s.Configure(SessionConfig{
		PrivateKey: resolved.PrivateKey,
		APIKey:     resolved.APIKey,
		APIURL:     resolved.APIURL,
		Network:    resolved.Network,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("service.invalid_private_key")
		return nil
	}
	return nil
}

// Configure replaces the current session. The spend ledger is kept.
func (s *Service) Configure(cfg SessionConfig) error {
	signer, err := evm.NewSigner(cfg.PrivateKey)
	if err != nil {
		return err
	}
	s.install(cfg, signer)
	return nil
}

// GenerateWallet creates a random key and configures a session with it,
// keeping the current endpoint, network and API key.
func (s *Service) GenerateWallet() (Wallet, error) {
	signer, key, err := evm.GenerateSigner()
	if err != nil {
		return Wallet{}, err
	}
	var cfg SessionConfig
	if cur := s.session.Load(); cur != nil {
		cfg = cur.cfg
	}
	cfg.PrivateKey = key
	s.install(cfg, signer)
	return Wallet{Address: signer.Address(), PrivateKey: key}, nil
}

// SetAPIKey switches the current session to bypass mode, or back to paying
// when key is empty.
func (s *Service) SetAPIKey(key string) error {
	cur := s.session.Load()
	if cur == nil {
		return ErrNotConfigured
	}
	cfg := cur.cfg
	cfg.APIKey = strings.TrimSpace(key)
	s.install(cfg, cur.signer)
	s.logger.Info().
		Str("api_key", logger.RedactSecret(cfg.APIKey)).
		Bool("bypass", cfg.APIKey != "").
		Msg("service.api_key_applied")
	return nil
}

func (s *Service) install(cfg SessionConfig, signer *evm.Signer) {
	cfg.APIURL = config.NormalizeAPIURL(cfg.APIURL)
	if cfg.APIURL == "" {
		cfg.APIURL = config.DefaultAPIURL
	}
	cfg.Network = strings.TrimSpace(cfg.Network)
	if cfg.Network == "" {
		cfg.Network = config.DefaultNetwork
	}
	if !x402.KnownNetwork(cfg.Network) {
		s.logger.Warn().Str("network", cfg.Network).Msg("service.unknown_network")
	}

	sess := &session{
		cfg:    cfg,
		signer: signer,
		skills: skills.New(s.newClient(signer, circuitbreaker.ServiceSkillAPI), skills.Config{
			BaseURL: cfg.APIURL,
			APIKey:  cfg.APIKey,
			Wallet:  signer,
		}),
		payer: s.newClient(signer, circuitbreaker.ServicePaidService),
	}
	s.session.Store(sess)

	s.logger.Info().
		Str("wallet", logger.TruncateAddress(signer.Address())).
		Str("network", cfg.Network).
		Str("api_url", cfg.APIURL).
		Bool("bypass", cfg.APIKey != "").
		Msg("service.wallet_configured")
}

func (s *Service) newClient(signer *evm.Signer, service circuitbreaker.ServiceType) *x402.Client {
	opts := []x402.Option{
		x402.WithHTTPClient(s.httpClient),
		x402.WithBudget(s.ledger),
		x402.WithObserver(spendObserver{s}),
		x402.WithLogger(s.logger),
	}
	if s.breakers != nil {
		opts = append(opts, x402.WithBreaker(s.breakers.Breaker(service)))
	}
	return x402.NewClient(signer, opts...)
}

// Skills returns the skills client of the current session.
func (s *Service) Skills() (*skills.Client, error) {
	cur := s.session.Load()
	if cur == nil {
		return nil, ErrNotConfigured
	}
	return cur.skills, nil
}

// ActivateUnlimited buys an unlimited-plan key and applies it to the session.
func (s *Service) ActivateUnlimited(ctx context.Context) (*skills.Result[skills.UnlimitedResult], error) {
	sk, err := s.Skills()
	if err != nil {
		return nil, err
	}
	res, err := sk.Unlimited(ctx)
	if err != nil {
		return nil, err
	}
	if res.OK() && res.Data.APIKey != "" {
		if err := s.SetAPIKey(res.Data.APIKey); err != nil {
			return res, err
		}
	}
	return res, nil
}

// PayService calls an arbitrary x402 endpoint with the session wallet. It
// never uses the bypass key and refuses challenges above the ceiling.
func (s *Service) PayService(ctx context.Context, target string, opts PayOptions) (*x402.Response, error) {
	cur := s.session.Load()
	if cur == nil {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, x402.NewError(x402.KindConfig, errors.ErrCodeInvalidEndpoint, "pay_service", target,
			stderrors.New("url must be absolute http or https"))
	}

	maxAmount := s.payMax
	if opts.MaxAmount != "" {
		v, ok := new(big.Int).SetString(strings.TrimSpace(opts.MaxAmount), 10)
		if !ok || v.Sign() < 0 {
			return nil, x402.NewError(x402.KindConfig, errors.ErrCodeInvalidAmount, "pay_service", target,
				fmt.Errorf("max amount %q must be a non-negative integer", opts.MaxAmount))
		}
		maxAmount = v
	}

	return cur.payer.Do(ctx, x402.Request{
		Operation: "pay_service",
		Method:    opts.Method,
		URL:       u.String(),
		Body:      opts.Body,
		MaxAmount: maxAmount,
	})
}

// SetBudget limits session spend to amount USDC.
func (s *Service) SetBudget(amount string) error {
	if err := s.ledger.SetLimit(amount); err != nil {
		return err
	}
	st := s.ledger.Status()
	s.logger.Info().Str("max_budget", st.MaxBudget).Msg("service.budget_set")
	s.emitSpend(context.Background(), "limit")
	return nil
}

// ClearBudget removes the spend limit.
func (s *Service) ClearBudget() {
	s.ledger.ClearLimit()
	s.logger.Info().Msg("service.budget_cleared")
	s.emitSpend(context.Background(), "limit")
}

// ResetSpend zeroes spent and call count, keeping the limit.
func (s *Service) ResetSpend() {
	s.ledger.Reset()
	s.logger.Info().Msg("service.spend_reset")
	s.emitSpend(context.Background(), "reset")
}

// Status reports the session and ledger state.
func (s *Service) Status() Status {
	st := Status{
		Network: config.DefaultNetwork,
		Spend:   s.ledger.Status(),
	}
	if cur := s.session.Load(); cur != nil {
		st.Configured = true
		st.WalletAddress = cur.signer.Address()
		st.Network = cur.cfg.Network
		st.APIURL = cur.cfg.APIURL
		st.BypassMode = cur.cfg.APIKey != ""
	}
	return st
}

// Close releases pooled connections.
func (s *Service) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

func (s *Service) emitSpend(ctx context.Context, reason string) {
	if s.registry == nil {
		return
	}
	spent, _ := new(big.Float).SetInt(s.ledger.SpentAtomic()).Float64()
	s.registry.EmitSpendChanged(ctx, observability.SpendChangedEvent{
		Timestamp:   time.Now(),
		SpentAtomic: spent,
		CallCount:   s.ledger.CallCount(),
		Reason:      reason,
	})
}

// spendObserver forwards exchanges to the registry and publishes the ledger
// after every paid call.
type spendObserver struct {
	s *Service
}

func (o spendObserver) ObserveExchange(ctx context.Context, ex x402.Exchange) {
	if o.s.registry == nil {
		return
	}
	o.s.registry.ObserveExchange(ctx, ex)
	if ex.Outcome == x402.OutcomePaid {
		o.s.emitSpend(ctx, "payment")
	}
}
