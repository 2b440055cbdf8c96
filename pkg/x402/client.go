package x402

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/pinionos/x402-client/internal/errors"
)

// PaymentSigner produces the signed envelope for a requirement.
type PaymentSigner interface {
	Address() string
	CreatePayment(req PaymentRequirement, x402Version int) (PaymentPayload, error)
}

// Budget gates and records session spend. CanSpend is consulted before
// signing; RecordSpend is called once the paid request has been sent.
type Budget interface {
	CanSpend(amount *big.Int) bool
	RecordSpend(amount *big.Int)
}

// Breaker wraps a single HTTP round trip. *gobreaker.CircuitBreaker satisfies it.
type Breaker interface {
	Execute(fn func() (interface{}, error)) (interface{}, error)
}

// Observer receives one Exchange per completed Do or Fetch call.
type Observer interface {
	ObserveExchange(ctx context.Context, ex Exchange)
}

// Outcome describes how an exchange terminated.
type Outcome string

const (
	OutcomeDirect Outcome = "direct" // non-402 answer to the first call
	OutcomePaid   Outcome = "paid"   // 402 answered with a signed payment
	OutcomeBypass Outcome = "bypass" // API-key request, no challenge handling
	OutcomeFailed Outcome = "failed"
)

// Exchange summarizes a finished request for observers.
type Exchange struct {
	Operation  string
	Method     string
	URL        string
	Outcome    Outcome
	Status     int
	PaidAmount string
	Network    string
	Scheme     string
	Asset      string
	Duration   time.Duration
	Err        error
}

// Request describes one logical operation.
type Request struct {
	// Operation names the call in logs and errors, e.g. "balance".
	Operation string
	Method    string
	URL       string
	// Body is JSON encoded for POST, PUT and PATCH and ignored otherwise.
	Body any
	// APIKey switches the request to bypass mode.
	APIKey string
	// MaxAmount is an optional per-call ceiling in atomic units.
	MaxAmount *big.Int
}

// Response is the authoritative result of an operation.
type Response struct {
	Status       int
	Data         json.RawMessage
	PaidAmount   string
	ResponseTime time.Duration
	URL          string
	Method       string
	// Requirement is the accepted challenge when a payment was made.
	Requirement *PaymentRequirement
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Paid reports whether a payment was attached.
func (r *Response) Paid() bool {
	return r.PaidAmount != "" && r.PaidAmount != "0"
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Client runs the x402 request, challenge, sign and retry flow.
type Client struct {
	httpClient *http.Client
	signer     PaymentSigner
	budget     Budget
	breaker    Breaker
	observer   Observer
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for both round trips.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBudget attaches a session spend ledger.
func WithBudget(b Budget) Option {
	return func(c *Client) {
		c.budget = b
	}
}

// WithBreaker wraps every round trip in a circuit breaker.
func WithBreaker(b Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithObserver reports every exchange to o.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client. signer may be nil for clients that only issue
// bypass or free requests; a 402 then fails with a configuration error.
func NewClient(signer PaymentSigner, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		signer:     signer,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signer returns the configured signer.
func (c *Client) Signer() PaymentSigner {
	return c.signer
}

type exchange struct {
	op      string
	method  string
	url     string
	body    []byte
	started time.Time
	log     zerolog.Logger
}

type httpResult struct {
	status int
	body   []byte
}

// Do performs the request, paying a 402 challenge when one is returned.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ex, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.APIKey != "" {
		return c.single(ctx, ex, req.APIKey, OutcomeBypass)
	}

	first, err := c.roundTrip(ctx, ex, nil)
	if err != nil {
		return nil, c.fail(ctx, ex, nil, err)
	}
	if first.status != http.StatusPaymentRequired {
		ex.log.Debug().Int("status", first.status).Msg("x402.direct_response")
		return c.finish(ctx, ex, OutcomeDirect, first, "0", nil), nil
	}

	requirement, version, err := ParsePaymentRequired(first.body)
	if err != nil {
		return nil, c.fail(ctx, ex, nil, err)
	}
	ex.log.Info().
		Str("scheme", requirement.Scheme).
		Str("network", requirement.Network).
		Str("pay_to", requirement.PayTo).
		Str("amount", string(requirement.MaxAmountRequired)).
		Int("x402_version", version).
		Msg("x402.challenged")

	amount, err := requirement.AmountAtomic()
	if err != nil {
		return nil, c.fail(ctx, ex, &requirement,
			NewError(KindProtocol, errors.ErrCodeInvalidRequirements, "", "", err))
	}

	if req.MaxAmount != nil && amount.Cmp(req.MaxAmount) > 0 {
		return nil, c.fail(ctx, ex, &requirement, NewError(KindBudgetExceeded, errors.ErrCodeBudgetExceeded, "", "",
			fmt.Errorf("payment exceeds max: required %s > max %s", amount, req.MaxAmount)))
	}
	if c.budget != nil && !c.budget.CanSpend(amount) {
		return nil, c.fail(ctx, ex, &requirement, NewError(KindBudgetExceeded, errors.ErrCodeSpendLimitReached, "", "",
			fmt.Errorf("spend limit reached: payment of %s atomic units would exceed the session budget", amount)))
	}

	if c.signer == nil {
		return nil, c.fail(ctx, ex, &requirement, NewError(KindConfig, errors.ErrCodeMissingPrivateKey, "", "",
			stderrors.New("no signing key configured")))
	}
	payload, err := c.signer.CreatePayment(requirement, version)
	if err != nil {
		return nil, c.fail(ctx, ex, &requirement, signingError(err))
	}
	header, err := EncodePaymentHeader(payload)
	if err != nil {
		return nil, c.fail(ctx, ex, &requirement, signingError(err))
	}
	ex.log.Debug().
		Str("from", payload.Payload.Authorization.From).
		Str("valid_before", payload.Payload.Authorization.ValidBefore).
		Msg("x402.payment_signed")

	paid, err := c.roundTrip(ctx, ex, map[string]string{HeaderPayment: header})
	if err != nil {
		// The authorization may already have been accepted by the server.
		ex.log.Warn().Err(err).Msg("x402.paid_request_failed")
		return nil, c.fail(ctx, ex, &requirement, err)
	}

	if c.budget != nil {
		c.budget.RecordSpend(amount)
	}
	if paid.status == http.StatusPaymentRequired {
		ex.log.Warn().Msg("x402.payment_rejected")
	}
	return c.finish(ctx, ex, OutcomePaid, paid, string(requirement.MaxAmountRequired), &requirement), nil
}

// Fetch performs a single request with no challenge handling. A 402 is
// returned to the caller like any other status.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	ex, err := c.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.single(ctx, ex, req.APIKey, OutcomeDirect)
}

func (c *Client) single(ctx context.Context, ex *exchange, apiKey string, outcome Outcome) (*Response, error) {
	var headers map[string]string
	if apiKey != "" {
		headers = map[string]string{HeaderAPIKey: apiKey}
	}
	res, err := c.roundTrip(ctx, ex, headers)
	if err != nil {
		return nil, c.fail(ctx, ex, nil, err)
	}
	return c.finish(ctx, ex, outcome, res, "0", nil), nil
}

func (c *Client) prepare(ctx context.Context, req Request) (*exchange, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	op := req.Operation
	if op == "" {
		op = "request"
	}

	ex := &exchange{
		op:      op,
		method:  method,
		url:     req.URL,
		started: time.Now(),
	}
	ex.log = c.logger.With().
		Str("operation", op).
		Str("operation_id", uuid.NewString()).
		Str("method", method).
		Str("url", req.URL).
		Logger()

	if req.Body != nil && methodHasBody(method) {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, c.fail(ctx, ex, nil, NewError(KindConfig, errors.ErrCodeInvalidField, "", "",
				fmt.Errorf("encode request body: %w", err)))
		}
		ex.body = data
	}
	return ex, nil
}

// roundTrip issues one HTTP call. Only transport failures are errors.
func (c *Client) roundTrip(ctx context.Context, ex *exchange, headers map[string]string) (*httpResult, error) {
	var body io.Reader
	if ex.body != nil {
		body = bytes.NewReader(ex.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, ex.method, ex.url, body)
	if err != nil {
		return nil, NewError(KindConfig, errors.ErrCodeInvalidEndpoint, "", "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	call := func() (interface{}, error) {
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return &httpResult{status: resp.StatusCode, body: data}, nil
	}

	var out interface{}
	if c.breaker != nil {
		out, err = c.breaker.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		code := errors.ErrCodeTransportError
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			code = errors.ErrCodeCircuitOpen
		}
		return nil, NewError(KindTransport, code, "", "", err)
	}
	return out.(*httpResult), nil
}

func (c *Client) finish(ctx context.Context, ex *exchange, outcome Outcome, res *httpResult, paid string, req *PaymentRequirement) *Response {
	resp := &Response{
		Status:       res.status,
		Data:         jsonOrPlaceholder(res.body),
		PaidAmount:   paid,
		ResponseTime: time.Since(ex.started),
		URL:          ex.url,
		Method:       ex.method,
		Requirement:  req,
	}
	ex.log.Info().
		Str("outcome", string(outcome)).
		Int("status", resp.Status).
		Str("paid_amount", paid).
		Dur("response_time", resp.ResponseTime).
		Msg("x402.request_completed")
	c.observe(ctx, ex, outcome, resp.Status, paid, req, nil)
	return resp
}

func (c *Client) fail(ctx context.Context, ex *exchange, req *PaymentRequirement, err error) error {
	err = withContext(err, ex.op, ex.url)
	ex.log.Error().Err(err).Msg("x402.request_failed")
	c.observe(ctx, ex, OutcomeFailed, 0, "0", req, err)
	return err
}

func (c *Client) observe(ctx context.Context, ex *exchange, outcome Outcome, status int, paid string, req *PaymentRequirement, err error) {
	if c.observer == nil {
		return
	}
	event := Exchange{
		Operation:  ex.op,
		Method:     ex.method,
		URL:        ex.url,
		Outcome:    outcome,
		Status:     status,
		PaidAmount: paid,
		Duration:   time.Since(ex.started),
		Err:        err,
	}
	if req != nil {
		event.Network = req.Network
		event.Scheme = req.Scheme
		event.Asset = req.VerifyingContract()
	}
	c.observer.ObserveExchange(ctx, event)
}

func signingError(err error) error {
	var xe *Error
	if stderrors.As(err, &xe) {
		return err
	}
	return NewError(KindProtocol, errors.ErrCodeSigningFailed, "", "", err)
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func jsonOrPlaceholder(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return json.RawMessage(nonJSONPlaceholder)
	}
	return json.RawMessage(trimmed)
}
