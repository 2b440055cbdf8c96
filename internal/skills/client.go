// Package skills binds the Pinion skill API endpoints to typed calls over
// the x402 paying client.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pinionos/x402-client/internal/config"
	"github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/pkg/x402"
)

// DefaultSlippage is the trade slippage in percent when none is given.
const DefaultSlippage = 1.0

// Wallet is the session key the skill calls act for.
type Wallet interface {
	Address() string
	PrivateKeyHex() string
}

// Config configures a skills Client.
type Config struct {
	// BaseURL defaults to config.DefaultAPIURL. Trailing slashes are trimmed.
	BaseURL string
	// APIKey switches every paid skill to bypass mode.
	APIKey string
	Wallet Wallet
}

// Client issues skill calls. It is safe for concurrent use.
type Client struct {
	x402    *x402.Client
	baseURL string
	apiKey  string
	wallet  Wallet
}

// New creates a skills client on top of an x402 client.
func New(client *x402.Client, cfg Config) *Client {
	base := config.NormalizeAPIURL(cfg.BaseURL)
	if base == "" {
		base = config.DefaultAPIURL
	}
	return &Client{
		x402:    client,
		baseURL: base,
		apiKey:  cfg.APIKey,
		wallet:  cfg.Wallet,
	}
}

// BaseURL returns the normalized skill API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Result is the typed outcome of one skill call. Data is decoded only for
// 2xx responses; Raw always holds the response body.
type Result[T any] struct {
	Status       int
	Data         T
	Raw          json.RawMessage
	PaidAmount   string
	ResponseTime time.Duration
}

// OK reports a 2xx status.
func (r *Result[T]) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Paid reports whether the call was paid for.
func (r *Result[T]) Paid() bool {
	return r.PaidAmount != "" && r.PaidAmount != "0"
}

// ErrorMessage returns the "error" field of a JSON object body, if any.
func (r *Result[T]) ErrorMessage() string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(r.Raw, &body); err != nil {
		return ""
	}
	return body.Error
}

// MarshalJSON renders the result the way the CLI prints it. Non-2xx results
// carry the raw body as data.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	var data any = r.Data
	if !r.OK() {
		data = r.Raw
	}
	return json.Marshal(struct {
		Status         int    `json:"status"`
		Data           any    `json:"data"`
		PaidAmount     string `json:"paidAmount"`
		ResponseTimeMs int64  `json:"responseTimeMs"`
	}{
		Status:         r.Status,
		Data:           data,
		PaidAmount:     r.PaidAmount,
		ResponseTimeMs: r.ResponseTime.Milliseconds(),
	})
}

// Balance returns ETH and USDC balances for addr.
func (c *Client) Balance(ctx context.Context, addr string) (*Result[BalanceResult], error) {
	addr, err := validateAddress("balance", "address", addr)
	if err != nil {
		return nil, err
	}
	return call[BalanceResult](ctx, c, "balance", http.MethodGet, "/balance/"+addr, nil)
}

// Tx looks up a transaction by hash.
func (c *Client) Tx(ctx context.Context, hash string) (*Result[TxResult], error) {
	hash, err := validateTxHash("tx", hash)
	if err != nil {
		return nil, err
	}
	return call[TxResult](ctx, c, "tx", http.MethodGet, "/tx/"+hash, nil)
}

// Price returns the USD price of token.
func (c *Client) Price(ctx context.Context, token string) (*Result[PriceResult], error) {
	token, err := required("price", "token", token)
	if err != nil {
		return nil, err
	}
	return call[PriceResult](ctx, c, "price", http.MethodGet, "/price/"+url.PathEscape(strings.ToUpper(token)), nil)
}

// Wallet asks the skill API to generate a fresh key pair.
func (c *Client) Wallet(ctx context.Context) (*Result[WalletResult], error) {
	return call[WalletResult](ctx, c, "wallet", http.MethodGet, "/wallet/generate", nil)
}

// Chat sends message after history to the chat skill.
func (c *Client) Chat(ctx context.Context, message string, history []ChatMessage) (*Result[ChatResult], error) {
	if strings.TrimSpace(message) == "" {
		return nil, invalid("chat", "message", "", "is required")
	}
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: "user", Content: message})
	body := map[string]any{"messages": messages}
	return call[ChatResult](ctx, c, "chat", http.MethodPost, "/chat", body)
}

// Send builds an unsigned transfer of amount token to to.
func (c *Client) Send(ctx context.Context, to, amount, token string) (*Result[SendResult], error) {
	to, err := validateAddress("send", "to", to)
	if err != nil {
		return nil, err
	}
	if amount, err = validateAmount("send", amount); err != nil {
		return nil, err
	}
	if token, err = validateSendToken("send", token); err != nil {
		return nil, err
	}
	body := map[string]string{"to": to, "amount": amount, "token": token}
	return call[SendResult](ctx, c, "send", http.MethodPost, "/send", body)
}

// Trade builds an unsigned swap of amount src into dst from the session
// wallet. A non-positive slippage uses DefaultSlippage.
func (c *Client) Trade(ctx context.Context, src, dst, amount string, slippage float64) (*Result[TradeResult], error) {
	src, err := required("trade", "src", src)
	if err != nil {
		return nil, err
	}
	if dst, err = required("trade", "dst", dst); err != nil {
		return nil, err
	}
	if amount, err = validateAmount("trade", amount); err != nil {
		return nil, err
	}
	from, err := c.walletAddress("trade")
	if err != nil {
		return nil, err
	}
	if slippage <= 0 {
		slippage = DefaultSlippage
	}
	body := map[string]any{
		"src":      src,
		"dst":      dst,
		"amount":   amount,
		"from":     from,
		"slippage": slippage,
	}
	return call[TradeResult](ctx, c, "trade", http.MethodPost, "/trade", body)
}

// Fund returns funding instructions for addr, or the session wallet when
// addr is empty.
func (c *Client) Fund(ctx context.Context, addr string) (*Result[FundResult], error) {
	var err error
	if strings.TrimSpace(addr) == "" {
		addr, err = c.walletAddress("fund")
	} else {
		addr, err = validateAddress("fund", "address", addr)
	}
	if err != nil {
		return nil, err
	}
	return call[FundResult](ctx, c, "fund", http.MethodGet, "/fund/"+addr, nil)
}

// Broadcast has the skill API sign tx with the session key and submit it.
// The key travels in the request body.
func (c *Client) Broadcast(ctx context.Context, tx BroadcastTx) (*Result[BroadcastResult], error) {
	to, err := validateAddress("broadcast", "to", tx.To)
	if err != nil {
		return nil, err
	}
	tx.To = to
	if c.wallet == nil {
		return nil, missingWallet("broadcast")
	}
	body := map[string]any{"tx": tx, "privateKey": c.wallet.PrivateKeyHex()}
	return call[BroadcastResult](ctx, c, "broadcast", http.MethodPost, "/broadcast", body)
}

// Unlimited purchases an unlimited-plan API key.
func (c *Client) Unlimited(ctx context.Context) (*Result[UnlimitedResult], error) {
	return call[UnlimitedResult](ctx, c, "unlimited", http.MethodPost, "/unlimited", nil)
}

// UnlimitedVerify checks an API key. It never enters the payment flow.
func (c *Client) UnlimitedVerify(ctx context.Context, key string) (*Result[UnlimitedVerifyResult], error) {
	key, err := required("unlimited_verify", "key", key)
	if err != nil {
		return nil, err
	}
	resp, err := c.x402.Fetch(ctx, x402.Request{
		Operation: "unlimited_verify",
		Method:    http.MethodGet,
		URL:       c.baseURL + "/unlimited/verify?key=" + url.QueryEscape(key),
	})
	if err != nil {
		return nil, err
	}
	return decode[UnlimitedVerifyResult]("unlimited_verify", resp)
}

func (c *Client) walletAddress(op string) (string, error) {
	if c.wallet == nil {
		return "", missingWallet(op)
	}
	return c.wallet.Address(), nil
}

func missingWallet(op string) error {
	return x402.NewError(x402.KindConfig, errors.ErrCodeNotConfigured, op, "", fmt.Errorf("no wallet configured"))
}

func call[T any](ctx context.Context, c *Client, op, method, path string, body any) (*Result[T], error) {
	resp, err := c.x402.Do(ctx, x402.Request{
		Operation: op,
		Method:    method,
		URL:       c.baseURL + path,
		Body:      body,
		APIKey:    c.apiKey,
	})
	if err != nil {
		return nil, err
	}
	return decode[T](op, resp)
}

// decode returns the result even when a 2xx body does not fit T, so a paid
// amount is never lost to a decode error.
func decode[T any](op string, resp *x402.Response) (*Result[T], error) {
	res := &Result[T]{
		Status:       resp.Status,
		Raw:          resp.Data,
		PaidAmount:   resp.PaidAmount,
		ResponseTime: resp.ResponseTime,
	}
	if !resp.OK() {
		return res, nil
	}
	if err := resp.Decode(&res.Data); err != nil {
		return res, x402.NewError(x402.KindProtocol, errors.ErrCodeNonJSONBody, op, resp.URL,
			fmt.Errorf("decode response: %w", err))
	}
	return res, nil
}
