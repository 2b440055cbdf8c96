package x402_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sony/gobreaker"

	apierrors "github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/pkg/x402"
	"github.com/pinionos/x402-client/pkg/x402/evm"
)

const (
	testKey   = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

const challengeBody = `{"x402Version":1,"accepts":[{"scheme":"exact","network":"base","maxAmountRequired":"10000","payTo":"` + testPayTo + `","asset":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","maxTimeoutSeconds":300,"extra":{"name":"USD Coin","version":"2"}}]}`

type recorded struct {
	method  string
	payment string
	apiKey  string
	body    string
}

// paywall answers 402 until a request carries X-PAYMENT.
type paywall struct {
	mu        sync.Mutex
	calls     []recorded
	paidCode  int
	paidBody  string
	freeCode  int
	freeBody  string
	challenge string
}

func (p *paywall) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	p.calls = append(p.calls, recorded{
		method:  r.Method,
		payment: r.Header.Get(x402.HeaderPayment),
		apiKey:  r.Header.Get(x402.HeaderAPIKey),
		body:    string(body),
	})
	p.mu.Unlock()

	switch {
	case p.freeCode != 0:
		w.WriteHeader(p.freeCode)
		_, _ = io.WriteString(w, p.freeBody)
	case r.Header.Get(x402.HeaderAPIKey) != "":
		_, _ = io.WriteString(w, `{"bypass":true}`)
	case r.Header.Get(x402.HeaderPayment) == "":
		w.WriteHeader(http.StatusPaymentRequired)
		challenge := p.challenge
		if challenge == "" {
			challenge = challengeBody
		}
		_, _ = io.WriteString(w, challenge)
	default:
		code := p.paidCode
		if code == 0 {
			code = http.StatusOK
		}
		w.WriteHeader(code)
		body := p.paidBody
		if body == "" {
			body = `{"ok":true}`
		}
		_, _ = io.WriteString(w, body)
	}
}

func (p *paywall) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type memBudget struct {
	limit *big.Int
	spent *big.Int
	calls int
}

func newBudget(limit int64) *memBudget {
	return &memBudget{limit: big.NewInt(limit), spent: new(big.Int)}
}

func (b *memBudget) CanSpend(amount *big.Int) bool {
	return new(big.Int).Add(b.spent, amount).Cmp(b.limit) <= 0
}

func (b *memBudget) RecordSpend(amount *big.Int) {
	b.spent.Add(b.spent, amount)
	b.calls++
}

type captureObserver struct {
	events []x402.Exchange
}

func (c *captureObserver) ObserveExchange(_ context.Context, ex x402.Exchange) {
	c.events = append(c.events, ex)
}

func newTestClient(t *testing.T, opts ...x402.Option) *x402.Client {
	t.Helper()
	signer, err := evm.NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return x402.NewClient(signer, opts...)
}

func TestDo_PaysChallengeAndRetries(t *testing.T) {
	pw := &paywall{}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	obs := &captureObserver{}
	client := newTestClient(t, x402.WithObserver(obs))

	resp, err := client.Do(context.Background(), x402.Request{Operation: "balance", Method: "GET", URL: srv.URL + "/balance/0x1"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if resp.PaidAmount != "10000" {
		t.Errorf("paidAmount = %q, want 10000", resp.PaidAmount)
	}
	if string(resp.Data) != `{"ok":true}` {
		t.Errorf("data = %s", resp.Data)
	}
	if resp.Requirement == nil || resp.Requirement.PayTo != testPayTo {
		t.Errorf("requirement not surfaced: %+v", resp.Requirement)
	}

	if pw.count() != 2 {
		t.Fatalf("calls = %d, want 2", pw.count())
	}
	if pw.calls[0].payment != "" {
		t.Error("first call must not carry a payment")
	}
	if pw.calls[1].payment == "" {
		t.Fatal("second call must carry a payment")
	}

	payload, err := x402.DecodePaymentHeader(pw.calls[1].payment)
	if err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	if payload.Scheme != "exact" || payload.Network != "base" || payload.X402Version != 1 {
		t.Errorf("unexpected envelope %+v", payload)
	}
	auth := payload.Payload.Authorization
	if auth.To != testPayTo || auth.Value != "10000" {
		t.Errorf("unexpected authorization %+v", auth)
	}
	req, _, _ := x402.ParsePaymentRequired([]byte(challengeBody))
	from, err := evm.RecoverAuthorizer(auth, req, payload.Payload.Signature)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if from != client.Signer().Address() {
		t.Errorf("recovered %s, want %s", from, client.Signer().Address())
	}

	if len(obs.events) != 1 || obs.events[0].Outcome != x402.OutcomePaid || obs.events[0].Network != "base" {
		t.Errorf("unexpected observed events %+v", obs.events)
	}
}

func TestDo_NonPaymentResponseShortCircuits(t *testing.T) {
	pw := &paywall{freeCode: http.StatusOK, freeBody: `{"price":1}`}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	budget := newBudget(0)
	resp, err := newTestClient(t, x402.WithBudget(budget)).Do(context.Background(), x402.Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.PaidAmount != "0" || resp.Paid() {
		t.Errorf("paidAmount = %q, want 0", resp.PaidAmount)
	}
	if pw.count() != 1 {
		t.Errorf("calls = %d, want 1", pw.count())
	}
	if budget.calls != 0 {
		t.Errorf("budget recorded %d spends, want 0", budget.calls)
	}
}

func TestDo_ErrorStatusIsReturnedNotRaised(t *testing.T) {
	pw := &paywall{freeCode: http.StatusNotFound, freeBody: `{"error":"not found"}`}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	resp, err := newTestClient(t).Do(context.Background(), x402.Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusNotFound || resp.OK() {
		t.Errorf("status = %d, want 404", resp.Status)
	}
}

func TestDo_MaxAmountCeiling(t *testing.T) {
	pw := &paywall{}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	_, err := newTestClient(t).Do(context.Background(), x402.Request{URL: srv.URL, MaxAmount: big.NewInt(5000)})
	if !errors.Is(err, x402.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	if apierrors.CodeOf(err) != apierrors.ErrCodeBudgetExceeded {
		t.Errorf("code = %s", apierrors.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "10000") || !strings.Contains(err.Error(), "5000") {
		t.Errorf("error should name both amounts: %v", err)
	}
	if pw.count() != 1 {
		t.Errorf("calls = %d, want 1", pw.count())
	}
}

func TestDo_LedgerGate(t *testing.T) {
	pw := &paywall{}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	budget := newBudget(15000)
	client := newTestClient(t, x402.WithBudget(budget))

	if _, err := client.Do(context.Background(), x402.Request{URL: srv.URL}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if budget.spent.Int64() != 10000 || budget.calls != 1 {
		t.Fatalf("spent = %s calls = %d", budget.spent, budget.calls)
	}

	_, err := client.Do(context.Background(), x402.Request{URL: srv.URL})
	if !errors.Is(err, x402.ErrBudgetExceeded) {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
	if apierrors.CodeOf(err) != apierrors.ErrCodeSpendLimitReached {
		t.Errorf("code = %s", apierrors.CodeOf(err))
	}
	if budget.spent.Int64() != 10000 {
		t.Errorf("rejected call changed spend to %s", budget.spent)
	}
	// 2 calls for the paid request plus the unpaid challenge of the rejected one.
	if pw.count() != 3 {
		t.Errorf("calls = %d, want 3", pw.count())
	}
}

func TestDo_PaidRetryIsAuthoritative(t *testing.T) {
	pw := &paywall{paidCode: http.StatusPaymentRequired, paidBody: `{"error":"payment rejected"}`}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	budget := newBudget(1_000_000)
	resp, err := newTestClient(t, x402.WithBudget(budget)).Do(context.Background(), x402.Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", resp.Status)
	}
	if pw.count() != 2 {
		t.Errorf("calls = %d, want 2 (no further retries)", pw.count())
	}
	if budget.calls != 1 {
		t.Errorf("spend should be recorded once the payment was sent")
	}
}

func TestDo_UnparseableChallenge(t *testing.T) {
	tests := map[string]string{
		"empty accepts": `{"accepts":[]}`,
		"not json":      `<html>pay</html>`,
		"bad amount":    `{"accepts":[{"payTo":"` + testPayTo + `","maxAmountRequired":"ten"}]}`,
	}
	for name, challenge := range tests {
		t.Run(name, func(t *testing.T) {
			pw := &paywall{challenge: challenge}
			srv := httptest.NewServer(pw)
			defer srv.Close()

			_, err := newTestClient(t).Do(context.Background(), x402.Request{Operation: "price", URL: srv.URL})
			if !errors.Is(err, x402.ErrProtocol) {
				t.Fatalf("expected protocol error, got %v", err)
			}
			var xe *x402.Error
			if !errors.As(err, &xe) || xe.Op != "price" || xe.Target != srv.URL {
				t.Errorf("error missing context: %+v", xe)
			}
			if pw.count() != 1 {
				t.Errorf("calls = %d, want 1", pw.count())
			}
		})
	}
}

func TestDo_BypassKey(t *testing.T) {
	pw := &paywall{}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	budget := newBudget(0)
	resp, err := newTestClient(t, x402.WithBudget(budget)).Do(context.Background(), x402.Request{URL: srv.URL, APIKey: "key-123"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.PaidAmount != "0" || string(resp.Data) != `{"bypass":true}` {
		t.Errorf("unexpected response %+v", resp)
	}
	if pw.count() != 1 || pw.calls[0].apiKey != "key-123" || pw.calls[0].payment != "" {
		t.Errorf("unexpected calls %+v", pw.calls)
	}
	if budget.calls != 0 {
		t.Error("bypass must not record spend")
	}
}

func TestDo_NonJSONBody(t *testing.T) {
	pw := &paywall{freeCode: http.StatusBadGateway, freeBody: "upstream down"}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	resp, err := newTestClient(t).Do(context.Background(), x402.Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusBadGateway {
		t.Errorf("status = %d", resp.Status)
	}
	var body map[string]string
	if err := resp.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "non-json response" {
		t.Errorf("body = %v", body)
	}
}

func TestDo_BodyOnlyForWriteMethods(t *testing.T) {
	pw := &paywall{freeCode: http.StatusOK, freeBody: `{}`}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	client := newTestClient(t)
	payload := map[string]string{"to": "0x1"}
	for _, method := range []string{"GET", "post", "PUT", "PATCH", "DELETE"} {
		if _, err := client.Do(context.Background(), x402.Request{Method: method, URL: srv.URL, Body: payload}); err != nil {
			t.Fatalf("%s: %v", method, err)
		}
	}

	want := []bool{false, true, true, true, false}
	for i, call := range pw.calls {
		hasBody := call.body != ""
		if hasBody != want[i] {
			t.Errorf("%s: body sent = %v, want %v", call.method, hasBody, want[i])
		}
		if hasBody {
			var got map[string]string
			if err := json.Unmarshal([]byte(call.body), &got); err != nil || got["to"] != "0x1" {
				t.Errorf("%s: body = %q", call.method, call.body)
			}
		}
	}
}

func TestDo_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t).Do(context.Background(), x402.Request{URL: url})
	if !errors.Is(err, x402.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if apierrors.CodeOf(err) != apierrors.ErrCodeTransportError {
		t.Errorf("code = %s", apierrors.CodeOf(err))
	}
}

func TestDo_OpenCircuit(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	client := newTestClient(t, x402.WithBreaker(cb))

	if _, err := client.Do(context.Background(), x402.Request{URL: url}); apierrors.CodeOf(err) != apierrors.ErrCodeTransportError {
		t.Fatalf("first call: %v", err)
	}
	_, err := client.Do(context.Background(), x402.Request{URL: url})
	if !errors.Is(err, x402.ErrTransport) || apierrors.CodeOf(err) != apierrors.ErrCodeCircuitOpen {
		t.Fatalf("expected circuit open, got %v", err)
	}
}

func TestDo_MissingSigner(t *testing.T) {
	pw := &paywall{}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	_, err := x402.NewClient(nil).Do(context.Background(), x402.Request{URL: srv.URL})
	if !errors.Is(err, x402.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestFetch_DoesNotPay(t *testing.T) {
	pw := &paywall{}
	srv := httptest.NewServer(pw)
	defer srv.Close()

	resp, err := newTestClient(t).Fetch(context.Background(), x402.Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusPaymentRequired || pw.count() != 1 {
		t.Errorf("status = %d calls = %d", resp.Status, pw.count())
	}
}
