package httpserver

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pinionos/x402-client/internal/circuitbreaker"
	"github.com/pinionos/x402-client/internal/config"
	"github.com/pinionos/x402-client/internal/ledger"
	"github.com/pinionos/x402-client/internal/metrics"
	"github.com/pinionos/x402-client/internal/service"
)

// fakeSession serves a ledger-backed status without a wallet.
type fakeSession struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
	resets int
}

func newFakeSession() *fakeSession {
	return &fakeSession{ledger: ledger.New()}
}

func (f *fakeSession) Status() service.Status {
	return service.Status{
		Configured:    true,
		WalletAddress: "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
		Network:       "base",
		Spend:         f.ledger.Status(),
	}
}

func (f *fakeSession) SetBudget(amount string) error { return f.ledger.SetLimit(amount) }
func (f *fakeSession) ClearBudget()                  { f.ledger.ClearLimit() }

func (f *fakeSession) ResetSpend() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	f.ledger.Reset()
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Address: "127.0.0.1:0"},
		RateLimit: config.RateLimitConfig{
			GlobalEnabled: true,
			GlobalLimit:   1000,
			GlobalWindow:  config.Duration{Duration: time.Minute},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, session Session) http.Handler {
	t.Helper()
	registry := prometheus.NewRegistry()
	srv := New(cfg, Deps{
		Session:  session,
		Breakers: circuitbreaker.NewManager(circuitbreaker.DefaultConfig()),
		Metrics:  metrics.New(registry),
		Gatherer: registry,
		Logger:   zerolog.Nop(),
	})
	return srv.Handler()
}

func do(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndStatus(t *testing.T) {
	session := newFakeSession()
	session.ledger.RecordSpend(big.NewInt(10000))
	h := newTestServer(t, testConfig(), session)

	w := do(h, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("Cache-Control") != "no-store" {
		t.Error("security headers missing")
	}

	w = do(h, http.MethodGet, "/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	var body struct {
		Configured      bool          `json:"configured"`
		WalletAddress   string        `json:"walletAddress"`
		Spend           ledger.Status `json:"spend"`
		CircuitBreakers map[string]struct {
			State string `json:"state"`
		} `json:"circuitBreakers"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Configured || body.Spend.Spent != "0.01" || body.Spend.CallCount != 1 {
		t.Errorf("unexpected status %+v", body)
	}
	if body.CircuitBreakers["skill_api"].State != "closed" || body.CircuitBreakers["paid_service"].State != "closed" {
		t.Errorf("breakers %+v", body.CircuitBreakers)
	}
}

func TestSpendControls(t *testing.T) {
	session := newFakeSession()
	session.ledger.RecordSpend(big.NewInt(250000))
	h := newTestServer(t, testConfig(), session)

	w := do(h, http.MethodPut, "/spend/limit", `{"maxBudget":"1.50"}`, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"remaining":"1.25"`) {
		t.Errorf("set limit: %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"negative", `{"maxBudget":"-1"}`, http.StatusBadRequest, "invalid_spend_limit"},
		{"exponent", `{"maxBudget":"1e200000000"}`, http.StatusBadRequest, "invalid_spend_limit"},
		{"missing", `{}`, http.StatusBadRequest, "missing_field"},
		{"unknown field", `{"max":"1"}`, http.StatusBadRequest, "invalid_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPut, "/spend/limit", tt.body, nil)
			if w.Code != tt.code || !strings.Contains(w.Body.String(), tt.err) {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}

	w = do(h, http.MethodPost, "/spend/reset", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"spent":"0.00"`) {
		t.Errorf("reset: %d %s", w.Code, w.Body.String())
	}
	if session.resets != 1 {
		t.Errorf("resets = %d", session.resets)
	}

	w = do(h, http.MethodDelete, "/spend/limit", "", nil)
	if !strings.Contains(w.Body.String(), `"maxBudget":"unlimited"`) {
		t.Errorf("clear: %s", w.Body.String())
	}
}

func TestAdminKeyAndPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AdminAPIKey = "s3cret"
	cfg.Server.RoutePrefix = "/pinion"
	session := newFakeSession()
	h := newTestServer(t, cfg, session)

	if w := do(h, http.MethodGet, "/pinion/status", "", nil); w.Code != http.StatusOK {
		t.Errorf("status should stay open, got %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/status", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unprefixed route should 404, got %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/pinion/spend/reset", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("reset without key: %d", w.Code)
	}
	if w := do(h, http.MethodGet, "/pinion/metrics", "", map[string]string{"Authorization": "Bearer wrong"}); w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"code":"unauthorized"`) {
		t.Errorf("metrics with wrong key: %d %s", w.Code, w.Body.String())
	}
	if session.resets != 0 {
		t.Error("unauthorized reset reached the session")
	}

	auth := map[string]string{"Authorization": "Bearer s3cret"}
	if w := do(h, http.MethodPost, "/pinion/spend/reset", "", auth); w.Code != http.StatusOK {
		t.Errorf("reset with key: %d", w.Code)
	}
	w := do(h, http.MethodGet, "/pinion/metrics", "", auth)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pinion_") {
		t.Errorf("metrics: %d", w.Code)
	}
}

func TestRateLimitAndCORS(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.GlobalLimit = 2
	cfg.Server.CORSAllowedOrigins = []string{"https://dash.example"}
	h := newTestServer(t, cfg, newFakeSession())

	origin := map[string]string{"Origin": "https://dash.example"}
	w := do(h, http.MethodGet, "/health", "", origin)
	if w.Header().Get("Access-Control-Allow-Origin") != "https://dash.example" {
		t.Errorf("CORS header missing: %v", w.Header())
	}
	do(h, http.MethodGet, "/health", "", nil)
	if w := do(h, http.MethodGet, "/health", "", nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
}
