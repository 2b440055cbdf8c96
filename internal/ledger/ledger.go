// Package ledger tracks session spend against an optional budget in USDC
// atomic units.
//
// Each method is safe for concurrent use, but CanSpend followed by
// RecordSpend is not a single atomic step: the client checks before the
// paid round trip and records after it. Concurrent payments on one session
// may therefore overshoot the limit by up to one payment each. Budgets are
// best-effort guards, not hard caps.
package ledger

import (
	"errors"
	"math/big"
	"sync"

	apierrors "github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/internal/money"
	"github.com/pinionos/x402-client/pkg/x402"
)

// Unlimited is rendered in place of figures when no limit is set.
const Unlimited = "unlimited"

// Status is a point-in-time snapshot rendered for display.
type Status struct {
	MaxBudget string `json:"maxBudget"`
	Spent     string `json:"spent"`
	Remaining string `json:"remaining"`
	CallCount int    `json:"callCount"`
	IsLimited bool   `json:"isLimited"`
}

// Ledger is a session spend tracker. The zero value is not usable; call New.
type Ledger struct {
	mu    sync.Mutex
	limit *big.Int // nil means unlimited
	spent *big.Int
	calls int
}

// New returns an unlimited ledger with nothing spent.
func New() *Ledger {
	return &Ledger{spent: new(big.Int)}
}

// SetLimit sets the budget from a decimal USDC string. Precision below one
// atomic unit is floored, so "0.0000001" yields a zero budget.
func (l *Ledger) SetLimit(amount string) error {
	m, err := money.FromMajor(money.USDC, amount)
	if err != nil {
		code := apierrors.ErrCodeInvalidLimit
		if errors.Is(err, money.ErrNegativeAmount) {
			return x402.NewError(x402.KindConfig, code, "set_limit", amount, errors.New("spend limit cannot be negative"))
		}
		return x402.NewError(x402.KindConfig, code, "set_limit", amount, errors.New("spend limit must be a decimal number"))
	}

	l.mu.Lock()
	l.limit = m.Atomic
	l.mu.Unlock()
	return nil
}

// ClearLimit removes the budget. Spent and call count are kept.
func (l *Ledger) ClearLimit() {
	l.mu.Lock()
	l.limit = nil
	l.mu.Unlock()
}

// CanSpend reports whether amount fits in the remaining budget.
func (l *Ledger) CanSpend(amount *big.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit == nil {
		return true
	}
	next := new(big.Int).Add(l.spent, amount)
	return next.Cmp(l.limit) <= 0
}

// RecordSpend adds amount to the running total. It does not check the limit;
// callers gate with CanSpend first.
func (l *Ledger) RecordSpend(amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount != nil {
		l.spent.Add(l.spent, amount)
	}
	l.calls++
}

// Reset zeroes spent and call count. The limit is kept.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.spent = new(big.Int)
	l.calls = 0
	l.mu.Unlock()
}

// SpentAtomic returns a copy of the spent total.
func (l *Ledger) SpentAtomic() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.spent)
}

// LimitAtomic returns a copy of the limit, or nil when unlimited.
func (l *Ledger) LimitAtomic() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit == nil {
		return nil
	}
	return new(big.Int).Set(l.limit)
}

// CallCount returns the number of recorded spends.
func (l *Ledger) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Status renders the ledger with two decimal places, truncated.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	spent := money.New(money.USDC, l.spent)
	calls := l.calls
	var limit *money.Money
	if l.limit != nil {
		m := money.New(money.USDC, l.limit)
		limit = &m
	}
	l.mu.Unlock()

	st := Status{
		MaxBudget: Unlimited,
		Spent:     spent.Display(2),
		Remaining: Unlimited,
		CallCount: calls,
		IsLimited: limit != nil,
	}
	if limit != nil {
		remaining, _ := limit.SubFloor(spent)
		st.MaxBudget = limit.Display(2)
		st.Remaining = remaining.Display(2)
	}
	return st
}

var _ x402.Budget = (*Ledger)(nil)
