package ledger

import (
	"errors"
	"math/big"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	apierrors "github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/pkg/x402"
)

func TestUnlimitedAlwaysAllows(t *testing.T) {
	l := New()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a := big.NewInt(rng.Int63())
		if !l.CanSpend(a) {
			t.Fatalf("unlimited ledger refused %s", a)
		}
		l.RecordSpend(a)
	}
	huge, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)
	if !l.CanSpend(huge) {
		t.Error("unlimited ledger refused a huge amount")
	}
}

func TestSetLimit(t *testing.T) {
	tests := []struct {
		in        string
		wantLimit string
		wantErr   bool
	}{
		{in: "1", wantLimit: "1000000"},
		{in: "0.05", wantLimit: "50000"},
		{in: "10.123456789", wantLimit: "10123456"},
		{in: "0.0000001", wantLimit: "0"},
		{in: "0", wantLimit: "0"},
		{in: "-1", wantErr: true},
		{in: "ten", wantErr: true},
		{in: "", wantErr: true},
		{in: "1e200000000", wantErr: true},
		{in: "1e3", wantErr: true},
		{in: "1000000000000000000000000000000000000000000000000000000000000000000000000000000000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l := New()
			err := l.SetLimit(tt.in)
			if tt.wantErr {
				if !errors.Is(err, x402.ErrConfig) {
					t.Fatalf("expected config error, got %v", err)
				}
				if apierrors.CodeOf(err) != apierrors.ErrCodeInvalidLimit {
					t.Errorf("code = %s", apierrors.CodeOf(err))
				}
				if l.LimitAtomic() != nil {
					t.Error("failed SetLimit must leave the ledger unlimited")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := l.LimitAtomic().String(); got != tt.wantLimit {
				t.Errorf("limit = %s, want %s", got, tt.wantLimit)
			}
		})
	}
}

func TestZeroBudgetRefusesAnyPayment(t *testing.T) {
	l := New()
	if err := l.SetLimit("0.0000001"); err != nil {
		t.Fatal(err)
	}
	if l.CanSpend(big.NewInt(1)) {
		t.Error("zero budget allowed a payment")
	}
	if !l.CanSpend(big.NewInt(0)) {
		t.Error("zero budget should allow a free payment")
	}
}

func TestRecordedSumAndGate(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		l := New()
		limitUSDC := rng.Intn(5) + 1
		if err := l.SetLimit(strconv.Itoa(limitUSDC)); err != nil {
			t.Fatal(err)
		}
		limit := big.NewInt(int64(limitUSDC) * 1_000_000)

		sum := new(big.Int)
		for i := 0; i < 40; i++ {
			a := big.NewInt(rng.Int63n(300_000))
			next := new(big.Int).Add(sum, a)
			want := next.Cmp(limit) <= 0
			if got := l.CanSpend(a); got != want {
				t.Fatalf("trial %d: CanSpend(%s) with spent %s = %v, want %v", trial, a, sum, got, want)
			}
			if !want {
				break
			}
			l.RecordSpend(a)
			sum = next
			if l.SpentAtomic().Cmp(sum) != 0 {
				t.Fatalf("spent = %s, want %s", l.SpentAtomic(), sum)
			}
		}
	}
}

func TestExactLimitBoundary(t *testing.T) {
	l := New()
	if err := l.SetLimit("0.03"); err != nil {
		t.Fatal(err)
	}
	unit := big.NewInt(10000)
	for i := 0; i < 3; i++ {
		if !l.CanSpend(unit) {
			t.Fatalf("payment %d refused below limit", i+1)
		}
		l.RecordSpend(unit)
	}
	if l.CanSpend(big.NewInt(1)) {
		t.Error("payment beyond exact limit allowed")
	}
	if l.CallCount() != 3 {
		t.Errorf("callCount = %d", l.CallCount())
	}
}

func TestRecordSpendIsUnconditional(t *testing.T) {
	l := New()
	if err := l.SetLimit("0.01"); err != nil {
		t.Fatal(err)
	}
	l.RecordSpend(big.NewInt(50000))
	if l.SpentAtomic().Int64() != 50000 {
		t.Errorf("spent = %s", l.SpentAtomic())
	}
	st := l.Status()
	if st.Remaining != "0.00" {
		t.Errorf("remaining must clamp at zero, got %s", st.Remaining)
	}
}

func TestStatus(t *testing.T) {
	l := New()
	st := l.Status()
	want := Status{MaxBudget: "unlimited", Spent: "0.00", Remaining: "unlimited", CallCount: 0, IsLimited: false}
	if st != want {
		t.Errorf("status = %+v, want %+v", st, want)
	}

	if err := l.SetLimit("1.5"); err != nil {
		t.Fatal(err)
	}
	l.RecordSpend(big.NewInt(10000))
	l.RecordSpend(big.NewInt(5999))
	st = l.Status()
	want = Status{MaxBudget: "1.50", Spent: "0.01", Remaining: "1.48", CallCount: 2, IsLimited: true}
	if st != want {
		t.Errorf("status = %+v, want %+v", st, want)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		l := New()
		limit := rng.Int63n(100_000_000)
		if err := l.SetLimit(strconv.FormatFloat(float64(limit)/1e6, 'f', 6, 64)); err != nil {
			t.Fatal(err)
		}
		spent := rng.Int63n(limit + 1)
		l.RecordSpend(big.NewInt(spent))

		st := l.Status()
		checks := map[string]struct {
			display string
			atomic  int64
		}{
			"spent":     {st.Spent, l.SpentAtomic().Int64()},
			"maxBudget": {st.MaxBudget, l.LimitAtomic().Int64()},
			"remaining": {st.Remaining, l.LimitAtomic().Int64() - l.SpentAtomic().Int64()},
		}
		for name, c := range checks {
			f, err := strconv.ParseFloat(c.display, 64)
			if err != nil {
				t.Fatalf("%s %q not numeric", name, c.display)
			}
			got := int64(f*100+0.5) * 10_000
			// Truncation to cents loses at most one cent.
			if diff := c.atomic - got; diff < 0 || diff >= 10_000 {
				t.Errorf("%s: display %s vs atomic %d", name, c.display, c.atomic)
			}
		}
	}
}

func TestResetKeepsLimit(t *testing.T) {
	l := New()
	if err := l.SetLimit("1"); err != nil {
		t.Fatal(err)
	}
	l.RecordSpend(big.NewInt(400000))
	l.Reset()

	if l.SpentAtomic().Sign() != 0 || l.CallCount() != 0 {
		t.Errorf("reset left spent=%s calls=%d", l.SpentAtomic(), l.CallCount())
	}
	if l.LimitAtomic() == nil || l.LimitAtomic().Int64() != 1_000_000 {
		t.Errorf("reset cleared the limit")
	}
}

func TestClearLimit(t *testing.T) {
	l := New()
	if err := l.SetLimit("0"); err != nil {
		t.Fatal(err)
	}
	l.RecordSpend(big.NewInt(7))
	l.ClearLimit()
	if !l.CanSpend(big.NewInt(1_000_000_000)) {
		t.Error("cleared ledger should be unlimited")
	}
	if l.SpentAtomic().Int64() != 7 {
		t.Error("ClearLimit must keep spent")
	}
}

func TestConcurrentRecordSpend(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.RecordSpend(big.NewInt(1))
				_ = l.Status()
			}
		}()
	}
	wg.Wait()
	if l.SpentAtomic().Int64() != 5000 || l.CallCount() != 5000 {
		t.Errorf("spent=%s calls=%d, want 5000", l.SpentAtomic(), l.CallCount())
	}
}
