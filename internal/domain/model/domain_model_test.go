//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"telegram-generation-billing/internal/domain"
)

// --- User Model Tests ---

func TestNewUser(t *testing.T) {
	t.Run("should create a new user successfully", func(t *testing.T) {
		startTime := time.Now()
		user, err := NewUser("", 12345, "Ann", "testuser", 2)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if user.ID == "" {
			t.Error("expected user ID to be generated")
		}
		if user.TelegramID != 12345 || user.Username != "testuser" || user.FirstName != "Ann" {
			t.Errorf("unexpected identity fields: %+v", user)
		}
		if user.Balance != 2 {
			t.Errorf("expected initial balance 2, got %d", user.Balance)
		}
		if user.CreatedAt.Before(startTime.Add(-time.Second)) {
			t.Error("CreatedAt is too far in the past")
		}
	})

	t.Run("should reject invalid input", func(t *testing.T) {
		if _, err := NewUser("", 0, "", "", 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for zero telegram id, got %v", err)
		}
		if _, err := NewUser("", 1, "", "", -1); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for negative balance, got %v", err)
		}
	})

	t.Run("IsZero", func(t *testing.T) {
		var u *User
		if !u.IsZero() || !(&User{}).IsZero() {
			t.Error("nil and empty users must be zero")
		}
	})
}

// --- Payment Model Tests ---

func TestNextStatus(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     PaymentStatus
		wantErr  bool
	}{
		{PaymentStatusPending, PaymentStatusPending, PaymentStatusPending, false},
		{PaymentStatusPending, PaymentStatusSuccess, PaymentStatusSuccess, false},
		{PaymentStatusPending, PaymentStatusFailed, PaymentStatusFailed, false},
		{PaymentStatusSuccess, PaymentStatusSuccess, PaymentStatusSuccess, false},
		{PaymentStatusFailed, PaymentStatusFailed, PaymentStatusFailed, false},
		{PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusSuccess, true},
		{PaymentStatusSuccess, PaymentStatusPending, PaymentStatusSuccess, true},
		{PaymentStatusFailed, PaymentStatusSuccess, PaymentStatusFailed, true},
		{PaymentStatusPending, "refunded", PaymentStatusPending, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			got, err := NextStatus(tc.from, tc.to)
			if got != tc.want {
				t.Errorf("status = %s, want %s", got, tc.want)
			}
			if tc.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestParsePaymentStatus(t *testing.T) {
	for _, s := range []string{"pending", "success", "failed"} {
		if _, err := ParsePaymentStatus(s); err != nil {
			t.Errorf("ParsePaymentStatus(%q): %v", s, err)
		}
	}
	if _, err := ParsePaymentStatus("paid"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestPaymentSettlement(t *testing.T) {
	tier := PricingTier{Generations: 10, Price: 15000, Currency: "RUB"}
	p, err := NewPayment("pay-1", "user-1", "robokassa", tier)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	if p.Status != PaymentStatusPending || p.Credited || p.Amount != 15000 || p.Generations != 10 {
		t.Fatalf("unexpected new payment: %+v", p)
	}

	t.Run("pending is neither settled nor owed", func(t *testing.T) {
		if p.IsSettled() || p.NeedsCredit() {
			t.Error("pending payment must not be settled or owed")
		}
	})

	t.Run("success without credit is owed", func(t *testing.T) {
		q := *p
		q.Status = PaymentStatusSuccess
		if q.IsSettled() || !q.NeedsCredit() {
			t.Error("uncredited success must be owed and unsettled")
		}
		q.Credited = true
		if !q.IsSettled() || q.NeedsCredit() {
			t.Error("credited success must be settled")
		}
	})

	t.Run("failed is settled", func(t *testing.T) {
		q := *p
		q.Status = PaymentStatusFailed
		if !q.IsSettled() || q.NeedsCredit() {
			t.Error("failed payment must be settled and never owed")
		}
	})

	t.Run("rejects invalid tier", func(t *testing.T) {
		if _, err := NewPayment("pay-2", "user-1", "robokassa", PricingTier{Generations: 10}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("age", func(t *testing.T) {
		if got := p.Age(p.CreatedAt.Add(time.Minute)); got != time.Minute {
			t.Errorf("Age = %s, want 1m", got)
		}
	})
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{15000: "150.00", 1: "0.01", 99: "0.99", 100050: "1000.50", 0: "0.00"}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%d) = %q, want %q", in, got, want)
		}
	}
}

// --- PromoCode Model Tests ---

func TestPromoCode(t *testing.T) {
	pc, err := NewPromoCode("promo-1", "  spring25 ", 5, 2)
	if err != nil {
		t.Fatalf("NewPromoCode: %v", err)
	}
	if pc.Code != "SPRING25" {
		t.Errorf("code = %q, want SPRING25", pc.Code)
	}
	if pc.IsExhausted() {
		t.Error("fresh code must not be exhausted")
	}
	pc.UsageCount = 2
	if !pc.IsExhausted() {
		t.Error("code at its limit must be exhausted")
	}

	if _, err := NewPromoCode("promo-2", "X", 0, 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero generations, got %v", err)
	}
	if _, err := NewPromoCode("promo-3", "   ", 1, 1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for blank code, got %v", err)
	}
}
