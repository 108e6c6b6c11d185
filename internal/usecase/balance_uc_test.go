//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/usecase"
)

func TestBalanceUseCase_DebitOne(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent debits never overdraw", func(t *testing.T) {
		f := newFixture()
		u := f.addUser(1, 1)

		results := make([]usecase.DebitResult, 2)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := f.balance.DebitOne(ctx, u.ID)
				if err != nil {
					t.Errorf("DebitOne: %v", err)
				}
				results[i] = res
			}(i)
		}
		wg.Wait()

		debited, insufficient := 0, 0
		for _, r := range results {
			switch r.Outcome {
			case usecase.DebitOutcomeDebited:
				debited++
			case usecase.DebitOutcomeInsufficient:
				insufficient++
			}
			if r.Balance != 0 {
				t.Errorf("expected balance 0 in every result, got %+v", r)
			}
		}
		if debited != 1 || insufficient != 1 {
			t.Fatalf("expected one success and one failure, got %+v", results)
		}
		if f.balanceOf(u.ID) != 0 {
			t.Fatalf("balance went to %d", f.balanceOf(u.ID))
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture()
		res, err := f.balance.DebitOne(ctx, "missing")
		if err != nil || res.Outcome != usecase.DebitOutcomeNotFound {
			t.Fatalf("unexpected %+v, %v", res, err)
		}
	})

	t.Run("decrements by one", func(t *testing.T) {
		f := newFixture()
		u := f.addUser(1, 5)
		res, err := f.balance.DebitOne(ctx, u.ID)
		if err != nil || res.Outcome != usecase.DebitOutcomeDebited || res.Balance != 4 {
			t.Fatalf("unexpected %+v, %v", res, err)
		}
	})
}

func TestBalanceUseCase_Credit(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent credits are all applied", func(t *testing.T) {
		f := newFixture()
		u := f.addUser(1, 0)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.balance.Credit(ctx, nil, u.ID, 3); err != nil {
					t.Errorf("Credit: %v", err)
				}
			}()
		}
		wg.Wait()
		if got := f.balanceOf(u.ID); got != 60 {
			t.Fatalf("expected 60, got %d", got)
		}
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		f := newFixture()
		u := f.addUser(1, 0)
		if _, err := f.balance.Credit(ctx, nil, u.ID, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("referral bonus bumps both counters", func(t *testing.T) {
		f := newFixture()
		u := f.addUser(1, 2)
		bal, err := f.balance.AddReferralBonus(ctx, u.ID, 5)
		if err != nil || bal != 7 {
			t.Fatalf("unexpected %d, %v", bal, err)
		}
		got, _ := f.users.FindByID(ctx, nil, u.ID)
		if got.ReferralBalance != 5 {
			t.Fatalf("expected referral balance 5, got %d", got.ReferralBalance)
		}
	})
}
