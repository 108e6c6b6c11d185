// Package memory is an in-process ledger store for dev mode and tests.
// It reproduces the locking contract of the Postgres store: reads made for
// update and every write inside a transaction take an exclusive row lock
// that is held until commit or rollback, so concurrent transactions on the
// same row serialize exactly as they would with SELECT ... FOR UPDATE.
package memory

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"

	"telegram-generation-billing/internal/domain"
	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	users        map[string]*model.User
	usersByTg    map[int64]string
	payments     map[string]*model.Payment
	promos       map[string]*model.PromoCode
	promosByCode map[string]string
	redemptions  map[string]*model.PromoCodeRedemption // key: user|promo
	invoiceSeq   int64

	locks map[string]chan struct{}
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]*model.User),
		usersByTg:    make(map[int64]string),
		payments:     make(map[string]*model.Payment),
		promos:       make(map[string]*model.PromoCode),
		promosByCode: make(map[string]string),
		redemptions:  make(map[string]*model.PromoCodeRedemption),
		locks:        make(map[string]chan struct{}),
	}
}

// Tx is the transaction handle passed to repositories.
type Tx struct {
	s    *Store
	held map[string]chan struct{}
	undo []func()
}

// WithTx ignores isolation options; row locks give the guarantees the
// ledger relies on.
func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	t := &Tx{s: s, held: make(map[string]chan struct{})}
	defer t.release()

	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}
	committed = true
	t.undo = nil
	return nil
}

func (t *Tx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *Tx) release() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for key, ch := range t.held {
		delete(t.s.locks, key)
		close(ch)
	}
	t.held = nil
}

// lock blocks until the row is free or ctx ends. Re-locking a row the
// transaction already holds is a no-op.
func (t *Tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch, err := t.s.acquire(ctx, key)
	if err != nil {
		return err
	}
	t.held[key] = ch
	return nil
}

func (s *Store) acquire(ctx context.Context, key string) (chan struct{}, error) {
	for {
		s.mu.Lock()
		busy, taken := s.locks[key]
		if !taken {
			ch := make(chan struct{})
			s.locks[key] = ch
			s.mu.Unlock()
			return ch, nil
		}
		s.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Store) releaseOne(key string, ch chan struct{}) {
	s.mu.Lock()
	delete(s.locks, key)
	s.mu.Unlock()
	close(ch)
}

func asTx(tx repository.Tx) (*Tx, error) {
	switch v := tx.(type) {
	case nil:
		return nil, nil
	case *Tx:
		return v, nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

// readLocked locks key when running inside a transaction, then calls fn under the store mutex.
func (s *Store) readLocked(ctx context.Context, tx repository.Tx, key string, fn func() error) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if t != nil {
		if err := t.lock(ctx, key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// write applies fn under the row lock for key. Inside a transaction the lock
// and the returned undo step are kept until the transaction ends; outside one
// the lock is dropped as soon as fn returns.
func (s *Store) write(ctx context.Context, tx repository.Tx, key string, fn func() (func(), error)) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if t == nil {
		ch, err := s.acquire(ctx, key)
		if err != nil {
			return err
		}
		defer s.releaseOne(key, ch)
	} else if err := t.lock(ctx, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	undo, err := fn()
	if err != nil {
		return err
	}
	if t != nil && undo != nil {
		t.undo = append(t.undo, undo)
	}
	return nil
}

func userKey(id string) string    { return "user:" + id }
func paymentKey(id string) string { return "payment:" + id }
func promoKey(id string) string   { return "promo:" + id }
