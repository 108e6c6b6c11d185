package model

import (
	"time"

	"github.com/google/uuid"

	"telegram-generation-billing/internal/domain"
)

// User owns a generation balance. Balance never drops below zero; the
// database enforces it with a check constraint as well.
type User struct {
	ID                 string
	TelegramID         int64
	FirstName          string
	Username           string
	Balance            int64
	ReferralBalance    int64  // informational: generations earned from referrals
	ReferrerTelegramID *int64 // who invited this user, if anyone
	IsAdmin            bool
	CreatedAt          time.Time
}

func NewUser(id string, tgID int64, firstName, username string, initialBalance int64) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 || initialBalance < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:         id,
		TelegramID: tgID,
		FirstName:  firstName,
		Username:   username,
		Balance:    initialBalance,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
