package models

import (
	"time"

	"github.com/uptrace/bun"
)

type UserRole string

const (
	RoleBuyer     UserRole = "buyer"
	RoleSeller    UserRole = "seller"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
)

type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string     `bun:"id,pk" json:"id"`
	Email     string     `bun:"email,unique,notnull" json:"email" validate:"required,email"`
	Name      string     `bun:"name,notnull" json:"name" validate:"required,max=120"`
	Role      UserRole   `bun:"role,notnull" json:"role" validate:"required,oneof=buyer seller moderator admin"`
	Status    UserStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

type Seller struct {
	bun.BaseModel `bun:"table:sellers"`

	ID            string    `bun:"id,pk" json:"id"`
	UserID        string    `bun:"user_id,unique,notnull" json:"user_id" validate:"required"`
	DisplayName   string    `bun:"display_name,notnull" json:"display_name" validate:"required,max=120"`
	PayoutAccount string    `bun:"payout_account" json:"payout_account" validate:"required"`
	Verified      bool      `bun:"verified,notnull" json:"verified"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

type WithdrawalStatus string

const (
	WithdrawalRequested WithdrawalStatus = "requested"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalPaid      WithdrawalStatus = "paid"
)

type Withdrawal struct {
	bun.BaseModel `bun:"table:withdrawals"`

	ID          string           `bun:"id,pk" json:"id"`
	SellerID    string           `bun:"seller_id,notnull" json:"seller_id"`
	AmountCents int64            `bun:"amount_cents,notnull" json:"amount_cents"`
	Currency    string           `bun:"currency,notnull" json:"currency"`
	Status      WithdrawalStatus `bun:"status,notnull" json:"status"`
	Note        string           `bun:"note,nullzero" json:"note,omitempty"`
	CreatedAt   time.Time        `bun:"created_at,notnull" json:"created_at"`
	ProcessedAt time.Time        `bun:"processed_at,nullzero" json:"processed_at,omitempty"`
}
