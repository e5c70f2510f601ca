package models

import (
	"time"

	"github.com/uptrace/bun"
)

type DiscountType string

const (
	FLAT_OFF         DiscountType = "FLAT_OFF"
	PERCENTAGE       DiscountType = "PERCENTAGE"
	BUY_N_GET_N_FREE DiscountType = "BUY_N_GET_N_FREE"
)

type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	Code     string       `bun:"code,pk" json:"code" validate:"required,alphanum,max=32"`
	SellerID string       `bun:"seller_id,notnull" json:"seller_id" validate:"required"`
	EventID  string       `bun:"event_id,nullzero" json:"event_id,omitempty"`
	Type     DiscountType `bun:"type,notnull" json:"type" validate:"required,oneof=FLAT_OFF PERCENTAGE BUY_N_GET_N_FREE"`

	AmountCents      int64 `bun:"amount_cents" json:"amount_cents,omitempty" validate:"gte=0"`
	Percent          int64 `bun:"percent" json:"percent,omitempty" validate:"gte=0,lte=100"`
	MaxDiscountCents int64 `bun:"max_discount_cents" json:"max_discount_cents,omitempty" validate:"gte=0"`
	MinSpendCents    int64 `bun:"min_spend_cents" json:"min_spend_cents,omitempty" validate:"gte=0"`
	BuyQuantity      int   `bun:"buy_quantity" json:"buy_quantity,omitempty" validate:"gte=0"`
	GetQuantity      int   `bun:"get_quantity" json:"get_quantity,omitempty" validate:"gte=0"`

	MaxUsage   int       `bun:"max_usage" json:"max_usage" validate:"gte=0"`
	UsedCount  int       `bun:"used_count,notnull" json:"used_count"`
	Active     bool      `bun:"active,notnull" json:"active"`
	ActiveFrom time.Time `bun:"active_from,notnull" json:"active_from"`
	ExpiresAt  time.Time `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}
