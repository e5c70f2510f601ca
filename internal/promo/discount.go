package promo

import (
	"fmt"
	"sort"
	"time"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/models"
)

// Quote is the priced outcome of applying a coupon to a set of seats.
type Quote struct {
	Code          string `json:"code,omitempty"`
	SubtotalCents int64  `json:"subtotal_cents"`
	DiscountCents int64  `json:"discount_cents"`
	TotalCents    int64  `json:"total_cents"`
}

func Subtotal(seats []models.Seat) int64 {
	var total int64
	for _, s := range seats {
		total += s.PriceCents
	}
	return total
}

func invalid(reason string) error {
	return fmt.Errorf("coupon: %s: %w", reason, apperr.ErrValidation)
}

// checkUsable runs the checks that do not depend on the cart.
func checkUsable(c *models.Coupon, eventID string, now time.Time) error {
	if !c.Active {
		return invalid("not active")
	}
	if now.Before(c.ActiveFrom) {
		return invalid("not yet active")
	}
	if !now.Before(c.ExpiresAt) {
		return invalid("expired")
	}
	if c.MaxUsage > 0 && c.UsedCount >= c.MaxUsage {
		return invalid("usage limit reached")
	}
	if c.EventID != "" && c.EventID != eventID {
		return invalid("not valid for this event")
	}
	return nil
}

// Discount computes the discount of c over seats. The result never
// exceeds the seats' subtotal.
func Discount(c *models.Coupon, seats []models.Seat) (int64, error) {
	subtotal := Subtotal(seats)

	if c.Type == models.PERCENTAGE || c.Type == models.FLAT_OFF {
		if c.MinSpendCents > 0 && subtotal < c.MinSpendCents {
			return 0, invalid(fmt.Sprintf("minimum spend is %d", c.MinSpendCents))
		}
	}

	var discount int64
	switch c.Type {
	case models.FLAT_OFF:
		discount = c.AmountCents

	case models.PERCENTAGE:
		discount = subtotal * c.Percent / 100
		if c.MaxDiscountCents > 0 && discount > c.MaxDiscountCents {
			discount = c.MaxDiscountCents
		}

	case models.BUY_N_GET_N_FREE:
		if c.BuyQuantity <= 0 || c.GetQuantity <= 0 {
			return 0, fmt.Errorf("coupon %s has no buy/get quantities: %w", c.Code, apperr.ErrValidation)
		}
		group := c.BuyQuantity + c.GetQuantity
		if len(seats) < group {
			return 0, invalid(fmt.Sprintf("need %d seats, have %d", group, len(seats)))
		}
		prices := make([]int64, len(seats))
		for i, s := range seats {
			prices[i] = s.PriceCents
		}
		sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

		// Every complete group of buy+get seats frees its get cheapest seats.
		free := (len(prices) / group) * c.GetQuantity
		for i := 0; i < free; i++ {
			discount += prices[i]
		}

	default:
		return 0, fmt.Errorf("unsupported discount type %q: %w", c.Type, apperr.ErrValidation)
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}
