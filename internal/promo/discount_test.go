package promo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/models"
)

func seatsAt(prices ...int64) []models.Seat {
	out := make([]models.Seat, len(prices))
	for i, p := range prices {
		out[i] = models.Seat{SeatID: string(rune('A' + i)), PriceCents: p}
	}
	return out
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name   string
		coupon models.Coupon
		seats  []models.Seat
		want   int64
		err    error
	}{
		{
			name:   "flat off",
			coupon: models.Coupon{Type: models.FLAT_OFF, AmountCents: 500},
			seats:  seatsAt(2000, 1000),
			want:   500,
		},
		{
			name:   "flat off capped at subtotal",
			coupon: models.Coupon{Type: models.FLAT_OFF, AmountCents: 5000},
			seats:  seatsAt(1200),
			want:   1200,
		},
		{
			name:   "percentage",
			coupon: models.Coupon{Type: models.PERCENTAGE, Percent: 15},
			seats:  seatsAt(1000, 1000),
			want:   300,
		},
		{
			name:   "percentage with cap",
			coupon: models.Coupon{Type: models.PERCENTAGE, Percent: 50, MaxDiscountCents: 700},
			seats:  seatsAt(1000, 1000),
			want:   700,
		},
		{
			name:   "minimum spend not met",
			coupon: models.Coupon{Type: models.PERCENTAGE, Percent: 10, MinSpendCents: 5000},
			seats:  seatsAt(1000),
			err:    apperr.ErrValidation,
		},
		{
			name:   "buy two get one frees the cheapest",
			coupon: models.Coupon{Type: models.BUY_N_GET_N_FREE, BuyQuantity: 2, GetQuantity: 1},
			seats:  seatsAt(3000, 1000, 2000, 2500),
			want:   1000,
		},
		{
			name:   "buy two get one over two full groups",
			coupon: models.Coupon{Type: models.BUY_N_GET_N_FREE, BuyQuantity: 2, GetQuantity: 1},
			seats:  seatsAt(3000, 1000, 2000, 2500, 1500, 4000),
			want:   1000 + 1500,
		},
		{
			name:   "buy one get one frees half",
			coupon: models.Coupon{Type: models.BUY_N_GET_N_FREE, BuyQuantity: 1, GetQuantity: 1},
			seats:  seatsAt(1000, 1000),
			want:   1000,
		},
		{
			name:   "buy one get one needs a full group",
			coupon: models.Coupon{Type: models.BUY_N_GET_N_FREE, BuyQuantity: 1, GetQuantity: 1},
			seats:  seatsAt(1000),
			err:    apperr.ErrValidation,
		},
		{
			name:   "buy n get n needs enough seats",
			coupon: models.Coupon{Type: models.BUY_N_GET_N_FREE, BuyQuantity: 3, GetQuantity: 1},
			seats:  seatsAt(1000, 1000),
			err:    apperr.ErrValidation,
		},
		{
			name:   "seats outside a full group stay paid",
			coupon: models.Coupon{Type: models.BUY_N_GET_N_FREE, BuyQuantity: 1, GetQuantity: 3},
			seats:  seatsAt(1000, 400, 700, 900, 100),
			want:   100 + 400 + 700,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discount(&tt.coupon, tt.seats)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
