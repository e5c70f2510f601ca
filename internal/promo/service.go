package promo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
)

type Service struct {
	DB       bun.IDB
	Logger   *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(db bun.IDB, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Logger:   log,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Service) CreateCoupon(ctx context.Context, c *models.Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if err := s.validate.Struct(c); err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	switch c.Type {
	case models.FLAT_OFF:
		if c.AmountCents <= 0 {
			return fmt.Errorf("FLAT_OFF needs amount_cents: %w", apperr.ErrValidation)
		}
	case models.PERCENTAGE:
		if c.Percent <= 0 {
			return fmt.Errorf("PERCENTAGE needs percent: %w", apperr.ErrValidation)
		}
	case models.BUY_N_GET_N_FREE:
		if c.BuyQuantity <= 0 || c.GetQuantity <= 0 {
			return fmt.Errorf("BUY_N_GET_N_FREE needs buy_quantity and get_quantity: %w", apperr.ErrValidation)
		}
	}
	if !c.ExpiresAt.After(c.ActiveFrom) {
		return fmt.Errorf("expires_at must be after active_from: %w", apperr.ErrValidation)
	}

	c.UsedCount = 0
	c.Active = true
	c.CreatedAt = s.now().UTC()
	if _, err := s.DB.NewInsert().Model(c).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("coupon %s exists: %w", c.Code, apperr.ErrConflict)
		}
		return err
	}
	s.Logger.Info("PROMO", fmt.Sprintf("Coupon %s created for seller %s", c.Code, c.SellerID))
	return nil
}

func (s *Service) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	return getCoupon(ctx, s.DB, code)
}

func getCoupon(ctx context.Context, db bun.IDB, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := db.NewSelect().Model(&c).Where("code = ?", strings.ToUpper(code)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coupon %s: %w", code, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) ListCoupons(ctx context.Context, sellerID string) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := s.DB.NewSelect().
		Model(&coupons).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Scan(ctx)
	return coupons, err
}

// DeactivateCoupon switches a coupon off. Only its seller may do so.
func (s *Service) DeactivateCoupon(ctx context.Context, code, sellerID string) error {
	res, err := s.DB.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("active = ?", false).
		Where("code = ?", strings.ToUpper(code)).
		Where("seller_id = ?", sellerID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("coupon %s for seller %s: %w", code, sellerID, apperr.ErrNotFound)
	}
	return nil
}

// Quote prices seats for an event with an optional coupon. An empty code
// quotes the plain subtotal.
func (s *Service) Quote(ctx context.Context, code, eventID string, seats []models.Seat) (*Quote, error) {
	q := &Quote{SubtotalCents: Subtotal(seats)}
	q.TotalCents = q.SubtotalCents
	if code == "" {
		return q, nil
	}

	c, err := getCoupon(ctx, s.DB, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, invalid("unknown code")
	}
	if err != nil {
		return nil, err
	}
	if err := checkUsable(c, eventID, s.now()); err != nil {
		return nil, err
	}
	discount, err := Discount(c, seats)
	if err != nil {
		return nil, err
	}

	q.Code = c.Code
	q.DiscountCents = discount
	q.TotalCents = q.SubtotalCents - discount
	return q, nil
}

// RedeemTx counts one use of code on db, which is normally the payment
// transaction. It fails with ErrConflict once the usage limit is hit.
func RedeemTx(ctx context.Context, db bun.IDB, code string) error {
	res, err := db.NewUpdate().
		Model((*models.Coupon)(nil)).
		Set("used_count = used_count + 1").
		Where("code = ?", strings.ToUpper(code)).
		Where("(max_usage = 0 OR used_count < max_usage)").
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("coupon %s usage limit reached: %w", code, apperr.ErrConflict)
	}
	return nil
}
