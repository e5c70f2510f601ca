package accounts

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/models"
)

// RegisterSeller opens a seller profile for an existing active user and
// gives the user the seller role.
func (s *Service) RegisterSeller(ctx context.Context, seller *models.Seller) error {
	if err := s.check(seller); err != nil {
		return err
	}
	user, err := s.GetUser(ctx, seller.UserID)
	if err != nil {
		return err
	}
	if user.Status != models.UserActive {
		return fmt.Errorf("user %s is %s: %w", user.ID, user.Status, apperr.ErrForbidden)
	}

	// One profile per user; events carry the seller's user ID.
	seller.ID = seller.UserID
	seller.Verified = false
	seller.CreatedAt = s.now().UTC()

	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(seller).Exec(ctx); err != nil {
			return err
		}
		if user.Role == models.RoleBuyer {
			_, err := tx.NewUpdate().
				Model((*models.User)(nil)).
				Set("role = ?", models.RoleSeller).
				Set("updated_at = ?", seller.CreatedAt).
				Where("id = ?", user.ID).
				Exec(ctx)
			return err
		}
		return nil
	})
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("user %s already sells: %w", seller.UserID, apperr.ErrConflict)
	}
	if err != nil {
		return err
	}
	s.Logger.Info("ACCOUNTS", fmt.Sprintf("Seller %s registered for user %s", seller.ID, seller.UserID))
	return nil
}

func (s *Service) GetSeller(ctx context.Context, id string) (*models.Seller, error) {
	var seller models.Seller
	if err := s.DB.NewSelect().Model(&seller).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err, "seller "+id)
	}
	return &seller, nil
}

func (s *Service) GetSellerByUser(ctx context.Context, userID string) (*models.Seller, error) {
	var seller models.Seller
	if err := s.DB.NewSelect().Model(&seller).Where("user_id = ?", userID).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err, "seller for user "+userID)
	}
	return &seller, nil
}

func (s *Service) ListSellers(ctx context.Context, verifiedOnly bool) ([]models.Seller, error) {
	var sellers []models.Seller
	q := s.DB.NewSelect().Model(&sellers).Order("created_at ASC")
	if verifiedOnly {
		q = q.Where("verified = ?", true)
	}
	err := q.Scan(ctx)
	return sellers, err
}

func (s *Service) VerifySeller(ctx context.Context, id string) error {
	res, err := s.DB.NewUpdate().
		Model((*models.Seller)(nil)).
		Set("verified = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	if err := expectOne(res, err, fmt.Errorf("seller %s: %w", id, apperr.ErrNotFound)); err != nil {
		return err
	}
	s.Logger.Info("ACCOUNTS", "Seller "+id+" verified")
	return nil
}
