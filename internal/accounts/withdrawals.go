package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/reports"
)

type WithdrawalRequest struct {
	SellerID    string `json:"-" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Note        string `json:"note" validate:"max=500"`
}

// RequestWithdrawal asks for a payout of at most the seller's available
// balance. Unverified sellers cannot withdraw.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	seller, err := s.GetSeller(ctx, req.SellerID)
	if err != nil {
		return nil, err
	}
	if !seller.Verified {
		return nil, fmt.Errorf("seller %s is not verified: %w", seller.ID, apperr.ErrForbidden)
	}

	s.withdrawMu.Lock()
	defer s.withdrawMu.Unlock()

	w := &models.Withdrawal{
		ID:          s.newID(),
		SellerID:    seller.ID,
		AmountCents: req.AmountCents,
		Currency:    strings.ToLower(req.Currency),
		Status:      models.WithdrawalRequested,
		Note:        req.Note,
		CreatedAt:   s.now().UTC(),
	}
	err = s.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		balance, err := reports.New(tx).SellerBalance(ctx, seller.ID)
		if err != nil {
			return err
		}
		if req.AmountCents > balance.AvailableCents {
			return fmt.Errorf("requested %d, available %d: %w", req.AmountCents, balance.AvailableCents, apperr.ErrInsufficientBalance)
		}
		_, err = tx.NewInsert().Model(w).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("ACCOUNTS", fmt.Sprintf("Withdrawal %s of %d requested by seller %s", w.ID, w.AmountCents, seller.ID))
	return w, nil
}

func (s *Service) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := s.DB.NewSelect().Model(&w).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err, "withdrawal "+id)
	}
	return &w, nil
}

// ListWithdrawals lists a seller's withdrawals newest first; an empty
// sellerID lists every seller's.
func (s *Service) ListWithdrawals(ctx context.Context, sellerID string) ([]models.Withdrawal, error) {
	var out []models.Withdrawal
	q := s.DB.NewSelect().Model(&out).Order("created_at DESC")
	if sellerID != "" {
		q = q.Where("seller_id = ?", sellerID)
	}
	err := q.Scan(ctx)
	return out, err
}

func (s *Service) ApproveWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	return s.transitionWithdrawal(ctx, id, []models.WithdrawalStatus{models.WithdrawalRequested}, models.WithdrawalApproved, "")
}

func (s *Service) RejectWithdrawal(ctx context.Context, id, note string) (*models.Withdrawal, error) {
	return s.transitionWithdrawal(ctx, id, []models.WithdrawalStatus{models.WithdrawalRequested, models.WithdrawalApproved}, models.WithdrawalRejected, note)
}

func (s *Service) MarkWithdrawalPaid(ctx context.Context, id string) (*models.Withdrawal, error) {
	return s.transitionWithdrawal(ctx, id, []models.WithdrawalStatus{models.WithdrawalApproved}, models.WithdrawalPaid, "")
}

func (s *Service) transitionWithdrawal(ctx context.Context, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, note string) (*models.Withdrawal, error) {
	q := s.DB.NewUpdate().
		Model((*models.Withdrawal)(nil)).
		Set("status = ?", to).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from))
	if to != models.WithdrawalApproved {
		q = q.Set("processed_at = ?", s.now().UTC())
	}
	if note != "" {
		q = q.Set("note = ?", note)
	}
	res, err := q.Exec(ctx)
	if err := expectOne(res, err, fmt.Errorf("withdrawal %s cannot become %s: %w", id, to, apperr.ErrInvalidState)); err != nil {
		if _, getErr := s.GetWithdrawal(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, err
	}
	s.Logger.Info("ACCOUNTS", fmt.Sprintf("Withdrawal %s %s", id, to))
	return s.GetWithdrawal(ctx, id)
}
