package accounts

import (
	"context"
	"fmt"
	"strings"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/models"
)

// CreateUser stores a profile. ID is taken from the identity provider's
// subject when set.
func (s *Service) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = models.RoleBuyer
	}
	if err := s.check(u); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = s.newID()
	}
	now := s.now().UTC()
	u.Status = models.UserActive
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.DB.NewInsert().Model(u).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, apperr.ErrConflict)
		}
		return err
	}
	s.Logger.Info("ACCOUNTS", fmt.Sprintf("User %s created as %s", u.ID, u.Role))
	return nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.DB.NewSelect().Model(&u).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &u, nil
}

type UserFilter struct {
	Role   models.UserRole
	Status models.UserStatus
	Limit  int
	Offset int
}

func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]models.User, error) {
	var users []models.User
	q := s.DB.NewSelect().Model(&users).Order("created_at ASC").Order("id ASC")
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	err := q.Scan(ctx)
	return users, err
}

type UserUpdate struct {
	Name  *string `json:"name" validate:"omitempty,max=120"`
	Email *string `json:"email" validate:"omitempty,email"`
}

func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	if err := s.check(upd); err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*upd.Email))
	}
	if err := s.check(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = s.now().UTC()

	_, err = s.DB.NewUpdate().Model(u).Column("name", "email", "updated_at").WherePK().Exec(ctx)
	if database.IsUniqueViolation(err) {
		return nil, fmt.Errorf("email %s taken: %w", u.Email, apperr.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SetUserStatus blocks or unblocks a user.
func (s *Service) SetUserStatus(ctx context.Context, id string, status models.UserStatus) error {
	if status != models.UserActive && status != models.UserBlocked {
		return fmt.Errorf("unknown user status %q: %w", status, apperr.ErrValidation)
	}
	res, err := s.DB.NewUpdate().
		Model((*models.User)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", s.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err := expectOne(res, err, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)); err != nil {
		return err
	}
	s.Logger.LogSecurity("USER_STATUS", fmt.Sprintf("user %s is now %s", id, status))
	return nil
}
