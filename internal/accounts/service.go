// Package accounts manages users, seller profiles and seller withdrawals.
package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/logger"
)

type Service struct {
	DB     *bun.DB
	Logger *logger.Logger

	// withdrawMu serialises balance checks so two requests cannot spend the
	// same balance.
	withdrawMu sync.Mutex
	validate   *validator.Validate
	now        func() time.Time
	newID      func() string
}

func NewService(db *bun.DB, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Logger:   log,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) check(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return err
}

func expectOne(res sql.Result, err error, mismatch error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return mismatch
	}
	return nil
}
