package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrForbidden           = errors.New("forbidden")
	ErrSeatUnavailable     = errors.New("seat unavailable")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrAmountMismatch      = errors.New("payment amount does not match booking")
	ErrCancellationClosed  = errors.New("cancellation window closed")
	ErrRefundExceedsCharge = errors.New("refund exceeds original charge")
	ErrAlreadyScanned      = errors.New("ticket already scanned")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPaymentProvider     = errors.New("payment provider error")
)

// SeatError reports which seats could not be held or booked.
type SeatError struct {
	EventID string
	SeatIDs []string
}

func (e *SeatError) Error() string {
	return fmt.Sprintf("seats unavailable for event %s: %s", e.EventID, strings.Join(e.SeatIDs, ","))
}

func (e *SeatError) Unwrap() error {
	return ErrSeatUnavailable
}

func Seats(eventID string, seatIDs []string) error {
	return &SeatError{EventID: eventID, SeatIDs: seatIDs}
}

// HTTPStatus maps a domain error onto a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAmountMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrSeatUnavailable),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrAlreadyScanned),
		errors.Is(err, ErrCancellationClosed),
		errors.Is(err, ErrRefundExceedsCharge),
		errors.Is(err, ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, ErrPaymentProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
