// Package api is the buyer and seller facing HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"ms-marketplace/internal/accounts"
	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/catalog"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/payment"
	"ms-marketplace/internal/refund"
	"ms-marketplace/internal/tickets"
	"ms-marketplace/internal/utils"
)

type Bookings interface {
	Reserve(ctx context.Context, req models.ReserveRequest) (*models.Booking, error)
	GetForUser(ctx context.Context, bookingID, userID string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]models.Booking, error)
	Cancel(ctx context.Context, bookingID, userID string) (*models.Booking, error)
}

type Payments interface {
	CreateIntent(ctx context.Context, bookingID, userID string) (*payment.Intent, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type Refunds interface {
	CancelSeats(ctx context.Context, req refund.CancelRequest) (*refund.CancelResult, error)
	Statement(ctx context.Context, orderID, requesterID string, privileged bool) (*refund.Statement, error)
	CancelEvent(ctx context.Context, eventID, actorID string, admin bool) (*refund.EventCancellation, error)
}

type Tickets interface {
	TicketsByOrder(ctx context.Context, orderID, requesterID string, privileged bool) (*models.OrderWithTickets, error)
	OrdersByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error)
	TicketQR(ctx context.Context, ticketID, requesterID string, size int) ([]byte, error)
	ListScans(ctx context.Context, eventID string, limit int) ([]models.ScanLog, error)
	EntryStats(ctx context.Context, eventID string) (*tickets.EntryStats, error)
}

type SeatMap interface {
	Availability(ctx context.Context, eventID string) ([]models.SeatView, error)
}

type Streams interface {
	SubscribeSeats(ctx context.Context, eventID string) <-chan models.SeatStatusEvent
	SubscribeCheckouts(ctx context.Context, sellerID string) <-chan models.OrderConfirmedEvent
}

type Catalog interface {
	CreateEvent(ctx context.Context, req catalog.NewEvent) (*models.Event, error)
	PublishEvent(ctx context.Context, eventID, actorID string, admin bool) (*models.Event, error)
	ListEvents(ctx context.Context, sellerID string) ([]models.Event, error)
}

type Coupons interface {
	CreateCoupon(ctx context.Context, c *models.Coupon) error
	ListCoupons(ctx context.Context, sellerID string) ([]models.Coupon, error)
	DeactivateCoupon(ctx context.Context, code, sellerID string) error
}

type Accounts interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd accounts.UserUpdate) (*models.User, error)
	RegisterSeller(ctx context.Context, seller *models.Seller) error
	RequestWithdrawal(ctx context.Context, req accounts.WithdrawalRequest) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, sellerID string) ([]models.Withdrawal, error)
}

type Content interface {
	GetBlogBySlug(ctx context.Context, slug string, includeDrafts bool) (*models.Blog, error)
	ListBlogs(ctx context.Context, publishedOnly bool, limit, offset int) ([]models.Blog, error)
	ListActiveBanners(ctx context.Context, at time.Time) ([]models.Banner, error)
}

// Services groups the collaborators behind the API. Nil members leave their
// routes unregistered.
type Services struct {
	Bookings Bookings
	Payments Payments
	Refunds  Refunds
	Tickets  Tickets
	Seats    SeatMap
	Streams  Streams
	Catalog  Catalog
	Coupons  Coupons
	Accounts Accounts
	Content  Content
}

type Handler struct {
	Services
	Logger   *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(svc Services, log *logger.Logger) *Handler {
	return &Handler{
		Services: svc,
		Logger:   log,
		validate: validator.New(),
		now:      time.Now,
	}
}

const maxBody = 1 << 20

// decode reads a JSON body into v and runs struct validation on it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}, validate bool) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if validate {
		if err := h.validate.Struct(v); err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}

// fail answers with the status the error maps to. Unexpected errors are
// logged and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, status, "internal error")
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))

	var seatErr *apperr.SeatError
	if errors.As(err, &seatErr) {
		body := utils.ErrorResponse(http.StatusText(status), err.Error())
		body.Data = map[string][]string{"unavailable_seats": seatErr.SeatIDs}
		utils.WriteJSON(w, status, body)
		return
	}
	utils.WriteError(w, status, err.Error())
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return def
}
