package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/utils"
)

// NewRouter mounts the API under /api. The webhook, seat map and editorial
// reads are public; everything else needs a bearer token.
func NewRouter(h *Handler, v auth.Verifier, revoked auth.RevocationChecker, log *logger.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w, http.StatusOK, "ok", nil)
	})

	r.Route("/api", func(r chi.Router) {
		if h.Payments != nil {
			r.Post("/payments/webhook", h.PaymentWebhook)
		}
		if h.Seats != nil {
			r.Get("/events/{eventId}/seats", h.SeatMap)
		}
		if h.Streams != nil {
			r.Get("/events/{eventId}/seats/stream", h.SeatStream)
		}
		if h.Content != nil {
			r.Get("/blogs", h.ListBlogs)
			r.Get("/blogs/{slug}", h.GetBlog)
			r.Get("/banners", h.ListBanners)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(v, revoked, log))
			log.Info("ROUTER", "Token middleware applied to protected API routes")

			if h.Accounts != nil {
				r.Get("/me", h.Me)
				r.Post("/me", h.RegisterMe)
				r.Patch("/me", h.UpdateMe)
				r.Post("/sellers", h.RegisterSeller)
			}

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", h.CreateBooking)
				r.Get("/", h.ListBookings)
				r.Get("/{bookingId}", h.GetBooking)
				r.Delete("/{bookingId}", h.CancelBooking)
				r.Post("/{bookingId}/intent", h.CreateIntent)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.ListOrders)
				r.Get("/{orderId}", h.GetOrder)
				r.Get("/{orderId}/ledger", h.OrderStatement)
				r.Post("/{orderId}/cancellations", h.CancelSeats)
			})
			r.Get("/tickets/{ticketId}/qr", h.TicketQR)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleModerator, auth.RoleAdmin))
				r.Get("/events/{eventId}/scans", h.ListScans)
				r.Get("/events/{eventId}/entry-stats", h.EntryStats)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleSeller, auth.RoleAdmin))
				r.Post("/events/{eventId}/cancel", h.CancelEvent)
				if h.Streams != nil {
					r.Get("/seller/checkouts/stream", h.CheckoutStream)
				}
				if h.Catalog != nil {
					r.Post("/seller/events", h.CreateSellerEvent)
					r.Get("/seller/events", h.ListSellerEvents)
					r.Post("/seller/events/{eventId}/publish", h.PublishSellerEvent)
				}
				if h.Coupons != nil {
					r.Post("/seller/coupons", h.CreateCoupon)
					r.Get("/seller/coupons", h.ListCoupons)
					r.Delete("/seller/coupons/{code}", h.DeactivateCoupon)
				}
				if h.Accounts != nil {
					r.Post("/seller/withdrawals", h.RequestWithdrawal)
					r.Get("/seller/withdrawals", h.ListWithdrawals)
				}
			})
		})
	})

	log.Info("ROUTER", "API routes registered under /api")
	return r
}
