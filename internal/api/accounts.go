package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-marketplace/internal/accounts"
	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/utils"
)

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Accounts.GetUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Me", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Profile", user)
}

type profileBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterMe creates the caller's profile keyed by the token subject. The
// token's email is used when the body has none.
func (h *Handler) RegisterMe(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if !h.decode(w, r, &body, false) {
		return
	}
	id := auth.FromContext(r.Context())
	user := &models.User{ID: id.UserID, Name: body.Name, Email: body.Email}
	if user.Email == "" {
		user.Email = id.Email
	}
	if err := h.Accounts.CreateUser(r.Context(), user); err != nil {
		h.fail(w, "RegisterMe", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Profile created", user)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd accounts.UserUpdate
	if !h.decode(w, r, &upd, false) {
		return
	}
	user, err := h.Accounts.UpdateUser(r.Context(), auth.UserID(r.Context()), upd)
	if err != nil {
		h.fail(w, "UpdateMe", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Profile updated", user)
}

func (h *Handler) RegisterSeller(w http.ResponseWriter, r *http.Request) {
	var seller models.Seller
	if !h.decode(w, r, &seller, false) {
		return
	}
	seller.UserID = auth.UserID(r.Context())
	if err := h.Accounts.RegisterSeller(r.Context(), &seller); err != nil {
		h.fail(w, "RegisterSeller", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Seller registered", seller)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req accounts.WithdrawalRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	req.SellerID = auth.UserID(r.Context())
	wd, err := h.Accounts.RequestWithdrawal(r.Context(), req)
	if err != nil {
		h.fail(w, "RequestWithdrawal", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Withdrawal requested", wd)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.Accounts.ListWithdrawals(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "ListWithdrawals", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Withdrawals", list)
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var c models.Coupon
	if !h.decode(w, r, &c, false) {
		return
	}
	c.SellerID = auth.UserID(r.Context())
	if err := h.Coupons.CreateCoupon(r.Context(), &c); err != nil {
		h.fail(w, "CreateCoupon", err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, "Coupon created", c)
}

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Coupons.ListCoupons(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, "ListCoupons", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Coupons", coupons)
}

func (h *Handler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.Coupons.DeactivateCoupon(r.Context(), code, auth.UserID(r.Context())); err != nil {
		h.fail(w, "DeactivateCoupon", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Coupon deactivated", nil)
}
