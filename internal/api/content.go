package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-marketplace/internal/utils"
)

func (h *Handler) ListBlogs(w http.ResponseWriter, r *http.Request) {
	blogs, err := h.Content.ListBlogs(r.Context(), true, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		h.fail(w, "ListBlogs", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Blogs", blogs)
}

func (h *Handler) GetBlog(w http.ResponseWriter, r *http.Request) {
	blog, err := h.Content.GetBlogBySlug(r.Context(), chi.URLParam(r, "slug"), false)
	if err != nil {
		h.fail(w, "GetBlog", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Blog", blog)
}

func (h *Handler) ListBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := h.Content.ListActiveBanners(r.Context(), h.now())
	if err != nil {
		h.fail(w, "ListBanners", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Banners", banners)
}
