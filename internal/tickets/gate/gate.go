// Package gate serves the HTTP API used by scanning devices at venue gates.
package gate

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ms-marketplace/internal/apperr"
	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/tickets"
	"ms-marketplace/internal/utils"
)

type Scanner interface {
	Scan(ctx context.Context, req tickets.ScanRequest) (*tickets.ScanResult, error)
	ListScans(ctx context.Context, eventID string, limit int) ([]models.ScanLog, error)
	EntryStats(ctx context.Context, eventID string) (*tickets.EntryStats, error)
}

type Handler struct {
	scanner Scanner
	logger  *logger.Logger
}

func NewHandler(scanner Scanner, log *logger.Logger) *Handler {
	return &Handler{scanner: scanner, logger: log}
}

type scanBody struct {
	Token   string `json:"token" binding:"required"`
	EventID string `json:"event_id" binding:"required"`
}

// Scan checks a ticket code in. Rejections answer with the logged outcome
// so the device can show why entry was refused.
func (h *Handler) Scan(c *gin.Context) {
	var body scanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	id := auth.FromContext(c.Request.Context())
	result, err := h.scanner.Scan(c.Request.Context(), tickets.ScanRequest{
		Token:     body.Token,
		EventID:   body.EventID,
		ScannerID: id.UserID,
	})
	if err != nil {
		status := apperr.HTTPStatus(err)
		if result == nil {
			if status == http.StatusInternalServerError {
				h.logger.Error("GATE", "Scan failed: "+err.Error())
			}
			c.JSON(status, utils.ErrorResponse("Scan failed", err.Error()))
			return
		}
		c.JSON(status, utils.APIResponse{
			Success:   false,
			Message:   string(result.Outcome),
			Data:      result,
			Error:     err.Error(),
			Timestamp: result.Scan.ScannedAt,
		})
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Admitted", result))
}

func (h *Handler) ListScans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	scans, err := h.scanner.ListScans(c.Request.Context(), c.Param("eventId"), limit)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), utils.ErrorResponse("Failed to list scans", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Scans", scans))
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.scanner.EntryStats(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), utils.ErrorResponse("Failed to load entry stats", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Entry stats", stats))
}

// Authenticate resolves the device token and keeps gate staff only.
func Authenticate(v auth.Verifier, revoked auth.RevocationChecker, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, status, msg := auth.Resolve(c.Request, v, revoked, log)
		if id == nil {
			c.AbortWithStatusJSON(status, utils.ErrorResponse(http.StatusText(status), msg))
			return
		}
		if !id.HasRole(auth.RoleModerator, auth.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, utils.ErrorResponse("Forbidden", "gate staff only"))
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// NewRouter builds the gate engine. Extra middleware (tracing) runs first.
func NewRouter(h *Handler, v auth.Verifier, revoked auth.RevocationChecker, log *logger.Logger, middleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware...)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	g := r.Group("/gate/v1", Authenticate(v, revoked, log))
	g.POST("/scan", h.Scan)
	g.GET("/events/:eventId/scans", h.ListScans)
	g.GET("/events/:eventId/stats", h.Stats)
	return r
}
