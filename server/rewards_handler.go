package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lootvault/rewards-engine/auth"
	"github.com/lootvault/rewards-engine/engine"
	apperrors "github.com/lootvault/rewards-engine/errors"
)

// RewardsHandler exposes the spin and claim flows over HTTP.
type RewardsHandler struct {
	app    *App
	logger zerolog.Logger
}

// NewRewardsHandler creates a rewards handler.
func NewRewardsHandler(app *App) *RewardsHandler {
	return &RewardsHandler{
		app:    app,
		logger: app.logger.With().Str("handler", "rewards").Logger(),
	}
}

// SpinRequest is the spin request body.
type SpinRequest struct {
	SpinAmount decimal.Decimal `json:"spin_amount" binding:"required"`
}

// Spin handles POST /api/v1/rewards/{scope}/spin
// @Summary Spin the reward wheel for a scope
// @Tags rewards
// @Accept json
// @Produce json
// @Param scope path string true "Lootbox scope"
// @Param request body SpinRequest true "Spin parameters"
// @Success 200 {object} SuccessResponse[engine.SpinResult]
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/rewards/{scope}/spin [post]
func (h *RewardsHandler) Spin(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "user identity missing")
		return
	}

	var req SpinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	result, err := h.app.rewards.Spin(c.Request.Context(), engine.SpinRequest{
		UserID:     userID,
		Scope:      c.Param("scope"),
		SpinAmount: req.SpinAmount,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, result)
}

// Claim handles POST /api/v1/prizes/{id}/claim
// @Summary Claim a pending prize (idempotent)
// @Tags rewards
// @Produce json
// @Param id path string true "Prize ID"
// @Success 200 {object} SuccessResponse[ledger.ClaimResult]
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/prizes/{id}/claim [post]
func (h *RewardsHandler) Claim(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "user identity missing")
		return
	}

	result, err := h.app.rewards.ClaimPrize(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, result)
}

// GetCatalog handles GET /api/v1/rewards/{scope}/catalog
// @Summary Current wheel of a scope with its weight total
// @Tags rewards
// @Produce json
// @Param scope path string true "Lootbox scope"
// @Success 200 {object} SuccessResponse[engine.CatalogView]
// @Router /api/v1/rewards/{scope}/catalog [get]
func (h *RewardsHandler) GetCatalog(c *gin.Context) {
	view, err := h.app.rewards.GetCatalog(c.Request.Context(), c.Param("scope"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, view)
}

// GetPending handles GET /api/v1/rewards/{scope}/pending
// @Summary Unclaimed prizes of the caller in a scope
// @Tags rewards
// @Produce json
// @Param scope path string true "Lootbox scope"
// @Success 200 {object} SuccessResponse[[]models.PendingPrize]
// @Router /api/v1/rewards/{scope}/pending [get]
func (h *RewardsHandler) GetPending(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "user identity missing")
		return
	}

	prizes, err := h.app.rewards.PendingPrizes(c.Request.Context(), c.Param("scope"), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, prizes)
}

// GetHistory handles GET /api/v1/rewards/{scope}/history?limit=50
// @Summary Claimed prizes of the caller in a scope
// @Tags rewards
// @Produce json
// @Param scope path string true "Lootbox scope"
// @Param limit query int false "Max rows" default(50)
// @Success 200 {object} SuccessResponse[[]models.PendingPrize]
// @Router /api/v1/rewards/{scope}/history [get]
func (h *RewardsHandler) GetHistory(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		ErrorWithMessage(c, http.StatusUnauthorized, "user identity missing")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.app.rewards.PrizeHistory(c.Request.Context(), c.Param("scope"), userID, limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, rows)
}
