package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lootvault/rewards-engine/catalog"
	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/inventory"
	"github.com/lootvault/rewards-engine/jackpot"
	"github.com/lootvault/rewards-engine/models"
)

// AdminServices bundles the services the admin surface mutates directly.
type AdminServices struct {
	Catalog   *catalog.Service
	Inventory *inventory.Tracker
	Jackpot   *jackpot.Service
}

// AdminHandler exposes catalog, inventory and pool management.
type AdminHandler struct {
	app    *App
	svcs   *AdminServices
	logger zerolog.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(app *App, svcs *AdminServices) *AdminHandler {
	return &AdminHandler{
		app:    app,
		svcs:   svcs,
		logger: app.logger.With().Str("handler", "admin").Logger(),
	}
}

// Register wires the admin routes onto a group.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	cat := g.Group("/catalog")
	{
		cat.POST("/:scope/entries", h.CreateEntry)
		cat.GET("/:scope/entries", h.ListEntries)
		cat.POST("/:scope/rebalance", h.Rebalance)
	}
	g.PUT("/entries/:id/weight", h.SetWeight)
	g.PUT("/entries/:id/active", h.SetActive)

	inv := g.Group("/inventory/:scope")
	{
		inv.POST("/deposit", h.Deposit)
		inv.POST("/items/:mint/release", h.Release)
		inv.DELETE("/items/:mint", h.Withdraw)
	}

	jp := g.Group("/jackpot")
	{
		jp.POST("/pools", h.CreatePool)
		jp.POST("/pools/:id/winner", h.PickWinner)
	}
}

// CreateEntryRequest is the catalog entry creation body.
type CreateEntryRequest struct {
	Kind          string          `json:"kind" binding:"required"`
	DisplayName   string          `json:"display_name" binding:"required"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	WeightPercent decimal.Decimal `json:"weight_percent"`
}

// CreateEntry handles POST /api/v1/admin/catalog/{scope}/entries
func (h *AdminHandler) CreateEntry(c *gin.Context) {
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	entry := models.RewardEntry{
		Scope:         c.Param("scope"),
		Kind:          models.RewardKind(req.Kind),
		DisplayName:   req.DisplayName,
		UnitPrice:     req.UnitPrice,
		WeightPercent: req.WeightPercent,
		IsActive:      true,
	}
	if err := h.svcs.Catalog.CreateEntry(c.Request.Context(), &entry); err != nil {
		HandleAppError(c, err)
		return
	}
	Created(c, entry)
}

// ListEntries handles GET /api/v1/admin/catalog/{scope}/entries
func (h *AdminHandler) ListEntries(c *gin.Context) {
	entries, err := h.svcs.Catalog.ListAll(c.Request.Context(), c.Param("scope"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, entries)
}

// SetWeightRequest carries a new weight for one entry.
type SetWeightRequest struct {
	WeightPercent decimal.Decimal `json:"weight_percent" binding:"required"`
}

// SetWeight handles PUT /api/v1/admin/entries/{id}/weight
func (h *AdminHandler) SetWeight(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		ErrorWithMessage(c, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req SetWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	if err := h.svcs.Catalog.SetWeight(c.Request.Context(), uint(id), req.WeightPercent); err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, gin.H{"id": id, "weight_percent": req.WeightPercent})
}

// SetActiveRequest toggles an entry's presence on the wheel.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetActive handles PUT /api/v1/admin/entries/{id}/active
func (h *AdminHandler) SetActive(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		ErrorWithMessage(c, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	if err := h.svcs.Catalog.SetActive(c.Request.Context(), uint(id), *req.IsActive); err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, gin.H{"id": id, "is_active": *req.IsActive})
}

// RebalanceRequest reserves a slice for a new entry before scaling the rest.
type RebalanceRequest struct {
	ReservedPercent decimal.Decimal `json:"reserved_percent"`
}

// Rebalance handles POST /api/v1/admin/catalog/{scope}/rebalance
func (h *AdminHandler) Rebalance(c *gin.Context) {
	var req RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	entries, err := h.svcs.Catalog.Rebalance(c.Request.Context(), c.Param("scope"), req.ReservedPercent)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, entries)
}

// DepositRequest registers a unique item into the vault.
type DepositRequest struct {
	MintIdentity string          `json:"mint_identity" binding:"required"`
	DisplayName  string          `json:"display_name" binding:"required"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

// Deposit handles POST /api/v1/admin/inventory/{scope}/deposit
func (h *AdminHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	item := models.InventoryItem{
		Scope:        c.Param("scope"),
		MintIdentity: req.MintIdentity,
		DisplayName:  req.DisplayName,
		UnitPrice:    req.UnitPrice,
	}
	if err := h.svcs.Inventory.Deposit(c.Request.Context(), &item); err != nil {
		HandleAppError(c, err)
		return
	}
	Created(c, item)
}

// Release handles POST /api/v1/admin/inventory/{scope}/items/{mint}/release
// It returns a previously won item to the wheel after a claim rollback.
func (h *AdminHandler) Release(c *gin.Context) {
	if err := h.svcs.Inventory.MarkAvailable(c.Request.Context(), c.Param("scope"), c.Param("mint")); err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, gin.H{"mint_identity": c.Param("mint"), "released": true})
}

// Withdraw handles DELETE /api/v1/admin/inventory/{scope}/items/{mint}
func (h *AdminHandler) Withdraw(c *gin.Context) {
	if err := h.svcs.Inventory.Withdraw(c.Request.Context(), c.Param("scope"), c.Param("mint")); err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, gin.H{"mint_identity": c.Param("mint"), "withdrawn": true})
}

// CreatePoolRequest registers a jackpot pool.
type CreatePoolRequest struct {
	Name             string          `json:"name" binding:"required"`
	MinAmount        decimal.Decimal `json:"min_amount"`
	MaxAmount        decimal.Decimal `json:"max_amount"`
	ContributionRate decimal.Decimal `json:"contribution_rate" binding:"required"`
}

// CreatePool handles POST /api/v1/admin/jackpot/pools
func (h *AdminHandler) CreatePool(c *gin.Context) {
	var req CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, apperrors.Wrap(err, apperrors.ErrValidation, "invalid request body"))
		return
	}

	pool := models.JackpotPool{
		Name:             req.Name,
		MinAmount:        req.MinAmount,
		MaxAmount:        req.MaxAmount,
		ContributionRate: req.ContributionRate,
		IsActive:         true,
	}
	if err := h.svcs.Jackpot.CreatePool(c.Request.Context(), &pool); err != nil {
		HandleAppError(c, err)
		return
	}
	Created(c, pool)
}

// PickWinner handles POST /api/v1/admin/jackpot/pools/{id}/winner
func (h *AdminHandler) PickWinner(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		ErrorWithMessage(c, http.StatusBadRequest, "invalid pool id")
		return
	}

	userID, err := h.svcs.Jackpot.PickWinner(c.Request.Context(), uint(id))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, gin.H{"pool_id": id, "winner_user_id": userID})
}
