// internal/interfaces/http/handlers/rack.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/rack"
	"github.com/your-org/warehouse-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// RackHandler handles rack placement endpoints
type RackHandler struct {
	rackService *rack.Service
	config      *config.Config
}

// NewRackHandler creates a new rack handler
func NewRackHandler(db *gorm.DB, cfg *config.Config) *RackHandler {
	return &RackHandler{
		rackService: rack.NewService(db, cfg),
		config:      cfg,
	}
}

// CreateRack handles POST /admin/racks
func (h *RackHandler) CreateRack(c *gin.Context) {
	var req rack.CreateRackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	rk, err := h.rackService.CreateRack(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Rack created successfully",
		"data":    rk,
	})
}

// Place handles POST /racks/placements
func (h *RackHandler) Place(c *gin.Context) {
	var req rack.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	placement, err := h.rackService.Place(&req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Allocation placed successfully",
		"data":    placement,
	})
}

// Relocate handles POST /racks/relocations
func (h *RackHandler) Relocate(c *gin.Context) {
	var req rack.RelocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	if err := h.rackService.Relocate(&req, actorID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Allocation relocated successfully",
	})
}

// Placements handles GET /allocations/:id/placements
func (h *RackHandler) Placements(c *gin.Context) {
	placements, err := h.rackService.PlacementsFor(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Placements retrieved successfully",
		"data":    placements,
	})
}
