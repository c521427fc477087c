// internal/interfaces/http/handlers/stock.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/activity"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"github.com/your-org/warehouse-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// StockHandler handles batch and allocation endpoints
type StockHandler struct {
	stockService    *stock.Service
	activityService *activity.Service
	config          *config.Config
}

// NewStockHandler creates a new stock handler
func NewStockHandler(db *gorm.DB, cfg *config.Config) *StockHandler {
	return &StockHandler{
		stockService:    stock.NewService(db, cfg),
		activityService: activity.NewService(db),
		config:          cfg,
	}
}

// BATCH ENDPOINTS

// ReceiveBatch handles POST /batches
func (h *StockHandler) ReceiveBatch(c *gin.Context) {
	var req stock.ReceiveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	batch, err := h.stockService.ReceiveBatch(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	h.activityService.Record(actorID, "batch.received", "batch", batch.PublicID, "", c.ClientIP())

	c.JSON(http.StatusCreated, gin.H{
		"message": "Batch received successfully",
		"data":    batch,
	})
}

// GetBatch handles GET /batches/:id
func (h *StockHandler) GetBatch(c *gin.Context) {
	batch, err := h.stockService.GetBatch(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	aggregates, err := h.stockService.BatchAggregates(batch.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Batch retrieved successfully",
		"data": gin.H{
			"batch":      batch,
			"aggregates": aggregates,
		},
	})
}

// ALLOCATION ENDPOINTS

// Allocate handles POST /allocations
func (h *StockHandler) Allocate(c *gin.Context) {
	var req stock.AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	alloc, err := h.stockService.Allocate(&req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.activityService.Record(actorID, "allocation.created", "allocation", alloc.PublicID, "", c.ClientIP())

	c.JSON(http.StatusCreated, gin.H{
		"message": "Allocation created successfully",
		"data":    alloc,
	})
}

// GetAllocation handles GET /allocations/:id
func (h *StockHandler) GetAllocation(c *gin.Context) {
	alloc, err := h.stockService.GetAllocation(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Allocation retrieved successfully",
		"data":    alloc,
	})
}

// Reserve handles POST /allocations/:id/reserve
func (h *StockHandler) Reserve(c *gin.Context) {
	h.mutateQuantity(c, "allocation.reserved", h.stockService.Reserve)
}

// Release handles POST /allocations/:id/release
func (h *StockHandler) Release(c *gin.Context) {
	h.mutateQuantity(c, "allocation.released", h.stockService.ReleaseReservation)
}

// Ship handles POST /allocations/:id/ship
func (h *StockHandler) Ship(c *gin.Context) {
	h.mutateQuantity(c, "allocation.shipped", h.stockService.Ship)
}

// Cancel handles POST /allocations/:id/cancel
func (h *StockHandler) Cancel(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	alloc, err := h.stockService.CancelAllocation(c.Param("id"), actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.activityService.Record(actorID, "allocation.cancelled", "allocation", alloc.PublicID, "", c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"message": "Allocation cancelled successfully",
		"data":    alloc,
	})
}

// SubAllocate handles POST /allocations/:id/sub-allocations
func (h *StockHandler) SubAllocate(c *gin.Context) {
	var req stock.SubAllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	child, err := h.stockService.SubAllocateTender(c.Param("id"), &req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Tender quantity sub-allocated successfully",
		"data":    child,
	})
}

// ListMovements handles GET /allocations/:id/movements
func (h *StockHandler) ListMovements(c *gin.Context) {
	movements, err := h.stockService.ListMovements(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
	})
}

// Verify handles GET /allocations/:id/verify
func (h *StockHandler) Verify(c *gin.Context) {
	result, err := h.stockService.VerifyAllocation(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Consistent {
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"message": "Allocation verified against its movement log",
		"data":    result,
	})
}

// mutateQuantity runs one of the quantity mutation operations against
// the allocation in the path parameter.
func (h *StockHandler) mutateQuantity(c *gin.Context, action string,
	op func(string, *stock.QuantityRequest, uint) (*stock.Allocation, error)) {

	var req stock.QuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	alloc, err := op(c.Param("id"), &req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.activityService.Record(actorID, action, "allocation", alloc.PublicID, "", c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"message": "Allocation updated successfully",
		"data":    alloc,
	})
}
