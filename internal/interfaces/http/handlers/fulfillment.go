// internal/interfaces/http/handlers/fulfillment.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/activity"
	"github.com/your-org/warehouse-backend/internal/domain/fulfillment"
	"github.com/your-org/warehouse-backend/internal/domain/rack"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"github.com/your-org/warehouse-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// FulfillmentHandler handles the order-to-shipment pipeline endpoints
type FulfillmentHandler struct {
	fulfillmentService *fulfillment.Service
	activityService    *activity.Service
	config             *config.Config
}

// NewFulfillmentHandler creates a new fulfillment handler
func NewFulfillmentHandler(db *gorm.DB, cfg *config.Config, notifier fulfillment.Notifier) *FulfillmentHandler {
	stockSvc := stock.NewService(db, cfg)
	rackSvc := rack.NewService(db, cfg)
	return &FulfillmentHandler{
		fulfillmentService: fulfillment.NewService(db, cfg, stockSvc, rackSvc, notifier),
		activityService:    activity.NewService(db),
		config:             cfg,
	}
}

// SALES ORDERS

// CreateSalesOrder handles POST /sales-orders
func (h *FulfillmentHandler) CreateSalesOrder(c *gin.Context) {
	var req fulfillment.CreateSalesOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.fulfillmentService.CreateSalesOrder(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	h.activityService.Record(actorID, "sales_order.created", "sales_order", order.PublicID, "", c.ClientIP())

	c.JSON(http.StatusCreated, gin.H{
		"message": "Sales order created successfully",
		"data":    order,
	})
}

// GetSalesOrder handles GET /sales-orders/:id
func (h *FulfillmentHandler) GetSalesOrder(c *gin.Context) {
	order, err := h.fulfillmentService.GetSalesOrder(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Sales order retrieved successfully",
		"data":    order,
	})
}

// SHIPPING PLANS

// CreateShippingPlan handles POST /shipping-plans
func (h *FulfillmentHandler) CreateShippingPlan(c *gin.Context) {
	var req fulfillment.CreateShippingPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	plan, err := h.fulfillmentService.CreateShippingPlan(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Shipping plan created successfully",
		"data":    plan,
	})
}

// GetShippingPlan handles GET /shipping-plans/:id
func (h *FulfillmentHandler) GetShippingPlan(c *gin.Context) {
	plan, err := h.fulfillmentService.GetShippingPlan(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping plan retrieved successfully",
		"data":    plan,
	})
}

// ConfirmShippingPlan handles POST /shipping-plans/:id/confirm
func (h *FulfillmentHandler) ConfirmShippingPlan(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	plan, err := h.fulfillmentService.ConfirmShippingPlan(c.Param("id"), actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.activityService.Record(actorID, "shipping_plan.confirmed", "shipping_plan", plan.PublicID, "", c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping plan confirmed successfully",
		"data":    plan,
	})
}

// CancelShippingPlan handles POST /shipping-plans/:id/cancel
func (h *FulfillmentHandler) CancelShippingPlan(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	plan, err := h.fulfillmentService.CancelShippingPlan(c.Param("id"), actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.activityService.Record(actorID, "shipping_plan.cancelled", "shipping_plan", plan.PublicID, "", c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping plan cancelled successfully",
		"data":    plan,
	})
}

// PICKING

// CreatePickingList handles POST /shipping-plans/:id/picking-list
func (h *FulfillmentHandler) CreatePickingList(c *gin.Context) {
	var req struct {
		AssignedTo *uint `json:"assigned_to,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	list, err := h.fulfillmentService.CreatePickingList(c.Param("id"), req.AssignedTo, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Picking list created successfully",
		"data":    list,
	})
}

// GetPickingList handles GET /picking-lists/:id
func (h *FulfillmentHandler) GetPickingList(c *gin.Context) {
	list, err := h.fulfillmentService.GetPickingList(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Picking list retrieved successfully",
		"data":    list,
	})
}

// StartPickingOrder handles POST /picking-orders/:id/start
func (h *FulfillmentHandler) StartPickingOrder(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	order, err := h.fulfillmentService.StartPickingOrder(c.Param("id"), actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Picking order started successfully",
		"data":    order,
	})
}

// RecordPick handles POST /picking-items/:id/record
func (h *FulfillmentHandler) RecordPick(c *gin.Context) {
	var req fulfillment.RecordPickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	item, err := h.fulfillmentService.RecordPick(c.Param("id"), &req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Pick recorded successfully",
		"data":    item,
	})
}

// CancelPickingOrder handles POST /picking-orders/:id/cancel
func (h *FulfillmentHandler) CancelPickingOrder(c *gin.Context) {
	actorID, _ := middleware.GetUserIDFromContext(c)

	order, err := h.fulfillmentService.CancelPickingOrder(c.Param("id"), actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Picking order cancelled successfully",
		"data":    order,
	})
}

// PACKING

// CreatePackingOrder handles POST /picking-lists/:id/packing-order
func (h *FulfillmentHandler) CreatePackingOrder(c *gin.Context) {
	order, err := h.fulfillmentService.CreatePackingOrder(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Packing order created successfully",
		"data":    order,
	})
}

// GetPackingOrder handles GET /packing-orders/:id
func (h *FulfillmentHandler) GetPackingOrder(c *gin.Context) {
	order, err := h.fulfillmentService.GetPackingOrder(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Packing order retrieved successfully",
		"data":    order,
	})
}

// AddBox handles POST /packing-orders/:id/boxes
func (h *FulfillmentHandler) AddBox(c *gin.Context) {
	var req struct {
		PackagingMaterialID *uint `json:"packaging_material_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		bindError(c, err)
		return
	}

	box, err := h.fulfillmentService.AddBox(c.Param("id"), req.PackagingMaterialID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Box added successfully",
		"data":    box,
	})
}

// AddBoxItem handles POST /packing-boxes/:id/items
func (h *FulfillmentHandler) AddBoxItem(c *gin.Context) {
	var req fulfillment.AddBoxItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	item, err := h.fulfillmentService.AddBoxItem(c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Box item added successfully",
		"data":    item,
	})
}

// CompletePackingOrder handles POST /packing-orders/:id/complete
func (h *FulfillmentHandler) CompletePackingOrder(c *gin.Context) {
	order, err := h.fulfillmentService.CompletePackingOrder(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Packing order completed successfully",
		"data":    order,
	})
}

// SHIPMENTS

// CreateShipment handles POST /shipments
func (h *FulfillmentHandler) CreateShipment(c *gin.Context) {
	var req fulfillment.CreateShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	shipment, err := h.fulfillmentService.CreateShipment(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Shipment created successfully",
		"data":    shipment,
	})
}

// GetShipment handles GET /shipments/:id
func (h *FulfillmentHandler) GetShipment(c *gin.Context) {
	shipment, err := h.fulfillmentService.GetShipment(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipment retrieved successfully",
		"data":    shipment,
	})
}

// UpdateShipmentStatus handles POST /shipments/:id/status
func (h *FulfillmentHandler) UpdateShipmentStatus(c *gin.Context) {
	var req struct {
		Status fulfillment.ShipmentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	shipment, err := h.fulfillmentService.UpdateShipmentStatus(c.Param("id"), req.Status, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.activityService.Record(actorID, "shipment."+string(req.Status), "shipment", shipment.PublicID, "", c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipment status updated successfully",
		"data":    shipment,
	})
}
