// internal/interfaces/http/handlers/consignment.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/activity"
	"github.com/your-org/warehouse-backend/internal/domain/consignment"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"github.com/your-org/warehouse-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// ConsignmentHandler handles consignment sub-ledger endpoints
type ConsignmentHandler struct {
	consignmentService *consignment.Service
	activityService    *activity.Service
	config             *config.Config
}

// NewConsignmentHandler creates a new consignment handler
func NewConsignmentHandler(db *gorm.DB, cfg *config.Config, notifier consignment.Notifier) *ConsignmentHandler {
	stockSvc := stock.NewService(db, cfg)
	return &ConsignmentHandler{
		consignmentService: consignment.NewService(db, cfg, stockSvc, notifier),
		activityService:    activity.NewService(db),
		config:             cfg,
	}
}

// CreateAgreement handles POST /consignment/agreements
func (h *ConsignmentHandler) CreateAgreement(c *gin.Context) {
	var req consignment.CreateAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	agreement, err := h.consignmentService.CreateAgreement(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Agreement created successfully",
		"data":    agreement,
	})
}

// GetAgreement handles GET /consignment/agreements/:id
func (h *ConsignmentHandler) GetAgreement(c *gin.Context) {
	agreement, err := h.consignmentService.GetAgreement(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Agreement retrieved successfully",
		"data":    agreement,
	})
}

// Ship handles POST /consignment/shipments
func (h *ConsignmentHandler) Ship(c *gin.Context) {
	var req consignment.ShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	cons, err := h.consignmentService.Ship(&req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.activityService.Record(actorID, "consignment.shipped", "consignment", cons.PublicID, "", c.ClientIP())

	c.JSON(http.StatusCreated, gin.H{
		"message": "Consignment shipped successfully",
		"data":    cons,
	})
}

// GetConsignment handles GET /consignment/shipments/:id
func (h *ConsignmentHandler) GetConsignment(c *gin.Context) {
	cons, err := h.consignmentService.GetConsignment(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Consignment retrieved successfully",
		"data":    cons,
	})
}

// RecordSale handles POST /consignment/sales
func (h *ConsignmentHandler) RecordSale(c *gin.Context) {
	var req consignment.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	sale, err := h.consignmentService.RecordSale(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Sale recorded successfully",
		"data":    sale,
	})
}

// RecordReturn handles POST /consignment/returns
func (h *ConsignmentHandler) RecordReturn(c *gin.Context) {
	var req consignment.RecordReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	ret, err := h.consignmentService.RecordReturn(&req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Return recorded successfully",
		"data":    ret,
	})
}

// GenerateStatement handles POST /consignment/statements
func (h *ConsignmentHandler) GenerateStatement(c *gin.Context) {
	var req consignment.StatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	statement, err := h.consignmentService.GenerateStatement(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Statement generated successfully",
		"data":    statement,
	})
}

// FinalizeStatement handles POST /consignment/statements/:id/finalize
func (h *ConsignmentHandler) FinalizeStatement(c *gin.Context) {
	statement, err := h.consignmentService.FinalizeStatement(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Statement finalized successfully",
		"data":    statement,
	})
}

// DeleteConsignment handles DELETE /admin/consignment/shipments/:id
func (h *ConsignmentHandler) DeleteConsignment(c *gin.Context) {
	force := c.Query("force") == "true"

	if err := h.consignmentService.DeleteConsignment(c.Param("id"), force); err != nil {
		respondError(c, err)
		return
	}

	actorID, _ := middleware.GetUserIDFromContext(c)
	h.activityService.Record(actorID, "consignment.deleted", "consignment", c.Param("id"), "", c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"message": "Consignment deleted successfully",
	})
}
