// internal/domain/fulfillment/service.go
package fulfillment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/rack"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"gorm.io/gorm"
)

// Notifier publishes terminal-state events, fire-and-forget
type Notifier interface {
	Publish(event string, payload interface{})
}

// Service handles the fulfillment pipeline business logic
type Service struct {
	db       *gorm.DB
	config   *config.Config
	stockSvc *stock.Service
	rackSvc  *rack.Service
	notifier Notifier
}

// NewService creates a new fulfillment service
func NewService(db *gorm.DB, cfg *config.Config, stockSvc *stock.Service, rackSvc *rack.Service, notifier Notifier) *Service {
	return &Service{
		db:       db,
		config:   cfg,
		stockSvc: stockSvc,
		rackSvc:  rackSvc,
		notifier: notifier,
	}
}

// CreateSalesOrderRequest represents sales order creation data
type CreateSalesOrderRequest struct {
	CustomerID uint                    `json:"customer_id" binding:"required"`
	Notes      string                  `json:"notes,omitempty"`
	Items      []SalesOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// SalesOrderItemRequest represents one requested product quantity
type SalesOrderItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gt=0"`
}

// CreateShippingPlanRequest represents shipping plan creation data
type CreateShippingPlanRequest struct {
	SalesOrderPublicID string                    `json:"sales_order_id" binding:"required"`
	Items              []ShippingPlanItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ShippingPlanItemRequest covers part of a sales order item from an allocation
type ShippingPlanItemRequest struct {
	SalesOrderItemPublicID string `json:"sales_order_item_id" binding:"required"`
	AllocationPublicID     string `json:"allocation_id" binding:"required"`
	Quantity               int    `json:"quantity" binding:"required,gt=0"`
}

// SALES ORDERS

// CreateSalesOrder creates a sales order with its requested items
func (s *Service) CreateSalesOrder(req *CreateSalesOrderRequest) (*SalesOrder, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	order := &SalesOrder{
		PublicID:   uuid.NewString(),
		CustomerID: req.CustomerID,
		Status:     SalesOrderStatusPending,
		Notes:      req.Notes,
	}
	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create sales order: %w", err)
	}

	order.OrderNumber = GenerateOrderNumber(order.ID)
	if err := tx.Model(order).Update("order_number", order.OrderNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update order number: %w", err)
	}

	for _, item := range req.Items {
		orderItem := SalesOrderItem{
			PublicID:          uuid.NewString(),
			SalesOrderID:      order.ID,
			ProductID:         item.ProductID,
			QuantityRequested: item.Quantity,
			Status:            SalesOrderItemStatusPending,
		}
		if err := tx.Create(&orderItem).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create sales order item: %w", err)
		}
		order.Items = append(order.Items, orderItem)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit sales order: %w", err)
	}
	return order, nil
}

// GetSalesOrder retrieves a sales order by public identifier
func (s *Service) GetSalesOrder(publicID string) (*SalesOrder, error) {
	var order SalesOrder
	if err := s.db.Preload("Items").Where("public_id = ?", publicID).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve sales order: %w", err)
	}
	return &order, nil
}

// SHIPPING PLANS

// CreateShippingPlan covers sales order item quantities with allocations.
// Planning more than an item's remaining quantity fails with OverAllocation
// and nothing is applied.
func (s *Service) CreateShippingPlan(req *CreateShippingPlanRequest) (*ShippingPlan, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var order SalesOrder
	if err := tx.Where("public_id = ?", req.SalesOrderPublicID).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve sales order: %w", err)
	}
	if order.Status == SalesOrderStatusCancelled || order.Status == SalesOrderStatusCompleted {
		tx.Rollback()
		return nil, fmt.Errorf("%w: sales order is %s", shared.ErrInvalidTransition, order.Status)
	}

	plan := &ShippingPlan{
		PublicID:     uuid.NewString(),
		SalesOrderID: order.ID,
		Status:       ShippingPlanStatusPending,
	}
	if err := tx.Create(plan).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create shipping plan: %w", err)
	}

	plan.PlanNumber = GeneratePlanNumber(plan.ID)
	if err := tx.Model(plan).Update("plan_number", plan.PlanNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update plan number: %w", err)
	}

	for _, item := range req.Items {
		var orderItem SalesOrderItem
		if err := tx.Where("public_id = ? AND sales_order_id = ?", item.SalesOrderItemPublicID, order.ID).
			First(&orderItem).Error; err != nil {
			tx.Rollback()
			if err == gorm.ErrRecordNotFound {
				return nil, shared.ErrNotFound
			}
			return nil, fmt.Errorf("failed to retrieve sales order item: %w", err)
		}

		if item.Quantity > orderItem.QuantityRemaining() {
			tx.Rollback()
			return nil, fmt.Errorf("%w: item has %d remaining, planned %d",
				shared.ErrOverAllocation, orderItem.QuantityRemaining(), item.Quantity)
		}

		var alloc stock.Allocation
		if err := tx.Where("public_id = ?", item.AllocationPublicID).First(&alloc).Error; err != nil {
			tx.Rollback()
			if err == gorm.ErrRecordNotFound {
				return nil, shared.ErrNotFound
			}
			return nil, fmt.Errorf("failed to retrieve allocation: %w", err)
		}
		if alloc.IsTerminal() {
			tx.Rollback()
			return nil, fmt.Errorf("%w: allocation is %s", shared.ErrInvalidTransition, alloc.Status)
		}

		planItem := ShippingPlanItem{
			ShippingPlanID:   plan.ID,
			SalesOrderItemID: orderItem.ID,
			AllocationID:     alloc.ID,
			QuantityPlanned:  item.Quantity,
		}
		if err := tx.Create(&planItem).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create shipping plan item: %w", err)
		}
		plan.Items = append(plan.Items, planItem)

		orderItem.QuantityPlanned += item.Quantity
		updates := map[string]interface{}{"quantity_planned": orderItem.QuantityPlanned}
		if orderItem.QuantityRemaining() == 0 {
			updates["status"] = SalesOrderItemStatusPlanned
		}
		if err := tx.Model(&orderItem).Updates(updates).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update sales order item: %w", err)
		}
	}

	// Sales order moves to planned once every item is fully covered
	var pending int64
	if err := tx.Model(&SalesOrderItem{}).
		Where("sales_order_id = ? AND status = ?", order.ID, SalesOrderItemStatusPending).
		Count(&pending).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to count pending items: %w", err)
	}
	if pending == 0 && order.Status == SalesOrderStatusPending {
		if err := tx.Model(&order).Update("status", SalesOrderStatusPlanned).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update sales order status: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit shipping plan: %w", err)
	}
	return plan, nil
}

// GetShippingPlan retrieves a shipping plan by public identifier
func (s *Service) GetShippingPlan(publicID string) (*ShippingPlan, error) {
	var plan ShippingPlan
	if err := s.db.Preload("Items").Where("public_id = ?", publicID).First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
	}
	return &plan, nil
}

// ConfirmShippingPlan is the trigger point that reserves allocation
// quantity for every covered item. All reservations and the status change
// commit together or not at all.
func (s *Service) ConfirmShippingPlan(publicID string, actorID uint) (*ShippingPlan, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var plan ShippingPlan
	if err := tx.Preload("Items").Where("public_id = ?", publicID).First(&plan).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
	}

	if err := s.transitionPlan(tx, &plan, ShippingPlanStatusConfirmed); err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, item := range plan.Items {
		alloc, err := s.stockSvc.LoadAllocationInTx(tx, item.AllocationID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.stockSvc.ReserveInTx(tx, alloc, item.QuantityPlanned, "shipping_plan", plan.ID, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := tx.Model(&plan).Update("confirmed_at", now).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to set confirmation time: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit plan confirmation: %w", err)
	}
	plan.ConfirmedAt = &now
	return &plan, nil
}

// CancelShippingPlan cancels a plan anywhere short of completion,
// releasing reservations and unwinding open pick work. Once packing has
// started the goods are boxed and the plan can only run forward.
func (s *Service) CancelShippingPlan(publicID string, actorID uint) (*ShippingPlan, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var plan ShippingPlan
	if err := tx.Preload("Items").Where("public_id = ?", publicID).First(&plan).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
	}

	prior := plan.Status

	if err := s.transitionPlan(tx, &plan, ShippingPlanStatusCancelled); err != nil {
		tx.Rollback()
		return nil, err
	}

	switch prior {
	case ShippingPlanStatusConfirmed:
		for _, item := range plan.Items {
			alloc, err := s.stockSvc.LoadAllocationInTx(tx, item.AllocationID)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			if err := s.stockSvc.ReleaseInTx(tx, alloc, item.QuantityPlanned, "shipping_plan", plan.ID, actorID); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	case ShippingPlanStatusPickingListCreated, ShippingPlanStatusInProgress:
		if err := s.cancelPickWorkTx(tx, &plan, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	// Give planned quantity back to the sales order items
	for _, item := range plan.Items {
		result := tx.Model(&SalesOrderItem{}).
			Where("id = ?", item.SalesOrderItemID).
			Updates(map[string]interface{}{
				"quantity_planned": gorm.Expr("quantity_planned - ?", item.QuantityPlanned),
				"status":           SalesOrderItemStatusPending,
			})
		if result.Error != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to restore sales order item: %w", result.Error)
		}
	}

	// Reopen the sales order if full coverage had moved it to planned
	if err := tx.Model(&SalesOrder{}).
		Where("id = ? AND status = ?", plan.SalesOrderID, SalesOrderStatusPlanned).
		Update("status", SalesOrderStatusPending).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to reopen sales order: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit plan cancellation: %w", err)
	}
	return &plan, nil
}

// cancelPickWorkTx unwinds the plan's picking lists during a mid-pick
// cancellation. Each item releases what is still reserved behind it: a
// pending item its full request, a picked or short item what was taken
// off the rack, a damaged item nothing (that quantity stays reserved
// pending a manual adjustment, matching RecordPick).
func (s *Service) cancelPickWorkTx(tx *gorm.DB, plan *ShippingPlan, actorID uint) error {
	var packed int64
	if err := tx.Model(&PackingOrder{}).
		Joins("JOIN picking_lists ON picking_lists.id = packing_orders.picking_list_id").
		Where("picking_lists.shipping_plan_id = ?", plan.ID).
		Count(&packed).Error; err != nil {
		return fmt.Errorf("failed to count packing orders: %w", err)
	}
	if packed > 0 {
		return fmt.Errorf("%w: packing has started for this plan", shared.ErrInvalidTransition)
	}

	var lists []PickingList
	if err := tx.Preload("Orders.Items").Where("shipping_plan_id = ?", plan.ID).Find(&lists).Error; err != nil {
		return fmt.Errorf("failed to retrieve picking lists: %w", err)
	}

	for _, list := range lists {
		for _, order := range list.Orders {
			for _, item := range order.Items {
				release := 0
				switch item.Status {
				case PickingItemStatusPending:
					release = item.QuantityRequested
				case PickingItemStatusPicked, PickingItemStatusShortage:
					// a shortage already released its unpicked delta
					release = item.QuantityPicked
				}
				if release == 0 {
					continue
				}
				alloc, err := s.stockSvc.LoadAllocationInTx(tx, item.AllocationID)
				if err != nil {
					return err
				}
				if err := s.stockSvc.ReleaseInTx(tx, alloc, release, "plan_cancelled", item.ID, actorID); err != nil {
					return err
				}
			}
			if order.Status == PickingStatusPending || order.Status == PickingStatusInProgress {
				if err := tx.Model(&PickingOrder{}).Where("id = ?", order.ID).
					Update("status", PickingStatusCancelled).Error; err != nil {
					return fmt.Errorf("failed to cancel picking order: %w", err)
				}
			}
		}
		if list.Status != PickingStatusCompleted {
			if err := tx.Model(&PickingList{}).Where("id = ?", list.ID).
				Update("status", PickingStatusCancelled).Error; err != nil {
				return fmt.Errorf("failed to cancel picking list: %w", err)
			}
		}
	}
	return nil
}

// State machines. Transitions are strictly forward; anything not listed is
// rejected with InvalidTransition.

var planTransitions = map[ShippingPlanStatus][]ShippingPlanStatus{
	ShippingPlanStatusPending:            {ShippingPlanStatusConfirmed, ShippingPlanStatusCancelled},
	ShippingPlanStatusConfirmed:          {ShippingPlanStatusPickingListCreated, ShippingPlanStatusCancelled},
	ShippingPlanStatusPickingListCreated: {ShippingPlanStatusInProgress, ShippingPlanStatusCancelled},
	ShippingPlanStatusInProgress:         {ShippingPlanStatusCompleted, ShippingPlanStatusCancelled},
}

func isValidPlanTransition(from, to ShippingPlanStatus) bool {
	for _, status := range planTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

func (s *Service) transitionPlan(tx *gorm.DB, plan *ShippingPlan, to ShippingPlanStatus) error {
	if !isValidPlanTransition(plan.Status, to) {
		return fmt.Errorf("%w: shipping plan cannot move from %s to %s",
			shared.ErrInvalidTransition, plan.Status, to)
	}
	if err := tx.Model(plan).Update("status", to).Error; err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	plan.Status = to
	return nil
}
