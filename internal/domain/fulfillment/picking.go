// internal/domain/fulfillment/picking.go
package fulfillment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// RecordPickRequest represents the outcome of picking one item
type RecordPickRequest struct {
	QuantityPicked int               `json:"quantity_picked" binding:"min=0"`
	Status         PickingItemStatus `json:"status" binding:"required"`
	Reason         string            `json:"reason,omitempty"`
}

// CreatePickingList derives pick work from a confirmed shipping plan. Each
// plan item is split across source racks following the configured picking
// policy (FIFO by placement date, or FEFO by batch expiry).
func (s *Service) CreatePickingList(planPublicID string, assignedTo *uint, actorID uint) (*PickingList, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var plan ShippingPlan
	if err := tx.Preload("Items").Where("public_id = ?", planPublicID).First(&plan).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
	}

	if err := s.transitionPlan(tx, &plan, ShippingPlanStatusPickingListCreated); err != nil {
		tx.Rollback()
		return nil, err
	}

	list := &PickingList{
		PublicID:       uuid.NewString(),
		ShippingPlanID: plan.ID,
		Status:         PickingStatusPending,
	}
	if err := tx.Create(list).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create picking list: %w", err)
	}

	order := &PickingOrder{
		PublicID:      uuid.NewString(),
		PickingListID: list.ID,
		AssignedTo:    assignedTo,
		Status:        PickingStatusPending,
	}
	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create picking order: %w", err)
	}

	for _, planItem := range plan.Items {
		placements, err := s.rackSvc.PlacementsForID(tx, planItem.AllocationID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		remaining := planItem.QuantityPlanned
		for _, placement := range placements {
			if remaining == 0 {
				break
			}
			take := remaining
			if take > placement.Quantity {
				take = placement.Quantity
			}
			item := PickingOrderItem{
				PublicID:           uuid.NewString(),
				PickingOrderID:     order.ID,
				ShippingPlanItemID: planItem.ID,
				AllocationID:       planItem.AllocationID,
				RackID:             placement.RackID,
				QuantityRequested:  take,
				Status:             PickingItemStatusPending,
			}
			if err := tx.Create(&item).Error; err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("failed to create picking item: %w", err)
			}
			order.Items = append(order.Items, item)
			remaining -= take
		}

		if remaining > 0 {
			tx.Rollback()
			return nil, fmt.Errorf("%w: allocation %d has only %d placed, %d still needed",
				shared.ErrInsufficientStock, planItem.AllocationID,
				planItem.QuantityPlanned-remaining, remaining)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit picking list: %w", err)
	}
	list.Orders = []PickingOrder{*order}
	return list, nil
}

// GetPickingList retrieves a picking list by public identifier
func (s *Service) GetPickingList(publicID string) (*PickingList, error) {
	var list PickingList
	if err := s.db.Preload("Orders.Items").Where("public_id = ?", publicID).First(&list).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve picking list: %w", err)
	}
	return &list, nil
}

// StartPickingOrder moves a picking order into progress, pulling the list
// and the plan forward with it.
func (s *Service) StartPickingOrder(publicID string, actorID uint) (*PickingOrder, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var order PickingOrder
	if err := tx.Where("public_id = ?", publicID).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve picking order: %w", err)
	}

	if order.Status != PickingStatusPending {
		tx.Rollback()
		return nil, fmt.Errorf("%w: picking order is %s", shared.ErrInvalidTransition, order.Status)
	}

	now := time.Now().UTC()
	if err := tx.Model(&order).Updates(map[string]interface{}{
		"status":     PickingStatusInProgress,
		"started_at": now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to start picking order: %w", err)
	}
	order.Status = PickingStatusInProgress
	order.StartedAt = &now

	var list PickingList
	if err := tx.First(&list, order.PickingListID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to retrieve picking list: %w", err)
	}
	if list.Status == PickingStatusPending {
		if err := tx.Model(&list).Update("status", PickingStatusInProgress).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update picking list: %w", err)
		}
		var plan ShippingPlan
		if err := tx.First(&plan, list.ShippingPlanID).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
		}
		if err := s.transitionPlan(tx, &plan, ShippingPlanStatusInProgress); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit picking start: %w", err)
	}
	return &order, nil
}

// RecordPick finalizes one picking item. A shortage releases the unpicked
// delta back to the allocation's reservation so it becomes available again;
// damaged quantity stays reserved pending a manual adjustment.
func (s *Service) RecordPick(itemPublicID string, req *RecordPickRequest, actorID uint) (*PickingOrderItem, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item PickingOrderItem
	if err := tx.Where("public_id = ?", itemPublicID).First(&item).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve picking item: %w", err)
	}

	if item.Status != PickingItemStatusPending {
		tx.Rollback()
		return nil, fmt.Errorf("%w: picking item already %s", shared.ErrInvalidTransition, item.Status)
	}

	var order PickingOrder
	if err := tx.First(&order, item.PickingOrderID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to retrieve picking order: %w", err)
	}
	if order.Status != PickingStatusInProgress {
		tx.Rollback()
		return nil, fmt.Errorf("%w: picking order is %s, not in progress", shared.ErrInvalidTransition, order.Status)
	}

	if err := validatePickOutcome(&item, req); err != nil {
		tx.Rollback()
		return nil, err
	}

	if req.QuantityPicked > 0 {
		if err := s.rackSvc.ConsumeInTx(tx, item.RackID, item.AllocationID, req.QuantityPicked); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if req.Status == PickingItemStatusShortage {
		delta := item.QuantityRequested - req.QuantityPicked
		alloc, err := s.stockSvc.LoadAllocationInTx(tx, item.AllocationID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.stockSvc.ReleaseInTx(tx, alloc, delta, "picking_shortage", item.ID, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := tx.Model(&item).Updates(map[string]interface{}{
		"quantity_picked": req.QuantityPicked,
		"status":          req.Status,
		"shortage_reason": req.Reason,
		"picked_by":       actorID,
		"picked_at":       now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update picking item: %w", err)
	}
	item.QuantityPicked = req.QuantityPicked
	item.Status = req.Status
	item.ShortageReason = req.Reason
	item.PickedAt = &now

	if err := s.completeIfDone(tx, &order); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit pick: %w", err)
	}
	return &item, nil
}

// CancelPickingOrder cancels remaining work; reservations behind pending
// items are released back to available stock.
func (s *Service) CancelPickingOrder(publicID string, actorID uint) (*PickingOrder, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var order PickingOrder
	if err := tx.Preload("Items").Where("public_id = ?", publicID).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve picking order: %w", err)
	}

	if order.Status != PickingStatusPending && order.Status != PickingStatusInProgress {
		tx.Rollback()
		return nil, fmt.Errorf("%w: picking order is %s", shared.ErrInvalidTransition, order.Status)
	}

	for _, item := range order.Items {
		if item.Status != PickingItemStatusPending {
			continue
		}
		alloc, err := s.stockSvc.LoadAllocationInTx(tx, item.AllocationID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.stockSvc.ReleaseInTx(tx, alloc, item.QuantityRequested, "picking_cancelled", item.ID, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Model(&order).Update("status", PickingStatusCancelled).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to cancel picking order: %w", err)
	}
	order.Status = PickingStatusCancelled

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit picking cancellation: %w", err)
	}
	return &order, nil
}

// Private helpers

func validatePickOutcome(item *PickingOrderItem, req *RecordPickRequest) error {
	if req.QuantityPicked > item.QuantityRequested {
		return fmt.Errorf("%w: picked %d exceeds requested %d",
			shared.ErrInvalidInput, req.QuantityPicked, item.QuantityRequested)
	}

	switch req.Status {
	case PickingItemStatusPicked:
		if req.QuantityPicked != item.QuantityRequested {
			return fmt.Errorf("%w: picked status requires the full requested quantity", shared.ErrInvalidInput)
		}
	case PickingItemStatusShortage:
		if req.QuantityPicked >= item.QuantityRequested {
			return fmt.Errorf("%w: shortage requires picked < requested", shared.ErrInvalidInput)
		}
		if req.Reason == "" {
			return fmt.Errorf("%w: shortage must be explained", shared.ErrInvalidInput)
		}
	case PickingItemStatusDamaged:
		if req.Reason == "" {
			return fmt.Errorf("%w: damaged outcome must be explained", shared.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: invalid picking outcome '%s'", shared.ErrInvalidInput, req.Status)
	}
	return nil
}

// completeIfDone closes the picking order and list once every item reached
// a terminal state.
func (s *Service) completeIfDone(tx *gorm.DB, order *PickingOrder) error {
	var pending int64
	if err := tx.Model(&PickingOrderItem{}).
		Where("picking_order_id = ? AND status = ?", order.ID, PickingItemStatusPending).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("failed to count pending items: %w", err)
	}
	if pending > 0 {
		return nil
	}

	now := time.Now().UTC()
	if err := tx.Model(order).Updates(map[string]interface{}{
		"status":       PickingStatusCompleted,
		"completed_at": now,
	}).Error; err != nil {
		return fmt.Errorf("failed to complete picking order: %w", err)
	}
	order.Status = PickingStatusCompleted
	order.CompletedAt = &now

	var open int64
	if err := tx.Model(&PickingOrder{}).
		Where("picking_list_id = ? AND status IN ?", order.PickingListID,
			[]PickingStatus{PickingStatusPending, PickingStatusInProgress}).
		Count(&open).Error; err != nil {
		return fmt.Errorf("failed to count open picking orders: %w", err)
	}
	if open == 0 {
		if err := tx.Model(&PickingList{}).
			Where("id = ?", order.PickingListID).
			Update("status", PickingStatusCompleted).Error; err != nil {
			return fmt.Errorf("failed to complete picking list: %w", err)
		}
	}
	return nil
}
