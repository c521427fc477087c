// internal/domain/fulfillment/packing.go
package fulfillment

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// AddBoxItemRequest represents packing picked quantity into a box
type AddBoxItemRequest struct {
	PickingOrderItemPublicID string `json:"picking_order_item_id" binding:"required"`
	Quantity                 int    `json:"quantity" binding:"required,gt=0"`
}

// CreatePackingOrder groups a completed picking list's picked items for
// the sales order's customer.
func (s *Service) CreatePackingOrder(pickingListPublicID string) (*PackingOrder, error) {
	var list PickingList
	if err := s.db.Where("public_id = ?", pickingListPublicID).First(&list).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve picking list: %w", err)
	}

	if list.Status != PickingStatusCompleted {
		return nil, fmt.Errorf("%w: picking list is %s, packing requires completed picking",
			shared.ErrInvalidTransition, list.Status)
	}

	var plan ShippingPlan
	if err := s.db.Preload("SalesOrder").First(&plan, list.ShippingPlanID).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
	}

	packingOrder := &PackingOrder{
		PublicID:      uuid.NewString(),
		PickingListID: list.ID,
		CustomerID:    plan.SalesOrder.CustomerID,
		Status:        PackingStatusPending,
	}
	if err := s.db.Create(packingOrder).Error; err != nil {
		return nil, fmt.Errorf("failed to create packing order: %w", err)
	}

	return packingOrder, nil
}

// GetPackingOrder retrieves a packing order by public identifier
func (s *Service) GetPackingOrder(publicID string) (*PackingOrder, error) {
	var order PackingOrder
	if err := s.db.Preload("Boxes.Items").Where("public_id = ?", publicID).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve packing order: %w", err)
	}
	return &order, nil
}

// AddBox opens a new box within a packing order
func (s *Service) AddBox(packingOrderPublicID string, packagingMaterialID *uint) (*PackingBox, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var order PackingOrder
	if err := tx.Where("public_id = ?", packingOrderPublicID).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve packing order: %w", err)
	}

	if order.Status == PackingStatusCompleted {
		tx.Rollback()
		return nil, fmt.Errorf("%w: packing order already completed", shared.ErrInvalidTransition)
	}

	var boxCount int64
	if err := tx.Model(&PackingBox{}).Where("packing_order_id = ?", order.ID).Count(&boxCount).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to count boxes: %w", err)
	}

	box := &PackingBox{
		PublicID:            uuid.NewString(),
		PackingOrderID:      order.ID,
		BoxNumber:           int(boxCount) + 1,
		PackagingMaterialID: packagingMaterialID,
	}
	if err := tx.Create(box).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create packing box: %w", err)
	}

	if order.Status == PackingStatusPending {
		if err := tx.Model(&order).Update("status", PackingStatusInProgress).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to update packing order: %w", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit box: %w", err)
	}
	return box, nil
}

// AddBoxItem packs picked quantity into a box. Only items that reached a
// terminal picked outcome can be packed, and the sum across boxes never
// exceeds the item's picked quantity.
func (s *Service) AddBoxItem(boxPublicID string, req *AddBoxItemRequest) (*PackingBoxItem, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var box PackingBox
	if err := tx.Where("public_id = ?", boxPublicID).First(&box).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve packing box: %w", err)
	}

	var pickItem PickingOrderItem
	if err := tx.Where("public_id = ?", req.PickingOrderItemPublicID).First(&pickItem).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve picking item: %w", err)
	}

	// Shortage items still have a concrete picked quantity available to pack
	if pickItem.Status != PickingItemStatusPicked && pickItem.Status != PickingItemStatusShortage {
		tx.Rollback()
		return nil, fmt.Errorf("%w: picking item is %s, nothing packable",
			shared.ErrInvalidTransition, pickItem.Status)
	}

	var packedTotal int64
	if err := tx.Model(&PackingBoxItem{}).
		Where("picking_order_item_id = ?", pickItem.ID).
		Select("COALESCE(SUM(quantity_packed), 0)").
		Scan(&packedTotal).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to sum packed quantity: %w", err)
	}

	if int(packedTotal)+req.Quantity > pickItem.QuantityPicked {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %d already packed of %d picked, cannot pack %d more",
			shared.ErrOverAllocation, packedTotal, pickItem.QuantityPicked, req.Quantity)
	}

	boxItem := &PackingBoxItem{
		PackingBoxID:       box.ID,
		PickingOrderItemID: pickItem.ID,
		QuantityPacked:     req.Quantity,
	}
	if err := tx.Create(boxItem).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create box item: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit box item: %w", err)
	}
	return boxItem, nil
}

// CompletePackingOrder closes the packing stage for shipment creation
func (s *Service) CompletePackingOrder(publicID string) (*PackingOrder, error) {
	var order PackingOrder
	if err := s.db.Where("public_id = ?", publicID).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve packing order: %w", err)
	}

	if order.Status != PackingStatusInProgress {
		return nil, fmt.Errorf("%w: packing order is %s", shared.ErrInvalidTransition, order.Status)
	}

	var itemCount int64
	if err := s.db.Model(&PackingBoxItem{}).
		Joins("JOIN packing_boxes ON packing_boxes.id = packing_box_items.packing_box_id").
		Where("packing_boxes.packing_order_id = ?", order.ID).
		Count(&itemCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count packed items: %w", err)
	}
	if itemCount == 0 {
		return nil, fmt.Errorf("%w: nothing packed yet", shared.ErrInvalidTransition)
	}

	if err := s.db.Model(&order).Update("status", PackingStatusCompleted).Error; err != nil {
		return nil, fmt.Errorf("failed to complete packing order: %w", err)
	}
	order.Status = PackingStatusCompleted
	return &order, nil
}
