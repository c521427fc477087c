// internal/domain/fulfillment/shipment.go
package fulfillment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// CreateShipmentRequest represents shipment creation data
type CreateShipmentRequest struct {
	ShippingPlanPublicID string `json:"shipping_plan_id" binding:"required"`
	CarrierTypeID        *uint  `json:"carrier_type_id,omitempty"`
	TrackingNumber       string `json:"tracking_number,omitempty"`
}

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentStatusPreparing:   {ShipmentStatusReadyToShip, ShipmentStatusCancelled},
	ShipmentStatusReadyToShip: {ShipmentStatusShipped, ShipmentStatusCancelled},
	ShipmentStatusShipped:     {ShipmentStatusInTransit, ShipmentStatusDelivered, ShipmentStatusReturned},
	ShipmentStatusInTransit:   {ShipmentStatusDelivered, ShipmentStatusReturned},
}

func isValidShipmentTransition(from, to ShipmentStatus) bool {
	for _, status := range shipmentTransitions[from] {
		if status == to {
			return true
		}
	}
	return false
}

// CreateShipment opens a shipment for a plan whose packing is complete
func (s *Service) CreateShipment(req *CreateShipmentRequest) (*Shipment, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var plan ShippingPlan
	if err := tx.Where("public_id = ?", req.ShippingPlanPublicID).First(&plan).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
	}

	if plan.Status != ShippingPlanStatusInProgress {
		tx.Rollback()
		return nil, fmt.Errorf("%w: shipping plan is %s", shared.ErrInvalidTransition, plan.Status)
	}

	var packed int64
	if err := tx.Model(&PackingOrder{}).
		Joins("JOIN picking_lists ON picking_lists.id = packing_orders.picking_list_id").
		Where("picking_lists.shipping_plan_id = ? AND packing_orders.status = ?", plan.ID, PackingStatusCompleted).
		Count(&packed).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to check packing: %w", err)
	}
	if packed == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: no completed packing order for this plan", shared.ErrInvalidTransition)
	}

	shipment := &Shipment{
		PublicID:       uuid.NewString(),
		ShippingPlanID: plan.ID,
		CarrierTypeID:  req.CarrierTypeID,
		TrackingNumber: req.TrackingNumber,
		Status:         ShipmentStatusPreparing,
	}
	if err := tx.Create(shipment).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create shipment: %w", err)
	}

	shipment.ShipmentNumber = GenerateShipmentNumber(shipment.ID)
	if err := tx.Model(shipment).Update("shipment_number", shipment.ShipmentNumber).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update shipment number: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit shipment: %w", err)
	}
	return shipment, nil
}

// GetShipment retrieves a shipment by public identifier
func (s *Service) GetShipment(publicID string) (*Shipment, error) {
	var shipment Shipment
	if err := s.db.Where("public_id = ?", publicID).First(&shipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipment: %w", err)
	}
	return &shipment, nil
}

// MarkShipped transitions the shipment to SHIPPED and consumes the
// reservation of every allocation represented by the packed items. Either
// every allocation ships or none does.
func (s *Service) MarkShipped(publicID string, actorID uint) (*Shipment, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var shipment Shipment
	if err := tx.Where("public_id = ?", publicID).First(&shipment).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipment: %w", err)
	}

	if !isValidShipmentTransition(shipment.Status, ShipmentStatusShipped) {
		tx.Rollback()
		return nil, fmt.Errorf("%w: shipment cannot move from %s to %s",
			shared.ErrInvalidTransition, shipment.Status, ShipmentStatusShipped)
	}

	totals, err := s.packedTotalsByAllocation(tx, shipment.ShippingPlanID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(totals) == 0 {
		tx.Rollback()
		return nil, fmt.Errorf("%w: shipment has no packed quantity", shared.ErrInvalidTransition)
	}

	for _, t := range totals {
		alloc, err := s.stockSvc.LoadAllocationInTx(tx, t.AllocationID)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := s.stockSvc.ShipInTx(tx, alloc, t.Quantity, "shipment", shipment.ID, actorID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	if err := tx.Model(&shipment).Updates(map[string]interface{}{
		"status":     ShipmentStatusShipped,
		"shipped_at": now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to update shipment: %w", err)
	}
	shipment.Status = ShipmentStatusShipped
	shipment.ShippedAt = &now

	var plan ShippingPlan
	if err := tx.First(&plan, shipment.ShippingPlanID).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to retrieve shipping plan: %w", err)
	}
	if err := s.transitionPlan(tx, &plan, ShippingPlanStatusCompleted); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit shipment: %w", err)
	}
	return &shipment, nil
}

// UpdateShipmentStatus applies the remaining forward transitions
// (ready_to_ship, in_transit, delivered, cancelled, returned).
func (s *Service) UpdateShipmentStatus(publicID string, to ShipmentStatus, actorID uint) (*Shipment, error) {
	if to == ShipmentStatusShipped {
		return s.MarkShipped(publicID, actorID)
	}

	var shipment Shipment
	if err := s.db.Where("public_id = ?", publicID).First(&shipment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve shipment: %w", err)
	}

	if !isValidShipmentTransition(shipment.Status, to) {
		return nil, fmt.Errorf("%w: shipment cannot move from %s to %s",
			shared.ErrInvalidTransition, shipment.Status, to)
	}

	updates := map[string]interface{}{"status": to}
	now := time.Now().UTC()
	if to == ShipmentStatusDelivered {
		updates["delivered_at"] = now
	}

	if err := s.db.Model(&shipment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update shipment status: %w", err)
	}
	shipment.Status = to
	if to == ShipmentStatusDelivered {
		shipment.DeliveredAt = &now
		if s.notifier != nil {
			s.notifier.Publish("shipment.delivered", map[string]interface{}{
				"shipment_id":     shipment.PublicID,
				"shipment_number": shipment.ShipmentNumber,
				"delivered_at":    now,
			})
		}
	}

	return &shipment, nil
}

// allocationTotal is one allocation's packed quantity within a shipment
type allocationTotal struct {
	AllocationID uint
	Quantity     int
}

func (s *Service) packedTotalsByAllocation(tx *gorm.DB, shippingPlanID uint) ([]allocationTotal, error) {
	var totals []allocationTotal
	err := tx.Model(&PackingBoxItem{}).
		Select("picking_order_items.allocation_id AS allocation_id, SUM(packing_box_items.quantity_packed) AS quantity").
		Joins("JOIN picking_order_items ON picking_order_items.id = packing_box_items.picking_order_item_id").
		Joins("JOIN packing_boxes ON packing_boxes.id = packing_box_items.packing_box_id").
		Joins("JOIN packing_orders ON packing_orders.id = packing_boxes.packing_order_id").
		Joins("JOIN picking_lists ON picking_lists.id = packing_orders.picking_list_id").
		Where("picking_lists.shipping_plan_id = ?", shippingPlanID).
		Group("picking_order_items.allocation_id").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to total packed quantities: %w", err)
	}
	return totals, nil
}
