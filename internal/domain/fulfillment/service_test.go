// internal/domain/fulfillment/service_test.go
package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/rack"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// captureNotifier records published events for assertions
type captureNotifier struct {
	events []string
}

func (n *captureNotifier) Publish(event string, payload interface{}) {
	n.events = append(n.events, event)
}

func newPipeline(t *testing.T) (*Service, *stock.Service, *rack.Service, *captureNotifier) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A pooled second connection would see its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&stock.Batch{}, &stock.Allocation{}, &stock.StockMovement{},
		&rack.Rack{}, &rack.RackAllocation{},
		&SalesOrder{}, &SalesOrderItem{},
		&ShippingPlan{}, &ShippingPlanItem{},
		&PickingList{}, &PickingOrder{}, &PickingOrderItem{},
		&PackingOrder{}, &PackingBox{}, &PackingBoxItem{},
		&Shipment{},
	))

	cfg := &config.Config{
		Warehouse: config.WarehouseConfig{PickingPolicy: config.PickingPolicyFIFO},
	}
	stockSvc := stock.NewService(db, cfg)
	rackSvc := rack.NewService(db, cfg)
	notifier := &captureNotifier{}
	return NewService(db, cfg, stockSvc, rackSvc, notifier), stockSvc, rackSvc, notifier
}

// seedPlacedAllocation receives a batch, allocates quantity and places it all
// on one rack so picking has something to draw from.
func seedPlacedAllocation(t *testing.T, stockSvc *stock.Service, rackSvc *rack.Service, quantity int) *stock.Allocation {
	t.Helper()
	batch, err := stockSvc.ReceiveBatch(&stock.ReceiveBatchRequest{
		ProductID:        1,
		LotNumber:        "LOT-001",
		ReceivedQuantity: quantity * 2,
	})
	require.NoError(t, err)

	alloc, err := stockSvc.Allocate(&stock.AllocateRequest{
		BatchPublicID: batch.PublicID,
		Quantity:      quantity,
		Type:          stock.AllocationTypeRegular,
	}, 1)
	require.NoError(t, err)

	rk, err := rackSvc.CreateRack(&rack.CreateRackRequest{Code: "A-01-01", Zone: "A"})
	require.NoError(t, err)
	_, err = rackSvc.Place(&rack.PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk.PublicID,
		Quantity:           quantity,
	}, 1)
	require.NoError(t, err)
	return alloc
}

// seedConfirmedPlan builds order → plan → confirm for one item
func seedConfirmedPlan(t *testing.T, svc *Service, alloc *stock.Allocation, quantity int) *ShippingPlan {
	t.Helper()
	order, err := svc.CreateSalesOrder(&CreateSalesOrderRequest{
		CustomerID: 7,
		Items:      []SalesOrderItemRequest{{ProductID: 1, Quantity: quantity}},
	})
	require.NoError(t, err)

	plan, err := svc.CreateShippingPlan(&CreateShippingPlanRequest{
		SalesOrderPublicID: order.PublicID,
		Items: []ShippingPlanItemRequest{{
			SalesOrderItemPublicID: order.Items[0].PublicID,
			AllocationPublicID:     alloc.PublicID,
			Quantity:               quantity,
		}},
	})
	require.NoError(t, err)

	plan, err = svc.ConfirmShippingPlan(plan.PublicID, 1)
	require.NoError(t, err)
	return plan
}

// pickEverything walks list creation, start and full picks for a confirmed plan
func pickEverything(t *testing.T, svc *Service) *PickingOrder {
	t.Helper()
	var plans []ShippingPlan
	require.NoError(t, svc.db.Where("status = ?", ShippingPlanStatusConfirmed).Find(&plans).Error)
	require.Len(t, plans, 1)

	list, err := svc.CreatePickingList(plans[0].PublicID, nil, 1)
	require.NoError(t, err)
	pickOrder := &list.Orders[0]

	pickOrder, err = svc.StartPickingOrder(pickOrder.PublicID, 1)
	require.NoError(t, err)

	var items []PickingOrderItem
	require.NoError(t, svc.db.Where("picking_order_id = ?", pickOrder.ID).Find(&items).Error)
	for _, item := range items {
		_, err = svc.RecordPick(item.PublicID, &RecordPickRequest{
			QuantityPicked: item.QuantityRequested,
			Status:         PickingItemStatusPicked,
		}, 1)
		require.NoError(t, err)
	}
	return pickOrder
}

func TestConfirmShippingPlanReservesStock(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)

	plan := seedConfirmedPlan(t, svc, alloc, 10)
	assert.Equal(t, ShippingPlanStatusConfirmed, plan.Status)
	assert.NotNil(t, plan.ConfirmedAt)

	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.ReservedQuantity)
	assert.Equal(t, 0, reloaded.AvailableStock())
}

func TestCreateShippingPlanRejectsOverPlanning(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 20)

	order, err := svc.CreateSalesOrder(&CreateSalesOrderRequest{
		CustomerID: 7,
		Items:      []SalesOrderItemRequest{{ProductID: 1, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.CreateShippingPlan(&CreateShippingPlanRequest{
		SalesOrderPublicID: order.PublicID,
		Items: []ShippingPlanItemRequest{{
			SalesOrderItemPublicID: order.Items[0].PublicID,
			AllocationPublicID:     alloc.PublicID,
			Quantity:               11,
		}},
	})
	assert.ErrorIs(t, err, shared.ErrOverAllocation)

	// Rejection left the order item untouched
	reloaded, err := svc.GetSalesOrder(order.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Items[0].QuantityPlanned)
}

func TestFullCoverageMovesOrderToPlanned(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)

	order, err := svc.CreateSalesOrder(&CreateSalesOrderRequest{
		CustomerID: 7,
		Items:      []SalesOrderItemRequest{{ProductID: 1, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.CreateShippingPlan(&CreateShippingPlanRequest{
		SalesOrderPublicID: order.PublicID,
		Items: []ShippingPlanItemRequest{{
			SalesOrderItemPublicID: order.Items[0].PublicID,
			AllocationPublicID:     alloc.PublicID,
			Quantity:               10,
		}},
	})
	require.NoError(t, err)

	reloaded, err := svc.GetSalesOrder(order.PublicID)
	require.NoError(t, err)
	assert.Equal(t, SalesOrderStatusPlanned, reloaded.Status)
	assert.Equal(t, SalesOrderItemStatusPlanned, reloaded.Items[0].Status)
}

func TestCancelConfirmedPlanReleasesReservations(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)

	_, err := svc.CancelShippingPlan(plan.PublicID, 1)
	require.NoError(t, err)

	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.ReservedQuantity)
	assert.Equal(t, 10, reloaded.AvailableStock())

	// Planned quantity goes back to the sales order item and the order
	// reopens for new plans
	var orderItem SalesOrderItem
	require.NoError(t, svc.db.First(&orderItem).Error)
	assert.Equal(t, 0, orderItem.QuantityPlanned)
	assert.Equal(t, SalesOrderItemStatusPending, orderItem.Status)

	var order SalesOrder
	require.NoError(t, svc.db.First(&order, orderItem.SalesOrderID).Error)
	assert.Equal(t, SalesOrderStatusPending, order.Status)
}

func TestCancelPlanAfterPickingListReleasesEverything(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)

	list, err := svc.CreatePickingList(plan.PublicID, nil, 1)
	require.NoError(t, err)

	cancelled, err := svc.CancelShippingPlan(plan.PublicID, 1)
	require.NoError(t, err)
	assert.Equal(t, ShippingPlanStatusCancelled, cancelled.Status)

	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.ReservedQuantity)
	assert.Equal(t, 10, reloaded.AvailableStock())

	// The pick work was unwound with the plan
	reloadedList, err := svc.GetPickingList(list.PublicID)
	require.NoError(t, err)
	assert.Equal(t, PickingStatusCancelled, reloadedList.Status)
	assert.Equal(t, PickingStatusCancelled, reloadedList.Orders[0].Status)

	var order SalesOrder
	require.NoError(t, svc.db.First(&order).Error)
	assert.Equal(t, SalesOrderStatusPending, order.Status)
}

func TestCancelInProgressPlanReleasesRemainingReservation(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)

	list, err := svc.CreatePickingList(plan.PublicID, nil, 1)
	require.NoError(t, err)
	_, err = svc.StartPickingOrder(list.Orders[0].PublicID, 1)
	require.NoError(t, err)

	var item PickingOrderItem
	require.NoError(t, svc.db.First(&item).Error)
	_, err = svc.RecordPick(item.PublicID, &RecordPickRequest{
		QuantityPicked: 6,
		Status:         PickingItemStatusShortage,
		Reason:         "four units missing from rack",
	}, 1)
	require.NoError(t, err)

	cancelled, err := svc.CancelShippingPlan(plan.PublicID, 1)
	require.NoError(t, err)
	assert.Equal(t, ShippingPlanStatusCancelled, cancelled.Status)

	// The shortage released four at pick time, cancellation the picked six
	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.ReservedQuantity)
	assert.Equal(t, 10, reloaded.AvailableStock())
}

func TestCancelPlanRefusedOncePackingStarts(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)
	pickOrder := pickEverything(t, svc)

	var list PickingList
	require.NoError(t, svc.db.First(&list, pickOrder.PickingListID).Error)
	_, err := svc.CreatePackingOrder(list.PublicID)
	require.NoError(t, err)

	_, err = svc.CancelShippingPlan(plan.PublicID, 1)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	// The refusal left the plan where it was
	reloaded, err := svc.GetShippingPlan(plan.PublicID)
	require.NoError(t, err)
	assert.Equal(t, ShippingPlanStatusInProgress, reloaded.Status)
}

func TestPipelineShipsReservedQuantity(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)

	pickOrder := pickEverything(t, svc)
	assert.Equal(t, PickingStatusCompleted, pickOrder.Status)

	var list PickingList
	require.NoError(t, svc.db.First(&list, pickOrder.PickingListID).Error)
	packing, err := svc.CreatePackingOrder(list.PublicID)
	require.NoError(t, err)
	assert.Equal(t, uint(7), packing.CustomerID)

	box, err := svc.AddBox(packing.PublicID, nil)
	require.NoError(t, err)

	var pickItem PickingOrderItem
	require.NoError(t, svc.db.First(&pickItem).Error)
	_, err = svc.AddBoxItem(box.PublicID, &AddBoxItemRequest{
		PickingOrderItemPublicID: pickItem.PublicID,
		Quantity:                 10,
	})
	require.NoError(t, err)

	_, err = svc.CompletePackingOrder(packing.PublicID)
	require.NoError(t, err)

	shipment, err := svc.CreateShipment(&CreateShipmentRequest{
		ShippingPlanPublicID: plan.PublicID,
		TrackingNumber:       "TRK-0001",
	})
	require.NoError(t, err)
	assert.Equal(t, ShipmentStatusPreparing, shipment.Status)
	assert.NotEmpty(t, shipment.ShipmentNumber)

	shipment, err = svc.UpdateShipmentStatus(shipment.PublicID, ShipmentStatusReadyToShip, 1)
	require.NoError(t, err)

	shipment, err = svc.MarkShipped(shipment.PublicID, 1)
	require.NoError(t, err)
	assert.Equal(t, ShipmentStatusShipped, shipment.Status)
	assert.NotNil(t, shipment.ShippedAt)

	// Shipping consumed the reservation, not the available pool
	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.ShippedQuantity)
	assert.Equal(t, 0, reloaded.ReservedQuantity)
	assert.Equal(t, stock.AllocationStatusFullySold, reloaded.Status)

	finalPlan, err := svc.GetShippingPlan(plan.PublicID)
	require.NoError(t, err)
	assert.Equal(t, ShippingPlanStatusCompleted, finalPlan.Status)
}

func TestPickShortageReleasesOnlyDelta(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)

	list, err := svc.CreatePickingList(plan.PublicID, nil, 1)
	require.NoError(t, err)
	_, err = svc.StartPickingOrder(list.Orders[0].PublicID, 1)
	require.NoError(t, err)

	var item PickingOrderItem
	require.NoError(t, svc.db.First(&item).Error)
	_, err = svc.RecordPick(item.PublicID, &RecordPickRequest{
		QuantityPicked: 6,
		Status:         PickingItemStatusShortage,
		Reason:         "four units missing from rack",
	}, 1)
	require.NoError(t, err)

	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 6, reloaded.ReservedQuantity)
	assert.Equal(t, 4, reloaded.AvailableStock())

	// Picked units left the rack
	placed, err := rackSvc.PlacedTotal(alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, placed)
}

func TestShortageRequiresReason(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)

	list, err := svc.CreatePickingList(plan.PublicID, nil, 1)
	require.NoError(t, err)
	_, err = svc.StartPickingOrder(list.Orders[0].PublicID, 1)
	require.NoError(t, err)

	var item PickingOrderItem
	require.NoError(t, svc.db.First(&item).Error)
	_, err = svc.RecordPick(item.PublicID, &RecordPickRequest{
		QuantityPicked: 6,
		Status:         PickingItemStatusShortage,
	}, 1)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestPickingListSplitsAcrossRacks(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)

	batch, err := stockSvc.ReceiveBatch(&stock.ReceiveBatchRequest{
		ProductID:        1,
		LotNumber:        "LOT-001",
		ReceivedQuantity: 20,
	})
	require.NoError(t, err)
	alloc, err := stockSvc.Allocate(&stock.AllocateRequest{
		BatchPublicID: batch.PublicID,
		Quantity:      10,
		Type:          stock.AllocationTypeRegular,
	}, 1)
	require.NoError(t, err)

	first, err := rackSvc.CreateRack(&rack.CreateRackRequest{Code: "A-01-01", Zone: "A"})
	require.NoError(t, err)
	second, err := rackSvc.CreateRack(&rack.CreateRackRequest{Code: "A-01-02", Zone: "A"})
	require.NoError(t, err)
	_, err = rackSvc.Place(&rack.PlaceRequest{
		AllocationPublicID: alloc.PublicID, RackPublicID: first.PublicID, Quantity: 6,
	}, 1)
	require.NoError(t, err)
	_, err = rackSvc.Place(&rack.PlaceRequest{
		AllocationPublicID: alloc.PublicID, RackPublicID: second.PublicID, Quantity: 4,
	}, 1)
	require.NoError(t, err)

	plan := seedConfirmedPlan(t, svc, alloc, 10)
	list, err := svc.CreatePickingList(plan.PublicID, nil, 1)
	require.NoError(t, err)

	items := list.Orders[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, first.ID, items[0].RackID)
	assert.Equal(t, 6, items[0].QuantityRequested)
	assert.Equal(t, second.ID, items[1].RackID)
	assert.Equal(t, 4, items[1].QuantityRequested)
}

func TestCancelPickingOrderReleasesPendingItems(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)

	list, err := svc.CreatePickingList(plan.PublicID, nil, 1)
	require.NoError(t, err)

	_, err = svc.CancelPickingOrder(list.Orders[0].PublicID, 1)
	require.NoError(t, err)

	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.ReservedQuantity)
	assert.Equal(t, 10, reloaded.AvailableStock())
}

func TestPackingRejectsOverPack(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	seedConfirmedPlan(t, svc, alloc, 10)
	pickOrder := pickEverything(t, svc)

	var list PickingList
	require.NoError(t, svc.db.First(&list, pickOrder.PickingListID).Error)
	packing, err := svc.CreatePackingOrder(list.PublicID)
	require.NoError(t, err)
	box, err := svc.AddBox(packing.PublicID, nil)
	require.NoError(t, err)

	var pickItem PickingOrderItem
	require.NoError(t, svc.db.First(&pickItem).Error)

	_, err = svc.AddBoxItem(box.PublicID, &AddBoxItemRequest{
		PickingOrderItemPublicID: pickItem.PublicID,
		Quantity:                 7,
	})
	require.NoError(t, err)

	_, err = svc.AddBoxItem(box.PublicID, &AddBoxItemRequest{
		PickingOrderItemPublicID: pickItem.PublicID,
		Quantity:                 4,
	})
	assert.ErrorIs(t, err, shared.ErrOverAllocation)
}

func TestCreateShipmentRequiresCompletedPacking(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)
	pickEverything(t, svc)

	_, err := svc.CreateShipment(&CreateShipmentRequest{ShippingPlanPublicID: plan.PublicID})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDeliveredShipmentFiresNotification(t *testing.T) {
	svc, stockSvc, rackSvc, notifier := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)
	pickOrder := pickEverything(t, svc)

	var list PickingList
	require.NoError(t, svc.db.First(&list, pickOrder.PickingListID).Error)
	packing, err := svc.CreatePackingOrder(list.PublicID)
	require.NoError(t, err)
	box, err := svc.AddBox(packing.PublicID, nil)
	require.NoError(t, err)
	var pickItem PickingOrderItem
	require.NoError(t, svc.db.First(&pickItem).Error)
	_, err = svc.AddBoxItem(box.PublicID, &AddBoxItemRequest{
		PickingOrderItemPublicID: pickItem.PublicID,
		Quantity:                 10,
	})
	require.NoError(t, err)
	_, err = svc.CompletePackingOrder(packing.PublicID)
	require.NoError(t, err)

	shipment, err := svc.CreateShipment(&CreateShipmentRequest{ShippingPlanPublicID: plan.PublicID})
	require.NoError(t, err)
	_, err = svc.UpdateShipmentStatus(shipment.PublicID, ShipmentStatusReadyToShip, 1)
	require.NoError(t, err)
	_, err = svc.MarkShipped(shipment.PublicID, 1)
	require.NoError(t, err)

	shipment, err = svc.UpdateShipmentStatus(shipment.PublicID, ShipmentStatusDelivered, 1)
	require.NoError(t, err)
	assert.NotNil(t, shipment.DeliveredAt)
	assert.Contains(t, notifier.events, "shipment.delivered")
}

func TestShipmentRejectsBackwardTransition(t *testing.T) {
	svc, stockSvc, rackSvc, _ := newPipeline(t)
	alloc := seedPlacedAllocation(t, stockSvc, rackSvc, 10)
	plan := seedConfirmedPlan(t, svc, alloc, 10)
	pickOrder := pickEverything(t, svc)

	var list PickingList
	require.NoError(t, svc.db.First(&list, pickOrder.PickingListID).Error)
	packing, err := svc.CreatePackingOrder(list.PublicID)
	require.NoError(t, err)
	box, err := svc.AddBox(packing.PublicID, nil)
	require.NoError(t, err)
	var pickItem PickingOrderItem
	require.NoError(t, svc.db.First(&pickItem).Error)
	_, err = svc.AddBoxItem(box.PublicID, &AddBoxItemRequest{
		PickingOrderItemPublicID: pickItem.PublicID,
		Quantity:                 10,
	})
	require.NoError(t, err)
	_, err = svc.CompletePackingOrder(packing.PublicID)
	require.NoError(t, err)

	shipment, err := svc.CreateShipment(&CreateShipmentRequest{ShippingPlanPublicID: plan.PublicID})
	require.NoError(t, err)

	// preparing cannot jump straight to shipped
	_, err = svc.MarkShipped(shipment.PublicID, 1)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}
