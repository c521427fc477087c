// internal/domain/rack/service_test.go
package rack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestServices(t *testing.T, policy config.PickingPolicy) (*Service, *stock.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&stock.Batch{}, &stock.Allocation{}, &stock.StockMovement{},
		&Rack{}, &RackAllocation{},
	))

	cfg := &config.Config{
		Warehouse: config.WarehouseConfig{PickingPolicy: policy},
	}
	return NewService(db, cfg), stock.NewService(db, cfg)
}

func seedAllocation(t *testing.T, stockSvc *stock.Service, quantity int) *stock.Allocation {
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
	return alloc
}

func createRack(t *testing.T, svc *Service, code string) *Rack {
	t.Helper()
	rk, err := svc.CreateRack(&CreateRackRequest{Code: code, Zone: "A"})
	require.NoError(t, err)
	return rk
}

func TestPlaceEnforcesCeiling(t *testing.T) {
	rackSvc, stockSvc := newTestServices(t, config.PickingPolicyFIFO)
	alloc := seedAllocation(t, stockSvc, 30)
	rk := createRack(t, rackSvc, "A-01-01")

	_, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk.PublicID,
		Quantity:           20,
	}, 1)
	require.NoError(t, err)

	// Total placement across racks never exceeds the unshipped remainder
	rk2 := createRack(t, rackSvc, "A-01-02")
	_, err = rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk2.PublicID,
		Quantity:           11,
	}, 1)
	assert.ErrorIs(t, err, shared.ErrCapacityExceeded)

	_, err = rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk2.PublicID,
		Quantity:           10,
	}, 1)
	require.NoError(t, err)

	total, err := rackSvc.PlacedTotal(alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, total)
}

func TestPlaceSerializesOnAllocationVersion(t *testing.T) {
	rackSvc, stockSvc := newTestServices(t, config.PickingPolicyFIFO)
	alloc := seedAllocation(t, stockSvc, 30)
	rk := createRack(t, rackSvc, "A-01-01")

	// Stale copy read before another placement bumps the version
	stale := *alloc

	_, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk.PublicID,
		Quantity:           10,
	}, 1)
	require.NoError(t, err)

	tx := rackSvc.db.Begin()
	err = rackSvc.guardAllocationVersionTx(tx, &stale)
	tx.Rollback()
	assert.ErrorIs(t, err, shared.ErrConflict)

	// A fresh read carries the new version and gets through
	reloaded, err := stockSvc.GetAllocation(alloc.PublicID)
	require.NoError(t, err)
	assert.Greater(t, reloaded.Version, alloc.Version)

	tx = rackSvc.db.Begin()
	require.NoError(t, rackSvc.guardAllocationVersionTx(tx, reloaded))
	require.NoError(t, tx.Commit().Error)
}

func TestPlaceIncrementsExistingPlacement(t *testing.T) {
	rackSvc, stockSvc := newTestServices(t, config.PickingPolicyFIFO)
	alloc := seedAllocation(t, stockSvc, 30)
	rk := createRack(t, rackSvc, "A-01-01")

	_, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk.PublicID,
		Quantity:           10,
	}, 1)
	require.NoError(t, err)

	placement, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk.PublicID,
		Quantity:           5,
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 15, placement.Quantity)

	placements, err := rackSvc.PlacementsFor(alloc.PublicID)
	require.NoError(t, err)
	assert.Len(t, placements, 1)
}

func TestRelocateMovesBetweenRacks(t *testing.T) {
	rackSvc, stockSvc := newTestServices(t, config.PickingPolicyFIFO)
	alloc := seedAllocation(t, stockSvc, 30)
	from := createRack(t, rackSvc, "A-01-01")
	to := createRack(t, rackSvc, "B-02-03")

	_, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       from.PublicID,
		Quantity:           20,
	}, 1)
	require.NoError(t, err)

	require.NoError(t, rackSvc.Relocate(&RelocateRequest{
		AllocationPublicID: alloc.PublicID,
		FromRackPublicID:   from.PublicID,
		ToRackPublicID:     to.PublicID,
		Quantity:           12,
	}, 1))

	placements, err := rackSvc.PlacementsFor(alloc.PublicID)
	require.NoError(t, err)
	require.Len(t, placements, 2)

	byRack := map[uint]int{}
	for _, p := range placements {
		byRack[p.RackID] = p.Quantity
	}
	assert.Equal(t, 8, byRack[from.ID])
	assert.Equal(t, 12, byRack[to.ID])

	// The total never changes during a relocation
	total, err := rackSvc.PlacedTotal(alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, total)
}

func TestRelocateRejectsOverdraw(t *testing.T) {
	rackSvc, stockSvc := newTestServices(t, config.PickingPolicyFIFO)
	alloc := seedAllocation(t, stockSvc, 30)
	from := createRack(t, rackSvc, "A-01-01")
	to := createRack(t, rackSvc, "B-02-03")

	_, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       from.PublicID,
		Quantity:           5,
	}, 1)
	require.NoError(t, err)

	err = rackSvc.Relocate(&RelocateRequest{
		AllocationPublicID: alloc.PublicID,
		FromRackPublicID:   from.PublicID,
		ToRackPublicID:     to.PublicID,
		Quantity:           6,
	}, 1)
	assert.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestPlacementsOrderedByPlacementDate(t *testing.T) {
	rackSvc, stockSvc := newTestServices(t, config.PickingPolicyFIFO)
	alloc := seedAllocation(t, stockSvc, 30)
	first := createRack(t, rackSvc, "A-01-01")
	second := createRack(t, rackSvc, "A-01-02")

	_, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       first.PublicID,
		Quantity:           10,
	}, 1)
	require.NoError(t, err)
	_, err = rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       second.PublicID,
		Quantity:           10,
	}, 1)
	require.NoError(t, err)

	placements, err := rackSvc.PlacementsFor(alloc.PublicID)
	require.NoError(t, err)
	require.Len(t, placements, 2)
	assert.Equal(t, first.ID, placements[0].RackID)
	assert.Equal(t, second.ID, placements[1].RackID)
}

func TestConsumeRemovesPickedQuantity(t *testing.T) {
	rackSvc, stockSvc := newTestServices(t, config.PickingPolicyFIFO)
	alloc := seedAllocation(t, stockSvc, 30)
	rk := createRack(t, rackSvc, "A-01-01")

	_, err := rackSvc.Place(&PlaceRequest{
		AllocationPublicID: alloc.PublicID,
		RackPublicID:       rk.PublicID,
		Quantity:           10,
	}, 1)
	require.NoError(t, err)

	tx := rackSvc.db.Begin()
	require.NoError(t, rackSvc.ConsumeInTx(tx, rk.ID, alloc.ID, 7))
	require.NoError(t, tx.Commit().Error)

	total, err := rackSvc.PlacedTotal(alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestDuplicateRackCodeRejected(t *testing.T) {
	rackSvc, _ := newTestServices(t, config.PickingPolicyFIFO)
	createRack(t, rackSvc, "A-01-01")

	_, err := rackSvc.CreateRack(&CreateRackRequest{Code: "A-01-01"})
	assert.Error(t, err)
}
