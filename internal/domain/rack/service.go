// internal/domain/rack/service.go
package rack

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"github.com/your-org/warehouse-backend/internal/domain/stock"
	"gorm.io/gorm"
)

// Service handles rack placement business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new rack service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// CreateRackRequest represents rack creation data
type CreateRackRequest struct {
	Code           string `json:"code" binding:"required"`
	Zone           string `json:"zone,omitempty"`
	Aisle          string `json:"aisle,omitempty"`
	Level          int    `json:"level,omitempty"`
	LocationTypeID *uint  `json:"location_type_id,omitempty"`
}

// PlaceRequest represents placement of allocation quantity into a rack
type PlaceRequest struct {
	AllocationPublicID string `json:"allocation_id" binding:"required"`
	RackPublicID       string `json:"rack_id" binding:"required"`
	Quantity           int    `json:"quantity" binding:"required,gt=0"`
}

// RelocateRequest represents an atomic move between racks
type RelocateRequest struct {
	AllocationPublicID string `json:"allocation_id" binding:"required"`
	FromRackPublicID   string `json:"from_rack_id" binding:"required"`
	ToRackPublicID     string `json:"to_rack_id" binding:"required"`
	Quantity           int    `json:"quantity" binding:"required,gt=0"`
}

// CreateRack creates a new rack slot
func (s *Service) CreateRack(req *CreateRackRequest) (*Rack, error) {
	var existing Rack
	if err := s.db.Where("code = ?", req.Code).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("rack with code '%s' already exists", req.Code)
	}

	rack := &Rack{
		PublicID:       uuid.NewString(),
		Code:           req.Code,
		Zone:           req.Zone,
		Aisle:          req.Aisle,
		Level:          req.Level,
		LocationTypeID: req.LocationTypeID,
		IsActive:       true,
	}

	if err := s.db.Create(rack).Error; err != nil {
		return nil, fmt.Errorf("failed to create rack: %w", err)
	}

	return rack, nil
}

// Place puts allocation quantity into a rack. The unshipped remainder of
// the allocation is the hard ceiling across all of its placements.
func (s *Service) Place(req *PlaceRequest, actorID uint) (*RackAllocation, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var alloc stock.Allocation
	if err := tx.Where("public_id = ?", req.AllocationPublicID).First(&alloc).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve allocation: %w", err)
	}

	var rk Rack
	if err := tx.Where("public_id = ? AND is_active = ?", req.RackPublicID, true).First(&rk).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve rack: %w", err)
	}

	placed, err := s.placedTotalTx(tx, alloc.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ceiling := alloc.AllocatedQuantity - alloc.ShippedQuantity
	if placed+req.Quantity > ceiling {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %d already placed, ceiling %d, requested %d",
			shared.ErrCapacityExceeded, placed, ceiling, req.Quantity)
	}

	// Serialize against concurrent placements and quantity mutations of
	// the same allocation, so the ceiling check above cannot be based on
	// a row another writer is changing underneath us.
	if err := s.guardAllocationVersionTx(tx, &alloc); err != nil {
		tx.Rollback()
		return nil, err
	}

	placement, err := s.addToRackTx(tx, rk.ID, alloc.ID, req.Quantity, actorID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit placement: %w", err)
	}
	return placement, nil
}

// Relocate atomically moves quantity between racks without changing the
// allocation's total placed quantity.
func (s *Service) Relocate(req *RelocateRequest, actorID uint) error {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var alloc stock.Allocation
	if err := tx.Where("public_id = ?", req.AllocationPublicID).First(&alloc).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return shared.ErrNotFound
		}
		return fmt.Errorf("failed to retrieve allocation: %w", err)
	}

	var fromRack, toRack Rack
	if err := tx.Where("public_id = ?", req.FromRackPublicID).First(&fromRack).Error; err != nil {
		tx.Rollback()
		return shared.ErrNotFound
	}
	if err := tx.Where("public_id = ? AND is_active = ?", req.ToRackPublicID, true).First(&toRack).Error; err != nil {
		tx.Rollback()
		return shared.ErrNotFound
	}

	if err := s.removeFromRackTx(tx, fromRack.ID, alloc.ID, req.Quantity); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := s.addToRackTx(tx, toRack.ID, alloc.ID, req.Quantity, actorID); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit relocation: %w", err)
	}
	return nil
}

// PlacementsFor returns the allocation's placements ordered by the picking
// policy: FIFO exhausts the oldest-placed rack first, FEFO the rack whose
// batch expires first (falling back to placement date).
func (s *Service) PlacementsFor(allocationPublicID string) ([]RackAllocation, error) {
	var alloc stock.Allocation
	if err := s.db.Where("public_id = ?", allocationPublicID).First(&alloc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve allocation: %w", err)
	}
	return s.PlacementsForID(s.db, alloc.ID)
}

// PlacementsForID is the transaction-scoped variant used by picking list
// generation.
func (s *Service) PlacementsForID(tx *gorm.DB, allocationID uint) ([]RackAllocation, error) {
	query := tx.Preload("Rack").
		Where("rack_allocations.allocation_id = ? AND rack_allocations.quantity > 0", allocationID)

	switch s.config.Warehouse.PickingPolicy {
	case config.PickingPolicyFEFO:
		query = query.
			Joins("JOIN allocations ON allocations.id = rack_allocations.allocation_id").
			Joins("JOIN batches ON batches.id = allocations.batch_id").
			Order("batches.expiry_date ASC, rack_allocations.placed_at ASC, rack_allocations.id ASC")
	default:
		query = query.Order("rack_allocations.placed_at ASC, rack_allocations.id ASC")
	}

	var placements []RackAllocation
	if err := query.Find(&placements).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve placements: %w", err)
	}
	return placements, nil
}

// ConsumeInTx removes picked quantity from a rack inside the picking
// transaction.
func (s *Service) ConsumeInTx(tx *gorm.DB, rackID, allocationID uint, quantity int) error {
	return s.removeFromRackTx(tx, rackID, allocationID, quantity)
}

// PlacedTotal returns the total quantity of an allocation currently placed
func (s *Service) PlacedTotal(allocationID uint) (int, error) {
	return s.placedTotalTx(s.db, allocationID)
}

// Private helpers

// guardAllocationVersionTx bumps the allocation's version conditionally
// on the version we read. RowsAffected == 0 means another writer got
// there first; the caller aborts with Conflict and the client retries.
func (s *Service) guardAllocationVersionTx(tx *gorm.DB, alloc *stock.Allocation) error {
	res := tx.Model(&stock.Allocation{}).
		Where("id = ? AND version = ?", alloc.ID, alloc.Version).
		Update("version", alloc.Version+1)
	if res.Error != nil {
		return fmt.Errorf("failed to guard allocation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: allocation %s was modified concurrently", shared.ErrConflict, alloc.PublicID)
	}
	alloc.Version++
	return nil
}

func (s *Service) placedTotalTx(tx *gorm.DB, allocationID uint) (int, error) {
	var total int64
	err := tx.Model(&RackAllocation{}).
		Where("allocation_id = ?", allocationID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum placements: %w", err)
	}
	return int(total), nil
}

func (s *Service) addToRackTx(tx *gorm.DB, rackID, allocationID uint, quantity int, actorID uint) (*RackAllocation, error) {
	var placement RackAllocation
	err := tx.Where("rack_id = ? AND allocation_id = ?", rackID, allocationID).First(&placement).Error
	switch err {
	case nil:
		// Relative update; a stale in-memory copy cannot clobber a
		// concurrent writer's contribution.
		res := tx.Model(&RackAllocation{}).Where("id = ?", placement.ID).
			Update("quantity", gorm.Expr("quantity + ?", quantity))
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update placement: %w", res.Error)
		}
		placement.Quantity += quantity
	case gorm.ErrRecordNotFound:
		placement = RackAllocation{
			RackID:       rackID,
			AllocationID: allocationID,
			Quantity:     quantity,
			PlacedBy:     actorID,
			PlacedAt:     time.Now().UTC(),
		}
		if err := tx.Create(&placement).Error; err != nil {
			return nil, fmt.Errorf("failed to create placement: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to look up placement: %w", err)
	}
	return &placement, nil
}

func (s *Service) removeFromRackTx(tx *gorm.DB, rackID, allocationID uint, quantity int) error {
	var placement RackAllocation
	if err := tx.Where("rack_id = ? AND allocation_id = ?", rackID, allocationID).First(&placement).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return shared.ErrNotFound
		}
		return fmt.Errorf("failed to look up placement: %w", err)
	}

	// The overdraw check lives in the WHERE clause so the decrement and
	// the check are one statement.
	res := tx.Model(&RackAllocation{}).
		Where("id = ? AND quantity >= ?", placement.ID, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return fmt.Errorf("failed to update placement: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: rack holds %d of this allocation, requested %d",
			shared.ErrInsufficientStock, placement.Quantity, quantity)
	}
	return nil
}
