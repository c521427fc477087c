// internal/domain/stock/service.go
package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/warehouse-backend/internal/config"
	"github.com/your-org/warehouse-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// Service handles batch and allocation business logic
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new stock service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// ReceiveBatchRequest represents batch receiving data
type ReceiveBatchRequest struct {
	ProductID        uint       `json:"product_id" binding:"required"`
	LotNumber        string     `json:"lot_number" binding:"required"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	ReceivedQuantity int        `json:"received_quantity" binding:"required,gt=0"`
	LengthCm         int        `json:"length_cm,omitempty"`
	WidthCm          int        `json:"width_cm,omitempty"`
	HeightCm         int        `json:"height_cm,omitempty"`
	WeightGrams      int        `json:"weight_grams,omitempty"`
}

// AllocateRequest represents stock allocation data
type AllocateRequest struct {
	BatchPublicID    string         `json:"batch_id" binding:"required"`
	Quantity         int            `json:"quantity" binding:"required,gt=0"`
	Type             AllocationType `json:"type" binding:"required"`
	CustomerID       *uint          `json:"customer_id,omitempty"`
	TenderContractID *uint          `json:"tender_contract_id,omitempty"`
}

// QuantityRequest represents a quantity change against an allocation
type QuantityRequest struct {
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Notes    string `json:"notes,omitempty"`
}

// SubAllocateRequest represents a tender sub-allocation to a customer
type SubAllocateRequest struct {
	Quantity   int  `json:"quantity" binding:"required,gt=0"`
	CustomerID uint `json:"customer_id" binding:"required"`
}

// BATCH LEDGER

// ReceiveBatch records a physically received lot. ReceivedQuantity is
// immutable afterwards.
func (s *Service) ReceiveBatch(req *ReceiveBatchRequest) (*Batch, error) {
	batch := &Batch{
		PublicID:         uuid.NewString(),
		ProductID:        req.ProductID,
		LotNumber:        req.LotNumber,
		ExpiryDate:       req.ExpiryDate,
		ReceivedQuantity: req.ReceivedQuantity,
		LengthCm:         req.LengthCm,
		WidthCm:          req.WidthCm,
		HeightCm:         req.HeightCm,
		WeightGrams:      req.WeightGrams,
		ReceivedAt:       time.Now().UTC(),
	}

	if err := s.db.Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	return batch, nil
}

// GetBatch retrieves a batch by its public identifier
func (s *Service) GetBatch(publicID string) (*Batch, error) {
	var batch Batch
	if err := s.db.Where("public_id = ?", publicID).First(&batch).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve batch: %w", err)
	}
	return &batch, nil
}

// BatchAggregates folds the batch's allocations into its derived quantities.
// Cancelled allocations are excluded. Tender sub-allocations restate part of
// their contract pool, so they are excluded from the allocated sum — but
// they are the rows that actually reserve and ship, so their shipped and
// reserved quantities do count.
func (s *Service) BatchAggregates(batchID uint) (*BatchAggregates, error) {
	return s.batchAggregatesTx(s.db, batchID)
}

func (s *Service) batchAggregatesTx(tx *gorm.DB, batchID uint) (*BatchAggregates, error) {
	var totalAllocated int
	err := tx.Model(&Allocation{}).
		Select("COALESCE(SUM(allocated_quantity), 0)").
		Where("batch_id = ? AND parent_allocation_id IS NULL AND status <> ?", batchID, AllocationStatusCancelled).
		Scan(&totalAllocated).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate batch allocations: %w", err)
	}

	var agg struct {
		TotalShipped  int
		TotalReserved int
	}
	err = tx.Model(&Allocation{}).
		Select("COALESCE(SUM(shipped_quantity), 0) AS total_shipped, "+
			"COALESCE(SUM(reserved_quantity), 0) AS total_reserved").
		Where("batch_id = ? AND status <> ?", batchID, AllocationStatusCancelled).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate batch movements: %w", err)
	}

	var batch Batch
	if err := tx.Select("received_quantity").First(&batch, batchID).Error; err != nil {
		return nil, shared.ErrNotFound
	}

	return &BatchAggregates{
		TotalAllocated: totalAllocated,
		TotalShipped:   agg.TotalShipped,
		TotalReserved:  agg.TotalReserved,
		AvailableStock: batch.ReceivedQuantity - totalAllocated,
	}, nil
}

// ALLOCATION ENGINE

// Allocate assigns batch quantity to a customer or tender contract
func (s *Service) Allocate(req *AllocateRequest, actorID uint) (*Allocation, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var batch Batch
	if err := tx.Where("public_id = ?", req.BatchPublicID).First(&batch).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve batch: %w", err)
	}

	agg, err := s.batchAggregatesTx(tx, batch.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if req.Quantity > agg.AvailableStock {
		tx.Rollback()
		return nil, fmt.Errorf("%w: batch has %d available, requested %d",
			shared.ErrInsufficientStock, agg.AvailableStock, req.Quantity)
	}

	if req.Type == AllocationTypeTender && req.TenderContractID == nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: tender allocation requires a contract", shared.ErrInvalidInput)
	}

	alloc := &Allocation{
		PublicID:          uuid.NewString(),
		BatchID:           batch.ID,
		Type:              req.Type,
		Status:            AllocationStatusActive,
		CustomerID:        req.CustomerID,
		TenderContractID:  req.TenderContractID,
		AllocatedQuantity: req.Quantity,
	}
	if req.Type == AllocationTypeTender {
		alloc.OriginalReservedQuantity = req.Quantity
	}

	if err := tx.Create(alloc).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to create allocation: %w", err)
	}

	if err := s.appendMovement(tx, alloc, MovementTypeAllocate, MovementDirectionIn,
		req.Quantity, "", 0, "", actorID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit allocation: %w", err)
	}
	return alloc, nil
}

// GetAllocation retrieves an allocation by its public identifier
func (s *Service) GetAllocation(publicID string) (*Allocation, error) {
	var alloc Allocation
	if err := s.db.Preload("Batch").Where("public_id = ?", publicID).First(&alloc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve allocation: %w", err)
	}
	return &alloc, nil
}

// Reserve earmarks allocation quantity for an in-progress picking/shipping
// operation.
func (s *Service) Reserve(publicID string, req *QuantityRequest, actorID uint) (*Allocation, error) {
	return s.mutate(publicID, actorID, func(tx *gorm.DB, alloc *Allocation) error {
		return s.ReserveInTx(tx, alloc, req.Quantity, "manual", 0, actorID)
	})
}

// ReleaseReservation returns earmarked quantity to available stock
func (s *Service) ReleaseReservation(publicID string, req *QuantityRequest, actorID uint) (*Allocation, error) {
	return s.mutate(publicID, actorID, func(tx *gorm.DB, alloc *Allocation) error {
		return s.ReleaseInTx(tx, alloc, req.Quantity, "manual", 0, actorID)
	})
}

// Ship moves quantity from reserved to shipped
func (s *Service) Ship(publicID string, req *QuantityRequest, actorID uint) (*Allocation, error) {
	return s.mutate(publicID, actorID, func(tx *gorm.DB, alloc *Allocation) error {
		return s.ShipInTx(tx, alloc, req.Quantity, "manual", 0, actorID)
	})
}

// CancelAllocation terminates an allocation that has no shipped or reserved
// quantity; its allocated quantity returns to the batch pool.
func (s *Service) CancelAllocation(publicID string, actorID uint) (*Allocation, error) {
	return s.mutate(publicID, actorID, func(tx *gorm.DB, alloc *Allocation) error {
		if alloc.ShippedQuantity > 0 || alloc.ReservedQuantity > 0 {
			return fmt.Errorf("%w: allocation has shipped or reserved quantity", shared.ErrInvalidTransition)
		}
		if err := s.commitQuantities(tx, alloc, map[string]interface{}{
			"status": AllocationStatusCancelled,
		}); err != nil {
			return err
		}
		alloc.Status = AllocationStatusCancelled
		return s.appendMovement(tx, alloc, MovementTypeCancel, MovementDirectionOut,
			alloc.AllocatedQuantity, "cancellation", 0, "allocation cancelled", actorID)
	})
}

// SubAllocateTender assigns part of a tender contract pool to a customer
func (s *Service) SubAllocateTender(contractPublicID string, req *SubAllocateRequest, actorID uint) (*Allocation, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var contract Allocation
	if err := tx.Where("public_id = ?", contractPublicID).First(&contract).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve contract reservation: %w", err)
	}

	if !contract.IsContractReservation() {
		tx.Rollback()
		return nil, fmt.Errorf("%w: sub-allocation is only valid on a tender contract reservation", shared.ErrInvalidTransition)
	}
	if contract.IsTerminal() {
		tx.Rollback()
		return nil, fmt.Errorf("%w: allocation is %s", shared.ErrInvalidTransition, contract.Status)
	}
	if req.Quantity > contract.RemainingForAllocation() {
		tx.Rollback()
		return nil, fmt.Errorf("%w: contract pool has %d remaining, requested %d",
			shared.ErrInsufficientStock, contract.RemainingForAllocation(), req.Quantity)
	}

	if err := s.commitQuantities(tx, &contract, map[string]interface{}{
		"customer_allocated_quantity": contract.CustomerAllocatedQuantity + req.Quantity,
	}); err != nil {
		tx.Rollback()
		return nil, err
	}
	contract.CustomerAllocatedQuantity += req.Quantity

	// Reuse an existing per-customer allocation under this contract, or
	// create one.
	var child Allocation
	err := tx.Where("parent_allocation_id = ? AND customer_id = ?", contract.ID, req.CustomerID).
		First(&child).Error
	switch err {
	case nil:
		if child.IsTerminal() {
			tx.Rollback()
			return nil, fmt.Errorf("%w: customer allocation is %s", shared.ErrInvalidTransition, child.Status)
		}
		if err := s.commitQuantities(tx, &child, map[string]interface{}{
			"allocated_quantity": child.AllocatedQuantity + req.Quantity,
		}); err != nil {
			tx.Rollback()
			return nil, err
		}
		child.AllocatedQuantity += req.Quantity
	case gorm.ErrRecordNotFound:
		parentID := contract.ID
		customerID := req.CustomerID
		child = Allocation{
			PublicID:           uuid.NewString(),
			BatchID:            contract.BatchID,
			Type:               AllocationTypeTender,
			Status:             AllocationStatusActive,
			CustomerID:         &customerID,
			TenderContractID:   contract.TenderContractID,
			ParentAllocationID: &parentID,
			AllocatedQuantity:  req.Quantity,
		}
		if err := tx.Create(&child).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create customer allocation: %w", err)
		}
	default:
		tx.Rollback()
		return nil, fmt.Errorf("failed to look up customer allocation: %w", err)
	}

	if err := s.appendMovement(tx, &contract, MovementTypeSubAllocate, MovementDirectionOut,
		req.Quantity, "allocation", child.ID, "", actorID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := s.appendMovement(tx, &child, MovementTypeSubAllocate, MovementDirectionIn,
		req.Quantity, "allocation", contract.ID, "", actorID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit sub-allocation: %w", err)
	}
	return &child, nil
}

// Transaction-scoped engine operations. The fulfillment pipeline and the
// consignment sub-ledger call these inside their own transactions so the
// triggering state change and the quantity mutation commit or roll back
// together.

// ReserveInTx increments reserved quantity inside an existing transaction
func (s *Service) ReserveInTx(tx *gorm.DB, alloc *Allocation, quantity int, refType string, refID uint, actorID uint) error {
	if alloc.IsTerminal() {
		return fmt.Errorf("%w: allocation is %s", shared.ErrInvalidTransition, alloc.Status)
	}
	if quantity > alloc.AvailableStock() {
		return fmt.Errorf("%w: allocation has %d available, requested %d",
			shared.ErrInsufficientStock, alloc.AvailableStock(), quantity)
	}

	if err := s.commitQuantities(tx, alloc, map[string]interface{}{
		"reserved_quantity": alloc.ReservedQuantity + quantity,
	}); err != nil {
		return err
	}
	alloc.ReservedQuantity += quantity

	return s.appendMovement(tx, alloc, MovementTypeReserve, MovementDirectionOut,
		quantity, refType, refID, "", actorID)
}

// ReleaseInTx decrements reserved quantity inside an existing transaction,
// never below zero.
func (s *Service) ReleaseInTx(tx *gorm.DB, alloc *Allocation, quantity int, refType string, refID uint, actorID uint) error {
	if alloc.IsTerminal() {
		return fmt.Errorf("%w: allocation is %s", shared.ErrInvalidTransition, alloc.Status)
	}
	if quantity > alloc.ReservedQuantity {
		quantity = alloc.ReservedQuantity
	}
	if quantity == 0 {
		return nil
	}

	if err := s.commitQuantities(tx, alloc, map[string]interface{}{
		"reserved_quantity": alloc.ReservedQuantity - quantity,
	}); err != nil {
		return err
	}
	alloc.ReservedQuantity -= quantity

	return s.appendMovement(tx, alloc, MovementTypeRelease, MovementDirectionIn,
		quantity, refType, refID, "", actorID)
}

// ShipInTx moves quantity from reserved to shipped inside an existing
// transaction. Marks the allocation fully sold when everything allocated
// has shipped.
func (s *Service) ShipInTx(tx *gorm.DB, alloc *Allocation, quantity int, refType string, refID uint, actorID uint) error {
	if alloc.IsTerminal() {
		return fmt.Errorf("%w: allocation is %s", shared.ErrInvalidTransition, alloc.Status)
	}
	if quantity > alloc.ReservedQuantity {
		return fmt.Errorf("%w: only %d reserved, cannot ship %d",
			shared.ErrInvalidTransition, alloc.ReservedQuantity, quantity)
	}

	updates := map[string]interface{}{
		"reserved_quantity": alloc.ReservedQuantity - quantity,
		"shipped_quantity":  alloc.ShippedQuantity + quantity,
	}
	newShipped := alloc.ShippedQuantity + quantity
	newReserved := alloc.ReservedQuantity - quantity
	if newShipped == alloc.AllocatedQuantity && newReserved == 0 {
		updates["status"] = AllocationStatusFullySold
	}

	if err := s.commitQuantities(tx, alloc, updates); err != nil {
		return err
	}
	alloc.ReservedQuantity = newReserved
	alloc.ShippedQuantity = newShipped
	if st, ok := updates["status"]; ok {
		alloc.Status = st.(AllocationStatus)
	}

	return s.appendMovement(tx, alloc, MovementTypeShip, MovementDirectionOut,
		quantity, refType, refID, "", actorID)
}

// RestockInTx credits returned goods back to the allocation: shipped
// quantity drops, so available stock rises by the same amount.
func (s *Service) RestockInTx(tx *gorm.DB, alloc *Allocation, quantity int, refType string, refID uint, actorID uint) error {
	if quantity > alloc.ShippedQuantity {
		return fmt.Errorf("%w: only %d shipped, cannot restock %d",
			shared.ErrInvalidTransition, alloc.ShippedQuantity, quantity)
	}

	updates := map[string]interface{}{
		"shipped_quantity": alloc.ShippedQuantity - quantity,
	}
	// A fully sold allocation reopens when goods come back
	if alloc.Status == AllocationStatusFullySold {
		updates["status"] = AllocationStatusActive
	}

	if err := s.commitQuantities(tx, alloc, updates); err != nil {
		return err
	}
	alloc.ShippedQuantity -= quantity
	if st, ok := updates["status"]; ok {
		alloc.Status = st.(AllocationStatus)
	}

	return s.appendMovement(tx, alloc, MovementTypeRestock, MovementDirectionIn,
		quantity, refType, refID, "", actorID)
}

// LoadAllocationInTx fetches a fresh allocation row inside a transaction
func (s *Service) LoadAllocationInTx(tx *gorm.DB, allocationID uint) (*Allocation, error) {
	var alloc Allocation
	if err := tx.First(&alloc, allocationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve allocation: %w", err)
	}
	return &alloc, nil
}

// Private helpers

// mutate wraps a single-allocation quantity mutation in a transaction
func (s *Service) mutate(publicID string, actorID uint, fn func(tx *gorm.DB, alloc *Allocation) error) (*Allocation, error) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var alloc Allocation
	if err := tx.Where("public_id = ?", publicID).First(&alloc).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve allocation: %w", err)
	}

	if err := fn(tx, &alloc); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit allocation mutation: %w", err)
	}
	return &alloc, nil
}

// commitQuantities applies quantity updates with an optimistic version
// check. A concurrent mutation of the same allocation makes the second
// writer fail with Conflict; the caller retries.
func (s *Service) commitQuantities(tx *gorm.DB, alloc *Allocation, updates map[string]interface{}) error {
	updates["version"] = alloc.Version + 1

	result := tx.Model(&Allocation{}).
		Where("id = ? AND version = ?", alloc.ID, alloc.Version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update allocation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConflict
	}

	alloc.Version++
	return nil
}

// appendMovement writes the journal entry matching a quantity mutation.
// It shares the caller's transaction: both commit or neither does.
func (s *Service) appendMovement(tx *gorm.DB, alloc *Allocation, mType MovementType, direction MovementDirection, quantity int, refType string, refID uint, notes string, actorID uint) error {
	movement := &StockMovement{
		AllocationID:  alloc.ID,
		BatchID:       alloc.BatchID,
		Type:          mType,
		Direction:     direction,
		Quantity:      quantity,
		ReferenceType: refType,
		ReferenceID:   refID,
		Notes:         notes,
		CreatedBy:     actorID,
	}
	if err := tx.Create(movement).Error; err != nil {
		return fmt.Errorf("failed to append stock movement: %w", err)
	}
	return nil
}
