// internal/domain/stock/entity.go
package stock

import (
	"time"

	"gorm.io/gorm"
)

// AllocationType represents the allocation regime
type AllocationType string

const (
	AllocationTypeRegular     AllocationType = "regular"
	AllocationTypeTender      AllocationType = "tender"
	AllocationTypeConsignment AllocationType = "consignment"
)

// AllocationStatus represents the allocation lifecycle state
type AllocationStatus string

const (
	AllocationStatusActive    AllocationStatus = "active"
	AllocationStatusFullySold AllocationStatus = "fully_sold"
	AllocationStatusCancelled AllocationStatus = "cancelled"
)

// MovementType represents the type of stock movement
type MovementType string

const (
	MovementTypeAllocate    MovementType = "allocate"     // Stock assigned to a customer/contract
	MovementTypeReserve     MovementType = "reserve"      // Earmarked for picking/shipping
	MovementTypeRelease     MovementType = "release"      // Reservation cancelled or shortage
	MovementTypeShip        MovementType = "ship"         // Reserved quantity shipped
	MovementTypeRestock     MovementType = "restock"      // Returned goods re-enter the pool
	MovementTypeSubAllocate MovementType = "sub_allocate" // Tender pool assigned to a customer
	MovementTypeCancel      MovementType = "cancel"       // Allocation terminated, quantity back to batch
)

// MovementDirection represents whether stock enters or leaves the pool
type MovementDirection string

const (
	MovementDirectionIn  MovementDirection = "in"
	MovementDirectionOut MovementDirection = "out"
)

// Batch represents a physically received lot of one product.
// ReceivedQuantity is fixed at creation; consumption is tracked through
// child Allocations, never by mutating the batch.
type Batch struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	PublicID         string         `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	ProductID        uint           `gorm:"not null;index" json:"product_id"`
	LotNumber        string         `gorm:"not null;size:100;index" json:"lot_number"`
	ExpiryDate       *time.Time     `gorm:"index" json:"expiry_date,omitempty"`
	ReceivedQuantity int            `gorm:"not null" json:"received_quantity"`
	LengthCm         int            `gorm:"default:0" json:"length_cm"`
	WidthCm          int            `gorm:"default:0" json:"width_cm"`
	HeightCm         int            `gorm:"default:0" json:"height_cm"`
	WeightGrams      int            `gorm:"default:0" json:"weight_grams"`
	ReceivedAt       time.Time      `json:"received_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Allocations []Allocation `gorm:"foreignKey:BatchID" json:"allocations,omitempty"`
}

// BatchAggregates holds the derived quantity sums over a batch's allocations
type BatchAggregates struct {
	TotalAllocated int `json:"total_allocated"`
	TotalShipped   int `json:"total_shipped"`
	TotalReserved  int `json:"total_reserved"`
	AvailableStock int `json:"available_stock"`
}

// Allocation represents the unit of stock ownership assignment.
// The three quantity fields only change inside a transaction that also
// appends a matching StockMovement row.
type Allocation struct {
	ID       uint             `gorm:"primaryKey" json:"id"`
	PublicID string           `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	BatchID  uint             `gorm:"not null;index" json:"batch_id"`
	Type     AllocationType   `gorm:"not null;default:'regular'" json:"type"`
	Status   AllocationStatus `gorm:"not null;default:'active'" json:"status"`

	CustomerID       *uint `gorm:"index" json:"customer_id,omitempty"`
	TenderContractID *uint `gorm:"index" json:"tender_contract_id,omitempty"`
	// Set on per-customer tender allocations; points at the contract-level
	// reservation so batch folds do not double-count the pool.
	ParentAllocationID *uint `gorm:"index" json:"parent_allocation_id,omitempty"`

	AllocatedQuantity int `gorm:"not null" json:"allocated_quantity"`
	ShippedQuantity   int `gorm:"not null;default:0" json:"shipped_quantity"`
	ReservedQuantity  int `gorm:"not null;default:0" json:"reserved_quantity"`

	// Tender-only breakdown of the contract-level pool
	OriginalReservedQuantity  int `gorm:"not null;default:0" json:"original_reserved_quantity"`
	CustomerAllocatedQuantity int `gorm:"not null;default:0" json:"customer_allocated_quantity"`

	// Optimistic concurrency control; every quantity mutation bumps it
	Version int `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Batch     Batch           `gorm:"foreignKey:BatchID" json:"batch,omitempty"`
	Movements []StockMovement `gorm:"foreignKey:AllocationID" json:"movements,omitempty"`
}

// StockMovement is the append-only journal of quantity deltas against an
// Allocation. The aggregate fields on Allocation and Batch are caches of
// folds over this log.
type StockMovement struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	AllocationID uint              `gorm:"not null;index" json:"allocation_id"`
	BatchID      uint              `gorm:"not null;index" json:"batch_id"`
	Type         MovementType      `gorm:"not null" json:"type"`
	Direction    MovementDirection `gorm:"not null" json:"direction"`
	Quantity     int               `gorm:"not null" json:"quantity"`
	// Opaque master-data reference (movement type catalogue), no behavior
	MovementTypeID *uint     `json:"movement_type_id,omitempty"`
	ReferenceType  string    `gorm:"size:50" json:"reference_type"`
	ReferenceID    uint      `json:"reference_id"`
	Notes          string    `gorm:"type:text" json:"notes"`
	CreatedBy      uint      `gorm:"index" json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`

	// Relationships
	Allocation Allocation `gorm:"foreignKey:AllocationID" json:"allocation,omitempty"`
}

// TableName overrides
func (Batch) TableName() string         { return "batches" }
func (Allocation) TableName() string    { return "allocations" }
func (StockMovement) TableName() string { return "stock_movements" }

// Business methods for Allocation

// AvailableStock returns the quantity still free to reserve. The same
// formula applies to regular and tender allocations.
func (a *Allocation) AvailableStock() int {
	return a.AllocatedQuantity - a.ShippedQuantity - a.ReservedQuantity
}

// RemainingForAllocation returns the tender pool still available to
// sub-allocate to customers under the contract.
func (a *Allocation) RemainingForAllocation() int {
	return a.OriginalReservedQuantity - a.CustomerAllocatedQuantity
}

// IsTerminal reports whether further quantity mutation is blocked
func (a *Allocation) IsTerminal() bool {
	return a.Status == AllocationStatusFullySold || a.Status == AllocationStatusCancelled
}

// IsContractReservation reports whether this row is a tender contract-level pool
func (a *Allocation) IsContractReservation() bool {
	return a.Type == AllocationTypeTender && a.ParentAllocationID == nil
}
