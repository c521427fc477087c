// internal/domain/consignment/entity.go
package consignment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AgreementStatus represents the consignment agreement lifecycle state
type AgreementStatus string

const (
	AgreementStatusActive     AgreementStatus = "active"
	AgreementStatusSuspended  AgreementStatus = "suspended"
	AgreementStatusTerminated AgreementStatus = "terminated"
)

// ConsignmentStatus represents a consignment's lifecycle state
type ConsignmentStatus string

const (
	ConsignmentStatusOpen   ConsignmentStatus = "open"
	ConsignmentStatusClosed ConsignmentStatus = "closed"
)

// ReturnDisposition says what happens to returned consignment goods
type ReturnDisposition string

const (
	ReturnDispositionRestock ReturnDisposition = "restock"
	ReturnDispositionScrap   ReturnDisposition = "scrap"
)

// StatementStatus represents a settlement statement's lifecycle state
type StatementStatus string

const (
	StatementStatusDraft     StatementStatus = "draft"
	StatementStatusFinalized StatementStatus = "finalized"
)

// Agreement represents the commercial terms with a consignee. Goods
// shipped under an agreement stay owned by the warehouse until sold.
type Agreement struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PublicID       string          `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	CustomerID     uint            `gorm:"not null;index" json:"customer_id"`
	Name           string          `gorm:"not null;size:255" json:"name"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,4);not null" json:"commission_rate"`
	Status         AgreementStatus `gorm:"not null;default:'active'" json:"status"`
	StartsAt       time.Time       `json:"starts_at"`
	EndsAt         *time.Time      `json:"ends_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	Consignments []Consignment `gorm:"foreignKey:AgreementID" json:"consignments,omitempty"`
}

// Consignment represents one delivery of goods to a consignee under an
// agreement. Its items form a sub-ledger over the shipped quantities.
type Consignment struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	PublicID    string            `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	AgreementID uint              `gorm:"not null;index" json:"agreement_id"`
	Status      ConsignmentStatus `gorm:"not null;default:'open'" json:"status"`
	ShippedAt   time.Time         `json:"shipped_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt    `gorm:"index" json:"-"`

	// Relationships
	Agreement Agreement         `gorm:"foreignKey:AgreementID" json:"agreement,omitempty"`
	Items     []ConsignmentItem `gorm:"foreignKey:ConsignmentID" json:"items,omitempty"`
}

// ConsignmentItem tracks one allocation's quantities at the consignee.
// Invariant: QuantitySold + QuantityReturned <= QuantityShipped.
type ConsignmentItem struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	PublicID         string `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	ConsignmentID    uint   `gorm:"not null;index" json:"consignment_id"`
	AllocationID     uint   `gorm:"not null;index" json:"allocation_id"`
	BatchID          uint   `gorm:"not null;index" json:"batch_id"`
	QuantityShipped  int    `gorm:"not null" json:"quantity_shipped"`
	QuantitySold     int    `gorm:"not null;default:0" json:"quantity_sold"`
	QuantityReturned int    `gorm:"not null;default:0" json:"quantity_returned"`

	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Sales   []Sale   `gorm:"foreignKey:ConsignmentItemID" json:"sales,omitempty"`
	Returns []Return `gorm:"foreignKey:ConsignmentItemID" json:"returns,omitempty"`
}

// Sale records goods the consignee sold on the warehouse's behalf
type Sale struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	PublicID          string          `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	ConsignmentItemID uint            `gorm:"not null;index" json:"consignment_item_id"`
	Quantity          int             `gorm:"not null" json:"quantity"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TotalValue        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_value"`
	CommissionAmount  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"commission_amount"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"net_amount"`
	SoldAt            time.Time       `gorm:"index" json:"sold_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Return records goods coming back from the consignee
type Return struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	PublicID          string            `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	ConsignmentItemID uint              `gorm:"not null;index" json:"consignment_item_id"`
	Quantity          int               `gorm:"not null" json:"quantity"`
	Disposition       ReturnDisposition `gorm:"not null" json:"disposition"`
	Reason            string            `gorm:"type:text" json:"reason"`
	ReturnedAt        time.Time         `gorm:"index" json:"returned_at"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Statement is the settlement summary for an agreement over a period.
// At most one draft exists per agreement and period; regeneration
// replaces it.
type Statement struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	PublicID    string          `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	AgreementID uint            `gorm:"not null;index:idx_statement_period" json:"agreement_id"`
	PeriodStart time.Time       `gorm:"not null;index:idx_statement_period" json:"period_start"`
	PeriodEnd   time.Time       `gorm:"not null;index:idx_statement_period" json:"period_end"`
	Status      StatementStatus `gorm:"not null;default:'draft'" json:"status"`

	QuantityShipped  int             `gorm:"not null;default:0" json:"quantity_shipped"`
	ShippedValue     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"shipped_value"`
	QuantitySold     int             `gorm:"not null;default:0" json:"quantity_sold"`
	GrossValue       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"gross_value"`
	CommissionTotal  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"commission_total"`
	NetPayable       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"net_payable"`
	QuantityReturned int             `gorm:"not null;default:0" json:"quantity_returned"`
	ReturnedValue    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"returned_value"`

	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName overrides
func (Agreement) TableName() string       { return "consignment_agreements" }
func (Consignment) TableName() string     { return "consignments" }
func (ConsignmentItem) TableName() string { return "consignment_items" }
func (Sale) TableName() string            { return "consignment_sales" }
func (Return) TableName() string          { return "consignment_returns" }
func (Statement) TableName() string       { return "consignment_statements" }

// RemainingAtConsignee returns the quantity still sitting unsold at the
// consignee.
func (i *ConsignmentItem) RemainingAtConsignee() int {
	return i.QuantityShipped - i.QuantitySold - i.QuantityReturned
}
