// internal/domain/rack/entity.go
package rack

import (
	"time"

	"gorm.io/gorm"
)

// Rack represents a physical storage slot
type Rack struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PublicID string `gorm:"uniqueIndex;not null;size:36" json:"public_id"`
	Code     string `gorm:"uniqueIndex;not null;size:50" json:"code"`
	Zone     string `gorm:"size:50;index" json:"zone"`
	Aisle    string `gorm:"size:50" json:"aisle"`
	Level    int    `gorm:"default:0" json:"level"`
	// Opaque master-data reference (location type catalogue)
	LocationTypeID *uint          `json:"location_type_id,omitempty"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Placements []RackAllocation `gorm:"foreignKey:RackID" json:"placements,omitempty"`
}

// RackAllocation records how much of an allocation's quantity sits in one
// rack. An allocation may be split across several racks.
type RackAllocation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RackID       uint      `gorm:"not null;index:idx_rack_allocation,unique" json:"rack_id"`
	AllocationID uint      `gorm:"not null;index:idx_rack_allocation,unique" json:"allocation_id"`
	Quantity     int       `gorm:"not null" json:"quantity"`
	PlacedBy     uint      `gorm:"index" json:"placed_by"`
	PlacedAt     time.Time `gorm:"index" json:"placed_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	Rack Rack `gorm:"foreignKey:RackID" json:"rack,omitempty"`
}

// TableName overrides
func (Rack) TableName() string           { return "racks" }
func (RackAllocation) TableName() string { return "rack_allocations" }
