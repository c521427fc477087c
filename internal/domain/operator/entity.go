// internal/domain/operator/entity.go
package operator

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role represents an operator's permission level
type Role string

const (
	RoleAdmin  Role = "admin"  // Full access, including forced deletions
	RoleClerk  Role = "clerk"  // Day-to-day warehouse operations
	RoleViewer Role = "viewer" // Read-only access
)

// Operator represents a warehouse staff account
type Operator struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Email       string         `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password    string         `gorm:"not null;size:255" json:"-"` // Don't return in JSON
	FirstName   string         `gorm:"size:100" json:"first_name"`
	LastName    string         `gorm:"size:100" json:"last_name"`
	Role        Role           `gorm:"not null;default:'clerk'" json:"role"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time     `json:"last_login_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name for Operator
func (Operator) TableName() string {
	return "operators"
}

// BeforeCreate hook to handle business logic before operator creation
func (o *Operator) BeforeCreate(tx *gorm.DB) error {
	o.Email = strings.ToLower(o.Email)
	return nil
}

// GetFullName returns the operator's full name
func (o *Operator) GetFullName() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

// IsAdmin reports whether the operator holds the admin role
func (o *Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}
