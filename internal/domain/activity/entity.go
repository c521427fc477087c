// internal/domain/activity/entity.go
package activity

import "time"

// Log is one audit trail row for an operator-visible action
type Log struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActorID    uint      `gorm:"index" json:"actor_id"`
	Action     string    `gorm:"not null;size:100;index" json:"action"`
	EntityType string    `gorm:"not null;size:50;index" json:"entity_type"`
	EntityID   string    `gorm:"size:36;index" json:"entity_id"`
	Details    string    `gorm:"type:text" json:"details,omitempty"`
	IPAddress  string    `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// TableName overrides the table name
func (Log) TableName() string { return "activity_logs" }
