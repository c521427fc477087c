// internal/domain/activity/service.go
package activity

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service records the operator audit trail. Recording happens after the
// business transaction commits and is best-effort: a failed audit write
// never fails the operation it describes.
type Service struct {
	db *gorm.DB
}

// NewService creates a new activity service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record appends one audit trail row
func (s *Service) Record(actorID uint, action, entityType, entityID, details, ipAddress string) {
	entry := &Log{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IPAddress:  ipAddress,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(entry).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"action":      action,
			"entity_type": entityType,
			"entity_id":   entityID,
		}).Warn("Failed to record activity log entry")
	}
}

// List returns recent audit trail rows for an entity
func (s *Service) List(entityType, entityID string, limit int) ([]Log, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []Log
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
