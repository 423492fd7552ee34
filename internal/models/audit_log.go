package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	EntityID string `gorm:"size:64;index" json:"entity_id"`
	ActorID  string `gorm:"size:64" json:"actor_id"`
	Action   string `gorm:"size:50;not null" json:"action"`

	Resource   string         `gorm:"size:50" json:"resource"`
	ResourceID string         `gorm:"size:64" json:"resource_id"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
