package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EntityActionReschedule         = "reschedule"
	EntityActionRescheduleApproved = "reschedule_approved"
	EntityActionRescheduleRejected = "reschedule_rejected"
)

// entity_histories: state changes of an entity caused by slot workflows
type EntityHistory struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	EntityID string `gorm:"size:64;not null;index" json:"entity_id"`
	ActorID  string `gorm:"size:64;not null" json:"actor_id"`
	Action   string `gorm:"size:32;not null" json:"action"`

	FromStatus string  `gorm:"size:32" json:"from_status"`
	ToStatus   string  `gorm:"size:32" json:"to_status"`
	Reason     *string `gorm:"type:text" json:"reason,omitempty"`

	Details datatypes.JSON `json:"details,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
