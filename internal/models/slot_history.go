package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SlotAction is the closed set of transitions recorded in slot history.
type SlotAction string

const (
	SlotActionCreate  SlotAction = "create"
	SlotActionModify  SlotAction = "modify"
	SlotActionDelete  SlotAction = "delete"
	SlotActionApprove SlotAction = "approve"
	SlotActionReject  SlotAction = "reject"
	SlotActionRestore SlotAction = "restore"
)

// slot_histories: append-only, never updated or deleted
type SlotHistory struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	SlotID   uuid.UUID `gorm:"type:uuid;not null;index" json:"slot_id"`
	EntityID string    `gorm:"size:64;not null;index" json:"entity_id"`

	Action  SlotAction `gorm:"size:16;not null" json:"action"`
	ActorID string     `gorm:"size:64;not null" json:"actor_id"`
	Reason  *string    `gorm:"type:text" json:"reason,omitempty"`

	DataChanges datatypes.JSON `json:"data_changes,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
