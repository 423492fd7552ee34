package models

import (
	"time"

	"github.com/google/uuid"
)

// SlotState is the lifecycle state of a time slot.
type SlotState string

const (
	SlotStateCreated  SlotState = "created"
	SlotStateModified SlotState = "modified"
	SlotStateApproved SlotState = "approved"
	SlotStateRejected SlotState = "rejected"
	SlotStateDeleted  SlotState = "deleted"
	SlotStateRestored SlotState = "restored"
)

// ActiveStates are the states that count towards the schedule of an entity.
var ActiveStates = []SlotState{
	SlotStateCreated,
	SlotStateModified,
	SlotStateApproved,
	SlotStateRestored,
}

func (s SlotState) IsActive() bool {
	switch s {
	case SlotStateCreated, SlotStateModified, SlotStateApproved, SlotStateRestored:
		return true
	}
	return false
}

func (s SlotState) IsValid() bool {
	return s.IsActive() || s == SlotStateRejected || s == SlotStateDeleted
}

// time_slots
type TimeSlot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	EntityID      string `gorm:"size:64;not null;index:idx_time_slots_entity_state,priority:1" json:"entity_id"`
	EntityOwnerID string `gorm:"size:64;not null" json:"entity_owner_id"`
	ProposedBy    string `gorm:"size:64;not null" json:"proposed_by"`

	// Back-reference to the slot this one supersedes.
	ParentSlotID *uuid.UUID `gorm:"type:uuid;index" json:"parent_slot_id,omitempty"`

	State SlotState `gorm:"size:16;not null;index:idx_time_slots_entity_state,priority:2" json:"state"`

	StartAt time.Time `gorm:"not null" json:"start_at"`
	EndAt   time.Time `gorm:"not null" json:"end_at"`
	DayKey  string    `gorm:"size:10;not null;index" json:"day_key"`

	Notes *string `gorm:"type:text" json:"notes,omitempty"`

	// Last action stamp (who did what, when).
	StampAction SlotAction `gorm:"size:16" json:"stamp_action,omitempty"`
	StampActor  string     `gorm:"size:64" json:"stamp_actor,omitempty"`
	StampAt     *time.Time `json:"stamp_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
