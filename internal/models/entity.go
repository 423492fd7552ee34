package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const EntityStatusScheduled = "scheduled"

// CurrentSlot is one interval of the accepted schedule of an entity.
type CurrentSlot struct {
	SlotID  uuid.UUID `json:"slot_id"`
	DayKey  string    `json:"day_key"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

func CurrentSlotOf(s TimeSlot) CurrentSlot {
	return CurrentSlot{
		SlotID:  s.ID,
		DayKey:  s.DayKey,
		StartAt: s.StartAt,
		EndAt:   s.EndAt,
	}
}

// entities: the booking a set of slots belongs to. Owned by the
// surrounding booking system; the scheduler only keeps what it needs.
type Entity struct {
	ID         string `gorm:"size:64;primaryKey" json:"id"`
	OwnerID    string `gorm:"size:64;not null;index" json:"owner_id"`
	OwnerEmail string `gorm:"size:255" json:"owner_email"`
	Status     string `gorm:"size:32;not null;default:'scheduled'" json:"status"`

	CurrentSlots datatypes.JSON `json:"current_slots"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Entity) Current() ([]CurrentSlot, error) {
	if len(e.CurrentSlots) == 0 {
		return []CurrentSlot{}, nil
	}

	var out []CurrentSlot
	if err := json.Unmarshal(e.CurrentSlots, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []CurrentSlot{}
	}
	return out, nil
}

func EncodeCurrentSlots(slots []CurrentSlot) (datatypes.JSON, error) {
	if slots == nil {
		slots = []CurrentSlot{}
	}
	b, err := json.Marshal(slots)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
