package timeslot

import (
	"time"

	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

// Change is the before/after value of one slot field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes is the structured diff stored with a history entry.
type Changes map[string]Change

// Snapshot lists the scheduling fields of a freshly written slot.
func Snapshot(s models.TimeSlot) Changes {
	c := Changes{
		"start_at": {New: s.StartAt.UTC()},
		"end_at":   {New: s.EndAt.UTC()},
		"day_key":  {New: s.DayKey},
		"state":    {New: s.State},
	}
	if s.Notes != nil {
		c["notes"] = Change{New: *s.Notes}
	}
	if s.ParentSlotID != nil {
		c["parent_slot_id"] = Change{New: s.ParentSlotID.String()}
	}
	return c
}

// Diff compares two versions of a slot and keeps only what changed.
func Diff(before, after models.TimeSlot) Changes {
	c := Changes{}

	if !before.StartAt.Equal(after.StartAt) {
		c["start_at"] = Change{Old: before.StartAt.UTC(), New: after.StartAt.UTC()}
	}
	if !before.EndAt.Equal(after.EndAt) {
		c["end_at"] = Change{Old: before.EndAt.UTC(), New: after.EndAt.UTC()}
	}
	if before.DayKey != after.DayKey {
		c["day_key"] = Change{Old: before.DayKey, New: after.DayKey}
	}
	if before.State != after.State {
		c["state"] = Change{Old: before.State, New: after.State}
	}
	if !sameNotes(before.Notes, after.Notes) {
		c["notes"] = Change{Old: notesValue(before.Notes), New: notesValue(after.Notes)}
	}
	if before.ProposedBy != after.ProposedBy {
		c["proposed_by"] = Change{Old: before.ProposedBy, New: after.ProposedBy}
	}

	return c
}

// StateChange is the diff of a pure state transition.
func StateChange(from, to models.SlotState) Changes {
	return Changes{"state": {Old: from, New: to}}
}

// WithStamp adds the modifiedBy-style stamp to a diff.
func (c Changes) WithStamp(action models.SlotAction, actor string, at time.Time) Changes {
	if c == nil {
		c = Changes{}
	}
	c["modified_by"] = Change{New: map[string]any{
		"actor":  actor,
		"at":     at.UTC(),
		"action": action,
	}}
	return c
}

func sameNotes(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func notesValue(n *string) any {
	if n == nil {
		return nil
	}
	return *n
}
