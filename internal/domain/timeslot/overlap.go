package timeslot

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BruksfildServices01/slot-scheduler/internal/models"
	"github.com/BruksfildServices01/slot-scheduler/internal/timezone"
)

// Interval is a half-open range [StartAt, EndAt) on one calendar day.
type Interval struct {
	DayKey  string
	StartAt time.Time
	EndAt   time.Time
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
// Intervals on different days never overlap.
func (a Interval) Overlaps(b Interval) bool {
	if a.DayKey != b.DayKey {
		return false
	}
	return a.StartAt.Before(b.EndAt) && b.StartAt.Before(a.EndAt)
}

func IntervalOf(s models.TimeSlot) Interval {
	return Interval{DayKey: s.DayKey, StartAt: s.StartAt, EndAt: s.EndAt}
}

// Candidate is an interval proposed at position Index of a request.
type Candidate struct {
	Index int
	Interval
}

// Conflict describes one overlap. Exactly one of SlotID (stored slot) or
// OtherIndex (earlier candidate, otherwise -1) identifies the other side.
type Conflict struct {
	Index      int
	SlotID     uuid.UUID
	OtherIndex int
	Message    string
}

type OverlapDetector struct {
	norm *timezone.Normalizer
}

func NewOverlapDetector(norm *timezone.Normalizer) *OverlapDetector {
	return &OverlapDetector{norm: norm}
}

// Candidate builds a candidate whose day key is derived from start.
func (d *OverlapDetector) Candidate(index int, start, end time.Time) Candidate {
	return Candidate{
		Index:    index,
		Interval: Interval{DayKey: d.norm.DayKeyOf(start), StartAt: start, EndAt: end},
	}
}

// Detect checks one candidate against stored slots and earlier siblings.
func (d *OverlapDetector) Detect(c Candidate, existing []models.TimeSlot, siblings []Candidate) []Conflict {
	var out []Conflict

	for _, s := range existing {
		if !c.Overlaps(IntervalOf(s)) {
			continue
		}
		out = append(out, Conflict{
			Index:      c.Index,
			SlotID:     s.ID,
			OtherIndex: -1,
			Message:    fmt.Sprintf("overlaps with slot %s (%s)", s.ID, d.describe(IntervalOf(s))),
		})
	}

	for _, sib := range siblings {
		if sib.Index == c.Index || !c.Overlaps(sib.Interval) {
			continue
		}
		out = append(out, Conflict{
			Index:      c.Index,
			OtherIndex: sib.Index,
			Message:    fmt.Sprintf("overlaps with proposals[%d] (%s)", sib.Index, d.describe(sib.Interval)),
		})
	}

	return out
}

// DetectAll walks candidates in order; each is checked against the stored
// slots and every candidate before it.
func (d *OverlapDetector) DetectAll(candidates []Candidate, existing []models.TimeSlot) []Conflict {
	var out []Conflict
	for i, c := range candidates {
		out = append(out, d.Detect(c, existing, candidates[:i])...)
	}
	return out
}

func (d *OverlapDetector) describe(iv Interval) string {
	return fmt.Sprintf("%s %s-%s", iv.DayKey, d.norm.ClockOf(iv.StartAt), d.norm.ClockOf(iv.EndAt))
}

// AsFieldErrors converts conflicts into overlap validation errors.
func AsFieldErrors(conflicts []Conflict, path func(index int) string) ValidationErrors {
	out := make(ValidationErrors, 0, len(conflicts))
	for _, c := range conflicts {
		fe := FieldError{
			Code:    CodeOverlap,
			Field:   path(c.Index),
			Message: c.Message,
			Index:   c.Index,
		}
		if c.OtherIndex >= 0 {
			other := c.OtherIndex
			fe.ConflictIndex = &other
		} else {
			id := c.SlotID
			fe.ConflictSlotID = &id
		}
		out = append(out, fe)
	}
	return out
}
