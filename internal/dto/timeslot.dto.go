package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

// ======================================================
// REQUESTS
// ======================================================

type ProposalsRequest struct {
	EntityOwnerID  string               `json:"entityOwnerId"`
	AllowPastDates bool                 `json:"allowPastDates"`
	Proposals      []domain.RawProposal `json:"proposals"`
}

type CandidateSlotRequest struct {
	Date      string  `json:"date"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Notes     *string `json:"notes"`
}

type RescheduleRequest struct {
	EntityOwnerID    string                 `json:"entityOwnerId"`
	EntityOwnerEmail string                 `json:"entityOwnerEmail"`
	NewSlots         []CandidateSlotRequest `json:"newSlots"`
	Reason           *string                `json:"reason"`
	AllowPastDates   bool                   `json:"allowPastDates"`
}

type DecisionRequest struct {
	Reason *string `json:"reason"`
}

type BatchItemRequest struct {
	SlotID string  `json:"slotId"`
	Reason *string `json:"reason"`
}

type BatchDecisionRequest struct {
	Items []BatchItemRequest `json:"items"`
}

type EntityRequest struct {
	OwnerID    string `json:"ownerId"`
	OwnerEmail string `json:"ownerEmail"`
	Status     string `json:"status"`
}

// ======================================================
// RESPONSES
// ======================================================

type SlotHistoryDTO struct {
	ID        uuid.UUID         `json:"id"`
	SlotID    uuid.UUID         `json:"slot_id"`
	Action    models.SlotAction `json:"action"`
	ActorID   string            `json:"actor_id"`
	Reason    *string           `json:"reason,omitempty"`
	Changes   json.RawMessage   `json:"changes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func SlotHistoryFrom(entries []models.SlotHistory) []SlotHistoryDTO {
	out := make([]SlotHistoryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, SlotHistoryDTO{
			ID:        e.ID,
			SlotID:    e.SlotID,
			Action:    e.Action,
			ActorID:   e.ActorID,
			Reason:    e.Reason,
			Changes:   json.RawMessage(e.DataChanges),
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

// SlotHistoryResponse reports the stored state next to the state replayed
// from history. Consistent is false when replay fails or disagrees.
type SlotHistoryResponse struct {
	SlotID        uuid.UUID        `json:"slot_id"`
	State         models.SlotState `json:"state"`
	ReplayedState models.SlotState `json:"replayed_state,omitempty"`
	Consistent    bool             `json:"consistent"`
	ReplayError   string           `json:"replay_error,omitempty"`
	ReplayedFrom  int              `json:"replayed_from"`
	History       []SlotHistoryDTO `json:"history"`
}
