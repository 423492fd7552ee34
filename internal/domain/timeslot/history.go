package timeslot

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

// StateAfter maps a history action to the slot state it leaves behind.
func StateAfter(action models.SlotAction) (models.SlotState, bool) {
	switch action {
	case models.SlotActionCreate:
		return models.SlotStateCreated, true
	case models.SlotActionModify:
		return models.SlotStateModified, true
	case models.SlotActionDelete:
		return models.SlotStateDeleted, true
	case models.SlotActionApprove:
		return models.SlotStateApproved, true
	case models.SlotActionReject:
		return models.SlotStateRejected, true
	case models.SlotActionRestore:
		return models.SlotStateRestored, true
	}
	return "", false
}

// SortHistory orders entries by (CreatedAt, ID). History ids are UUIDv7, so
// the id breaks ties between entries written in the same instant.
func SortHistory(entries []models.SlotHistory) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return bytes.Compare(entries[i].ID[:], entries[j].ID[:]) < 0
	})
}

// Replay reconstructs the current state of a slot from its history.
func Replay(entries []models.SlotHistory) (models.SlotState, error) {
	if len(entries) == 0 {
		return "", errors.New("replay: empty history")
	}

	ordered := make([]models.SlotHistory, len(entries))
	copy(ordered, entries)
	SortHistory(ordered)

	first := ordered[0].Action
	if first != models.SlotActionCreate && first != models.SlotActionRestore {
		return "", fmt.Errorf("replay: history of slot %s starts with %q", ordered[0].SlotID, first)
	}

	var state models.SlotState
	for _, e := range ordered {
		next, ok := StateAfter(e.Action)
		if !ok {
			return "", fmt.Errorf("replay: unknown action %q", e.Action)
		}
		state = next
	}

	return state, nil
}
