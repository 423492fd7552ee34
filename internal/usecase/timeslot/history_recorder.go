package timeslot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

type HistoryInput struct {
	SlotID   uuid.UUID
	EntityID string
	Action   models.SlotAction
	ActorID  string
	Reason   *string
	Changes  domain.Changes
}

// HistoryRecorder appends one immutable entry per slot transition. The
// store is passed per call so entries land in the caller's transaction.
type HistoryRecorder struct {
	now func() time.Time
}

func NewHistoryRecorder(now func() time.Time) *HistoryRecorder {
	if now == nil {
		now = time.Now
	}
	return &HistoryRecorder{now: now}
}

func (r *HistoryRecorder) Record(
	ctx context.Context,
	store domain.SlotStore,
	in HistoryInput,
) (*models.SlotHistory, error) {

	if _, ok := domain.StateAfter(in.Action); !ok {
		return nil, fmt.Errorf("record history: unknown action %q", in.Action)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}

	var changes datatypes.JSON
	if len(in.Changes) > 0 {
		b, err := json.Marshal(in.Changes)
		if err != nil {
			return nil, fmt.Errorf("record history: encode changes: %w", err)
		}
		changes = datatypes.JSON(b)
	}

	entry := &models.SlotHistory{
		ID:          id,
		SlotID:      in.SlotID,
		EntityID:    in.EntityID,
		Action:      in.Action,
		ActorID:     in.ActorID,
		Reason:      in.Reason,
		DataChanges: changes,
		CreatedAt:   r.now().UTC(),
	}

	if err := store.AppendHistory(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
