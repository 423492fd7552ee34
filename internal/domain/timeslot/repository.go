package timeslot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

// Stamp is the last-action marker written alongside a slot update.
type Stamp struct {
	Action models.SlotAction
	Actor  string
	At     time.Time
}

// SlotPatch updates only the fields it sets. When IfStateIn is non-empty the
// update applies only if the stored state is one of them; otherwise the
// repository returns ErrStaleState.
type SlotPatch struct {
	StartAt    *time.Time
	EndAt      *time.Time
	DayKey     *string
	Notes      *string
	State      *models.SlotState
	ProposedBy *string
	Stamp      *Stamp

	IfStateIn []models.SlotState
}

type SlotStore interface {
	// -------- Slots --------
	Insert(ctx context.Context, slot *models.TimeSlot) error

	Update(
		ctx context.Context,
		id uuid.UUID,
		patch SlotPatch,
	) (*models.TimeSlot, error)

	FindByID(ctx context.Context, id uuid.UUID) (*models.TimeSlot, error)

	FindActiveBy(ctx context.Context, entityID string) ([]models.TimeSlot, error)

	FindAllBy(
		ctx context.Context,
		entityID string,
		states ...models.SlotState,
	) ([]models.TimeSlot, error)

	// -------- History --------
	AppendHistory(ctx context.Context, entry *models.SlotHistory) error

	FindHistory(ctx context.Context, slotID uuid.UUID) ([]models.SlotHistory, error)
}

type EntityStore interface {
	GetEntity(ctx context.Context, id string) (*models.Entity, error)

	SaveEntity(ctx context.Context, e *models.Entity) error

	SetCurrentSlots(
		ctx context.Context,
		entityID string,
		slots []models.CurrentSlot,
	) error

	AppendEntityHistory(ctx context.Context, entry *models.EntityHistory) error

	FindEntityHistory(ctx context.Context, entityID string) ([]models.EntityHistory, error)

	ListEntityIDs(ctx context.Context) ([]string, error)
}

type Store interface {
	SlotStore
	EntityStore
}

// Repository is the persistence boundary of the scheduler. Atomic runs fn
// with reads and writes isolated from any other Atomic call for the same
// entity; an error returned by fn discards every write made through tx.
type Repository interface {
	Store

	Atomic(
		ctx context.Context,
		entityID string,
		fn func(ctx context.Context, tx Store) error,
	) error
}
