package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/infra/lock"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

type TimeSlotGormRepository struct {
	db     *gorm.DB
	locker lock.Locker
	inTx   bool
}

func NewTimeSlotGormRepository(db *gorm.DB, locker lock.Locker) *TimeSlotGormRepository {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &TimeSlotGormRepository{db: db, locker: locker}
}

// --------------------------------------------------
// Atomic scope
// --------------------------------------------------

func (r *TimeSlotGormRepository) Atomic(
	ctx context.Context,
	entityID string,
	fn func(ctx context.Context, tx domain.Store) error,
) error {

	// already inside a transaction for this entity
	if r.inTx {
		return fn(ctx, r)
	}

	unlock, err := r.locker.Lock(ctx, "entity:"+entityID)
	if err != nil {
		return fmt.Errorf("lock entity %s: %w", entityID, err)
	}
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &TimeSlotGormRepository{db: tx, locker: r.locker, inTx: true})
	})
}

// --------------------------------------------------
// Slots
// --------------------------------------------------

func (r *TimeSlotGormRepository) Insert(
	ctx context.Context,
	slot *models.TimeSlot,
) error {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *TimeSlotGormRepository) Update(
	ctx context.Context,
	id uuid.UUID,
	patch domain.SlotPatch,
) (*models.TimeSlot, error) {

	updates := map[string]any{}
	if patch.StartAt != nil {
		updates["start_at"] = *patch.StartAt
	}
	if patch.EndAt != nil {
		updates["end_at"] = *patch.EndAt
	}
	if patch.DayKey != nil {
		updates["day_key"] = *patch.DayKey
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.State != nil {
		updates["state"] = string(*patch.State)
	}
	if patch.ProposedBy != nil {
		updates["proposed_by"] = *patch.ProposedBy
	}
	if patch.Stamp != nil {
		at := patch.Stamp.At
		updates["stamp_action"] = string(patch.Stamp.Action)
		updates["stamp_actor"] = patch.Stamp.Actor
		updates["stamp_at"] = &at
	}

	if len(updates) == 0 {
		return r.FindByID(ctx, id)
	}

	q := r.db.WithContext(ctx).
		Model(&models.TimeSlot{}).
		Where("id = ?", id)

	if len(patch.IfStateIn) > 0 {
		q = q.Where("state IN ?", stateStrings(patch.IfStateIn))
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrStaleState
	}

	return r.FindByID(ctx, id)
}

func (r *TimeSlotGormRepository) FindByID(
	ctx context.Context,
	id uuid.UUID,
) (*models.TimeSlot, error) {

	var slot models.TimeSlot
	if err := r.db.WithContext(ctx).First(&slot, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &slot, nil
}

func (r *TimeSlotGormRepository) FindActiveBy(
	ctx context.Context,
	entityID string,
) ([]models.TimeSlot, error) {

	q := r.db.WithContext(ctx)
	if r.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var slots []models.TimeSlot
	if err := q.
		Where("entity_id = ? AND state IN ?", entityID, stateStrings(models.ActiveStates)).
		Order("start_at ASC").
		Find(&slots).Error; err != nil {
		return nil, err
	}

	return slots, nil
}

func (r *TimeSlotGormRepository) FindAllBy(
	ctx context.Context,
	entityID string,
	states ...models.SlotState,
) ([]models.TimeSlot, error) {

	q := r.db.WithContext(ctx).Where("entity_id = ?", entityID)
	if len(states) > 0 {
		q = q.Where("state IN ?", stateStrings(states))
	}

	var slots []models.TimeSlot
	if err := q.
		Order("start_at ASC").
		Order("created_at ASC").
		Find(&slots).Error; err != nil {
		return nil, err
	}

	return slots, nil
}

// --------------------------------------------------
// History (append-only)
// --------------------------------------------------

func (r *TimeSlotGormRepository) AppendHistory(
	ctx context.Context,
	entry *models.SlotHistory,
) error {
	if entry.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		entry.ID = id
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *TimeSlotGormRepository) FindHistory(
	ctx context.Context,
	slotID uuid.UUID,
) ([]models.SlotHistory, error) {

	var entries []models.SlotHistory
	if err := r.db.WithContext(ctx).
		Where("slot_id = ?", slotID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}

	domain.SortHistory(entries)
	return entries, nil
}

// --------------------------------------------------
// Entities
// --------------------------------------------------

func (r *TimeSlotGormRepository) GetEntity(
	ctx context.Context,
	id string,
) (*models.Entity, error) {

	var e models.Entity
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

// SaveEntity upserts owner and status; the current view is left alone.
func (r *TimeSlotGormRepository) SaveEntity(
	ctx context.Context,
	e *models.Entity,
) error {
	if e.Status == "" {
		e.Status = models.EntityStatusScheduled
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner_id", "owner_email", "status", "updated_at"}),
		}).
		Create(e).Error
}

func (r *TimeSlotGormRepository) SetCurrentSlots(
	ctx context.Context,
	entityID string,
	slots []models.CurrentSlot,
) error {

	payload, err := models.EncodeCurrentSlots(slots)
	if err != nil {
		return fmt.Errorf("encode current slots: %w", err)
	}

	res := r.db.WithContext(ctx).
		Model(&models.Entity{}).
		Where("id = ?", entityID).
		Update("current_slots", payload)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TimeSlotGormRepository) AppendEntityHistory(
	ctx context.Context,
	entry *models.EntityHistory,
) error {
	if entry.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		entry.ID = id
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *TimeSlotGormRepository) FindEntityHistory(
	ctx context.Context,
	entityID string,
) ([]models.EntityHistory, error) {

	var entries []models.EntityHistory
	if err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *TimeSlotGormRepository) ListEntityIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.TimeSlot{}).
		Distinct("entity_id").
		Order("entity_id ASC").
		Pluck("entity_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// --------------------------------------------------
// helpers
// --------------------------------------------------

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func stateStrings(states []models.SlotState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// Compile-time check
var _ domain.Repository = (*TimeSlotGormRepository)(nil)
