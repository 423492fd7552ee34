package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/infra/lock"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
	"github.com/BruksfildServices01/slot-scheduler/internal/testutil"
)

func newRepo(t *testing.T) *TimeSlotGormRepository {
	t.Helper()
	return NewTimeSlotGormRepository(testutil.OpenSQLite(t), lock.NewLocalLocker())
}

func seedSlot(t *testing.T, r *TimeSlotGormRepository, entityID string, state models.SlotState, hour int) models.TimeSlot {
	t.Helper()

	start := time.Date(2030, 5, 6, hour, 0, 0, 0, time.UTC)
	slot := models.TimeSlot{
		EntityID:      entityID,
		EntityOwnerID: "owner-1",
		ProposedBy:    "owner-1",
		State:         state,
		StartAt:       start,
		EndAt:         start.Add(time.Hour),
		DayKey:        "2030-05-06",
	}
	if err := r.Insert(context.Background(), &slot); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return slot
}

func TestTimeSlotGormRepository_InsertAndFind(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	s := seedSlot(t, r, "ent-1", models.SlotStateCreated, 9)
	if s.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}

	got, err := r.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.EntityID != "ent-1" || got.State != models.SlotStateCreated {
		t.Fatalf("unexpected slot: %+v", got)
	}
	if !got.StartAt.Equal(s.StartAt) || !got.EndAt.Equal(s.EndAt) {
		t.Fatalf("times did not round-trip: %v-%v", got.StartAt, got.EndAt)
	}

	if _, err := r.FindByID(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTimeSlotGormRepository_FindActiveBy_FiltersStatesAndEntity(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	seedSlot(t, r, "ent-1", models.SlotStateCreated, 9)
	seedSlot(t, r, "ent-1", models.SlotStateApproved, 11)
	seedSlot(t, r, "ent-1", models.SlotStateRejected, 13)
	seedSlot(t, r, "ent-1", models.SlotStateDeleted, 15)
	seedSlot(t, r, "ent-2", models.SlotStateCreated, 9)

	active, err := r.FindActiveBy(ctx, "ent-1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active slots, got %d", len(active))
	}
	if !active[0].StartAt.Before(active[1].StartAt) {
		t.Fatalf("expected slots ordered by start")
	}

	rejected, err := r.FindAllBy(ctx, "ent-1", models.SlotStateRejected, models.SlotStateDeleted)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 inactive slots, got %d", len(rejected))
	}

	all, err := r.FindAllBy(ctx, "ent-1")
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(all))
	}
}

func TestTimeSlotGormRepository_Update_StateGuard(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	s := seedSlot(t, r, "ent-1", models.SlotStateCreated, 9)
	approved := models.SlotStateApproved

	got, err := r.Update(ctx, s.ID, domain.SlotPatch{
		State:     &approved,
		IfStateIn: domain.ApprovableStates,
		Stamp:     &domain.Stamp{Action: models.SlotActionApprove, Actor: "validator", At: time.Now()},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.State != models.SlotStateApproved || got.StampActor != "validator" {
		t.Fatalf("unexpected slot after update: %+v", got)
	}

	if _, err := r.Update(ctx, s.ID, domain.SlotPatch{State: &approved, IfStateIn: domain.ApprovableStates}); !errors.Is(err, domain.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}

	if _, err := r.Update(ctx, uuid.New(), domain.SlotPatch{State: &approved}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTimeSlotGormRepository_Atomic_RollsBackOnError(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := r.Atomic(ctx, "ent-1", func(ctx context.Context, tx domain.Store) error {
		start := time.Date(2030, 5, 6, 9, 0, 0, 0, time.UTC)
		if err := tx.Insert(ctx, &models.TimeSlot{
			EntityID:      "ent-1",
			EntityOwnerID: "owner-1",
			ProposedBy:    "owner-1",
			State:         models.SlotStateCreated,
			StartAt:       start,
			EndAt:         start.Add(time.Hour),
			DayKey:        "2030-05-06",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	active, err := r.FindActiveBy(ctx, "ent-1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected rollback, found %d slots", len(active))
	}
}

func TestTimeSlotGormRepository_HistoryOrder(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	s := seedSlot(t, r, "ent-1", models.SlotStateCreated, 9)
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, a := range []models.SlotAction{models.SlotActionCreate, models.SlotActionModify, models.SlotActionApprove} {
		if err := r.AppendHistory(ctx, &models.SlotHistory{
			SlotID:    s.ID,
			EntityID:  s.EntityID,
			Action:    a,
			ActorID:   "actor",
			CreatedAt: at,
		}); err != nil {
			t.Fatalf("append history: %v", err)
		}
	}

	entries, err := r.FindHistory(ctx, s.ID)
	if err != nil {
		t.Fatalf("find history: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Action != models.SlotActionCreate || entries[2].Action != models.SlotActionApprove {
		t.Fatalf("entries out of order: %v, %v, %v", entries[0].Action, entries[1].Action, entries[2].Action)
	}
}

func TestTimeSlotGormRepository_Entities(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	if err := r.SaveEntity(ctx, &models.Entity{ID: "ent-1", OwnerID: "owner-1", OwnerEmail: "owner@lab.test"}); err != nil {
		t.Fatalf("save entity: %v", err)
	}

	cur := []models.CurrentSlot{{
		SlotID:  uuid.New(),
		DayKey:  "2030-05-06",
		StartAt: time.Date(2030, 5, 6, 9, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC),
	}}
	if err := r.SetCurrentSlots(ctx, "ent-1", cur); err != nil {
		t.Fatalf("set current: %v", err)
	}

	// re-saving owner data keeps the current view
	if err := r.SaveEntity(ctx, &models.Entity{ID: "ent-1", OwnerID: "owner-2", Status: "confirmed"}); err != nil {
		t.Fatalf("resave entity: %v", err)
	}

	e, err := r.GetEntity(ctx, "ent-1")
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if e.OwnerID != "owner-2" || e.Status != "confirmed" {
		t.Fatalf("unexpected entity: %+v", e)
	}

	got, err := e.Current()
	if err != nil {
		t.Fatalf("decode current: %v", err)
	}
	if len(got) != 1 || got[0].SlotID != cur[0].SlotID {
		t.Fatalf("current view lost: %+v", got)
	}

	if err := r.SetCurrentSlots(ctx, "missing", cur); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.GetEntity(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTimeSlotGormRepository_ListEntityIDs(t *testing.T) {
	r := newRepo(t)

	seedSlot(t, r, "ent-b", models.SlotStateCreated, 9)
	seedSlot(t, r, "ent-a", models.SlotStateCreated, 9)
	seedSlot(t, r, "ent-a", models.SlotStateDeleted, 11)

	ids, err := r.ListEntityIDs(context.Background())
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != "ent-a" || ids[1] != "ent-b" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
