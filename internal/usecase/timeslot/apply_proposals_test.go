package timeslot

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

func TestApply_AdjacentSlotsAreAccepted(t *testing.T) {
	f := newFixture(t, 0)

	out := f.apply(t, "ent-1",
		create(at(6, 9, 0), at(6, 10, 0)),
		create(at(6, 10, 0), at(6, 11, 0)),
	)

	if len(out) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(out))
	}
	for _, s := range out {
		if s.State != models.SlotStateCreated {
			t.Fatalf("expected created, got %s", s.State)
		}
		if s.DayKey != "2030-05-06" {
			t.Fatalf("unexpected day key %q", s.DayKey)
		}
		if s.StampAction != models.SlotActionCreate || s.StampActor != "owner-1" {
			t.Fatalf("missing stamp: %+v", s)
		}
	}
	f.assertReplay(t, "ent-1")
}

func TestApply_OverlapRejectsWholeBatch(t *testing.T) {
	f := newFixture(t, 0)
	existing := f.apply(t, "ent-1", create(at(6, 9, 0), at(6, 10, 0)))

	_, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:      "ent-1",
		EntityOwnerID: "owner-1",
		ActorID:       "owner-1",
		Proposals: []domain.Proposal{
			create(at(6, 14, 0), at(6, 15, 0)),
			create(at(6, 9, 30), at(6, 10, 30)),
			create(at(6, 14, 30), at(6, 15, 30)),
		},
	})

	var ve domain.ValidationErrors
	if !asValidation(err, &ve) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if ve.Count(domain.CodeOverlap) != 2 {
		t.Fatalf("expected 2 overlaps, got %+v", ve)
	}
	if ve[0].Field != "proposals[1]" || ve[0].ConflictSlotID == nil || *ve[0].ConflictSlotID != existing[0].ID {
		t.Fatalf("first conflict should point at the stored slot: %+v", ve[0])
	}
	if ve[1].Field != "proposals[2]" || ve[1].ConflictIndex == nil || *ve[1].ConflictIndex != 0 {
		t.Fatalf("second conflict should point at proposals[0]: %+v", ve[1])
	}

	if n := len(f.active(t, "ent-1")); n != 1 {
		t.Fatalf("batch must not be partially applied, found %d active", n)
	}
}

func TestApply_SameClockOnDifferentDaysDoesNotOverlap(t *testing.T) {
	f := newFixture(t, 0)

	out := f.apply(t, "ent-1",
		create(at(6, 9, 0), at(6, 10, 0)),
		create(at(7, 9, 0), at(7, 10, 0)),
	)
	if len(out) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(out))
	}
}

func TestApply_CollectsFieldErrors(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:      "ent-1",
		EntityOwnerID: "owner-1",
		ActorID:       "owner-1",
		Proposals: []domain.Proposal{
			domain.CreateProposal{EndAt: at(6, 10, 0)},
			create(at(6, 11, 0), at(6, 10, 0)),
			domain.CreateProposal{EntityID: "ent-2", StartAt: at(30, 9, 0), EndAt: at(30, 10, 0)},
			domain.ModifyProposal{SlotID: uuid.New(), Notes: ptr("x")},
		},
	})

	var ve domain.ValidationErrors
	if !asValidation(err, &ve) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	for _, code := range []domain.Code{
		domain.CodeMissingField,
		domain.CodeInvalidRange,
		domain.CodeEntityMismatch,
		domain.CodeNotFound,
	} {
		if !ve.Has(code) {
			t.Fatalf("expected %s in %+v", code, ve)
		}
	}
}

func TestApply_PastDatePolicy(t *testing.T) {
	f := newFixture(t, 0)
	past := create(at(0, 9, 0), at(0, 10, 0)) // 2030-04-30

	_, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:      "ent-1",
		EntityOwnerID: "owner-1",
		ActorID:       "owner-1",
		Proposals:     []domain.Proposal{past},
	})
	if !domain.IsCode(err, domain.CodePastDate) {
		t.Fatalf("expected past_date, got %v", err)
	}

	out, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:       "ent-1",
		EntityOwnerID:  "owner-1",
		ActorID:        "owner-1",
		Proposals:      []domain.Proposal{past},
		AllowPastDates: true,
	})
	if err != nil || len(out) != 1 {
		t.Fatalf("expected past slot to be accepted when allowed: %v", err)
	}

	// a notes-only change on a past slot keeps passing
	if _, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:  "ent-1",
		ActorID:   "owner-1",
		Proposals: []domain.Proposal{domain.ModifyProposal{SlotID: out[0].ID, Notes: ptr("bring id")}},
	}); err != nil {
		t.Fatalf("notes change on past slot: %v", err)
	}
}

func TestApply_Capacity(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:      "ent-1",
		EntityOwnerID: "owner-1",
		ActorID:       "owner-1",
		Proposals: []domain.Proposal{
			create(at(6, 9, 0), at(6, 10, 0)),
			create(at(6, 10, 0), at(6, 11, 0)),
			create(at(6, 11, 0), at(6, 12, 0)),
		},
	})
	if !domain.IsCode(err, domain.CodeCapacityExceeded) {
		t.Fatalf("expected capacity_exceeded, got %v", err)
	}

	first := f.apply(t, "ent-1",
		create(at(6, 9, 0), at(6, 10, 0)),
		create(at(6, 10, 0), at(6, 11, 0)),
	)

	// a delete frees room for a create in the same batch
	f.apply(t, "ent-1",
		domain.DeleteProposal{SlotID: first[0].ID},
		create(at(6, 11, 0), at(6, 12, 0)),
	)
	if n := len(f.active(t, "ent-1")); n != 2 {
		t.Fatalf("expected 2 active slots, got %d", n)
	}
}

func TestApply_ModifyAndDelete(t *testing.T) {
	f := newFixture(t, 0)
	seed := f.apply(t, "ent-1",
		create(at(6, 9, 0), at(6, 10, 0)),
		create(at(6, 10, 0), at(6, 11, 0)),
	)

	// the first slot moves into the time freed by deleting the second
	newStart, newEnd := at(6, 10, 0), at(6, 11, 30)
	out := f.apply(t, "ent-1",
		domain.ModifyProposal{SlotID: seed[0].ID, StartAt: &newStart, EndAt: &newEnd},
		domain.DeleteProposal{SlotID: seed[1].ID, Reason: ptr("no longer needed")},
	)

	byID := ids(out)
	moved := byID[seed[0].ID]
	if moved.State != models.SlotStateModified || !moved.StartAt.Equal(newStart) || !moved.EndAt.Equal(newEnd) {
		t.Fatalf("unexpected modified slot: %+v", moved)
	}
	if byID[seed[1].ID].State != models.SlotStateDeleted {
		t.Fatalf("expected deleted slot, got %s", byID[seed[1].ID].State)
	}

	hist, err := f.repo.FindHistory(context.Background(), seed[1].ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	last := hist[len(hist)-1]
	if last.Action != models.SlotActionDelete || last.Reason == nil || *last.Reason != "no longer needed" {
		t.Fatalf("unexpected delete entry: %+v", last)
	}

	f.assertReplay(t, "ent-1")
}

func TestApply_DuplicateTarget(t *testing.T) {
	f := newFixture(t, 0)
	seed := f.apply(t, "ent-1", create(at(6, 9, 0), at(6, 10, 0)))

	_, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID: "ent-1",
		ActorID:  "owner-1",
		Proposals: []domain.Proposal{
			domain.ModifyProposal{SlotID: seed[0].ID, Notes: ptr("a")},
			domain.DeleteProposal{SlotID: seed[0].ID},
		},
	})
	if !domain.IsCode(err, domain.CodeDuplicateTarget) {
		t.Fatalf("expected duplicate_target, got %v", err)
	}
}

func TestApply_UnknownOwner(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:  "ent-unknown",
		ActorID:   "someone",
		Proposals: []domain.Proposal{create(at(6, 9, 0), at(6, 10, 0))},
	})
	if !domain.IsCode(err, domain.CodeMissingField) {
		t.Fatalf("expected missing_field for owner, got %v", err)
	}
}

func TestApply_ConcurrentOverlappingBatches(t *testing.T) {
	f := newFixture(t, 0)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.proposals.Apply(context.Background(), ApplyInput{
				EntityID:      "ent-1",
				EntityOwnerID: "owner-1",
				ActorID:       "owner-1",
				Proposals:     []domain.Proposal{create(at(6, 9, 0), at(6, 10, 0))},
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !domain.IsCode(err, domain.CodeOverlap) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winning batch, got %d", wins)
	}
	if got := len(f.active(t, "ent-1")); got != 1 {
		t.Fatalf("expected one active slot, got %d", got)
	}
}

func TestApply_SlotMustNotCrossMidnight(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.proposals.Apply(ctx, ApplyInput{
		EntityID:      "ent-1",
		EntityOwnerID: "owner-1",
		ActorID:       "owner-1",
		Proposals: []domain.Proposal{
			create(at(10, 23, 0), at(11, 2, 0)),
			create(at(11, 0, 30), at(11, 1, 30)),
		},
	})

	var ve domain.ValidationErrors
	if !asValidation(err, &ve) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if len(ve) != 1 || ve[0].Code != domain.CodeInvalidRange || ve[0].Field != "proposals[0].endAt" {
		t.Fatalf("unexpected errors: %+v", ve)
	}
	if n := len(f.active(t, "ent-1")); n != 0 {
		t.Fatalf("rejected batch stored %d slots", n)
	}

	out := f.apply(t, "ent-1", create(at(10, 23, 0), at(11, 0, 0)))
	if out[0].DayKey != "2030-05-10" {
		t.Fatalf("slot ending at midnight belongs to its start day, got %s", out[0].DayKey)
	}

	end := at(11, 1, 0)
	_, err = f.proposals.Apply(ctx, ApplyInput{
		EntityID:  "ent-1",
		ActorID:   "owner-1",
		Proposals: []domain.Proposal{domain.ModifyProposal{SlotID: out[0].ID, EndAt: &end}},
	})
	if !domain.IsCode(err, domain.CodeInvalidRange) {
		t.Fatalf("expected invalid_range for a modify across midnight, got %v", err)
	}
}
