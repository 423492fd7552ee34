package timeslot

import (
	"context"
	"testing"

	"github.com/BruksfildServices01/slot-scheduler/internal/models"
	"github.com/BruksfildServices01/slot-scheduler/internal/timezone"
)

func TestConsistencyChecker_ReportsAndRepairs(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.apply(t, "ent-1", create(at(6, 9, 0), at(6, 10, 0)))
	f.apply(t, "ent-2", create(at(6, 9, 0), at(6, 10, 0)))

	// 01:30 UTC on the 6th is still the 5th in Sao Paulo
	if err := f.repo.Insert(ctx, &models.TimeSlot{
		EntityID:      "ent-2",
		EntityOwnerID: "owner-1",
		ProposedBy:    "owner-1",
		State:         models.SlotStateApproved,
		StartAt:       at(6, 1, 30),
		EndAt:         at(6, 2, 30),
		DayKey:        "2030-05-06",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	opts := f.opts
	opts.Normalizer = timezone.NewNormalizer("America/Sao_Paulo")
	checker := NewConsistencyChecker(f.repo, nil, 2, opts)

	report, err := checker.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Entities != 2 || report.Checked != 3 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if len(report.Mismatches) != 1 || report.Mismatches[0].ExpectedDayKey != "2030-05-05" {
		t.Fatalf("unexpected mismatches: %+v", report.Mismatches)
	}
	if report.Repaired != 0 {
		t.Fatalf("dry run must not repair")
	}

	report, err = checker.Run(ctx, true)
	if err != nil {
		t.Fatalf("repair run: %v", err)
	}
	if report.Repaired != 1 {
		t.Fatalf("expected 1 repair, got %d", report.Repaired)
	}

	report, err = checker.Run(ctx, false)
	if err != nil {
		t.Fatalf("verify run: %v", err)
	}
	if len(report.Mismatches) != 0 {
		t.Fatalf("expected clean report after repair: %+v", report.Mismatches)
	}
}
