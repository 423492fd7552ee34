package timeslot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/infra/lock"
	"github.com/BruksfildServices01/slot-scheduler/internal/infra/repository"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
	"github.com/BruksfildServices01/slot-scheduler/internal/testutil"
	"github.com/BruksfildServices01/slot-scheduler/internal/timezone"
)

// today for every test is 2030-05-01 in UTC
var baseNow = time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type fixture struct {
	repo       *repository.TimeSlotGormRepository
	proposals  *ProposalEngine
	validation *ValidationEngine
	reschedule *RescheduleCoordinator
	opts       Options
}

func newFixture(t *testing.T, maxActive int) *fixture {
	t.Helper()

	clock := &tickClock{t: baseNow}
	opts := Options{
		Normalizer:     timezone.NewNormalizer("UTC"),
		MaxActiveSlots: maxActive,
		Now:            clock.Now,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	repo := repository.NewTimeSlotGormRepository(testutil.OpenSQLite(t), lock.NewLocalLocker())
	rec := NewHistoryRecorder(opts.Now)

	return &fixture{
		repo:       repo,
		proposals:  NewProposalEngine(repo, rec, nil, opts),
		validation: NewValidationEngine(repo, rec, nil, opts),
		reschedule: NewRescheduleCoordinator(repo, rec, nil, opts),
		opts:       opts,
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2030, 5, day, hour, minute, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func create(start, end time.Time) domain.CreateProposal {
	return domain.CreateProposal{StartAt: start, EndAt: end}
}

func (f *fixture) apply(t *testing.T, entityID string, proposals ...domain.Proposal) []models.TimeSlot {
	t.Helper()

	out, err := f.proposals.Apply(context.Background(), ApplyInput{
		EntityID:      entityID,
		EntityOwnerID: "owner-1",
		ActorID:       "owner-1",
		Proposals:     proposals,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	return out
}

func (f *fixture) active(t *testing.T, entityID string) []models.TimeSlot {
	t.Helper()

	slots, err := f.repo.FindActiveBy(context.Background(), entityID)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	return slots
}

// assertReplay checks that the history of every slot of the entity replays
// to its stored state.
func (f *fixture) assertReplay(t *testing.T, entityID string) {
	t.Helper()
	ctx := context.Background()

	all, err := f.repo.FindAllBy(ctx, entityID)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	for _, s := range all {
		entries, err := f.repo.FindHistory(ctx, s.ID)
		if err != nil {
			t.Fatalf("history %s: %v", s.ID, err)
		}
		got, err := domain.Replay(entries)
		if err != nil {
			t.Fatalf("replay %s: %v", s.ID, err)
		}
		if got != s.State {
			t.Fatalf("slot %s: replay gives %s, stored %s", s.ID, got, s.State)
		}
	}
}

func ids(slots []models.TimeSlot) map[uuid.UUID]models.TimeSlot {
	out := make(map[uuid.UUID]models.TimeSlot, len(slots))
	for _, s := range slots {
		out[s.ID] = s
	}
	return out
}

func asValidation(err error, target *domain.ValidationErrors) bool {
	return errors.As(err, target)
}
