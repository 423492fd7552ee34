package timeslot

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/BruksfildServices01/slot-scheduler/internal/audit"
	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
)

// Mismatch is a stored slot whose day key or range disagrees with its instants.
type Mismatch struct {
	SlotID         string `json:"slot_id"`
	EntityID       string `json:"entity_id"`
	StoredDayKey   string `json:"stored_day_key"`
	ExpectedDayKey string `json:"expected_day_key"`
	InvalidRange   bool   `json:"invalid_range"`
}

type ConsistencyReport struct {
	Entities   int        `json:"entities"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
	Repaired   int        `json:"repaired"`
}

// ConsistencyChecker recomputes day keys from the stored instants, for
// example after the reference zone changed.
type ConsistencyChecker struct {
	repo    domain.Repository
	audit   audit.Sink
	opts    Options
	workers int
}

func NewConsistencyChecker(repo domain.Repository, sink audit.Sink, workers int, opts Options) *ConsistencyChecker {
	if workers <= 0 {
		workers = 4
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	return &ConsistencyChecker{repo: repo, audit: sink, opts: opts.withDefaults(), workers: workers}
}

// Run scans every entity. With repair set, wrong day keys are rewritten;
// invalid ranges are only reported.
func (c *ConsistencyChecker) Run(ctx context.Context, repair bool) (*ConsistencyReport, error) {
	ids, err := c.repo.ListEntityIDs(ctx)
	if err != nil {
		return nil, domain.RepositoryFailure("list entities", err)
	}

	var (
		mu     sync.Mutex
		report = &ConsistencyReport{Entities: len(ids), Mismatches: []Mismatch{}}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, id := range ids {
		id := id // per-iteration copy; go.mod targets go1.21 (pre-1.22 loop semantics)
		g.Go(func() error {
			checked, found, repaired, err := c.checkEntity(ctx, id, repair)
			if err != nil {
				return err
			}

			mu.Lock()
			report.Checked += checked
			report.Mismatches = append(report.Mismatches, found...)
			report.Repaired += repaired
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, domain.RepositoryFailure("consistency check", err)
	}

	sort.Slice(report.Mismatches, func(i, j int) bool {
		a, b := report.Mismatches[i], report.Mismatches[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.SlotID < b.SlotID
	})

	c.opts.Logger.Info("consistency check finished",
		"entities", report.Entities,
		"checked", report.Checked,
		"mismatches", len(report.Mismatches),
		"repaired", report.Repaired,
	)
	return report, nil
}

func (c *ConsistencyChecker) checkEntity(ctx context.Context, entityID string, repair bool) (int, []Mismatch, int, error) {
	var (
		checked  int
		found    []Mismatch
		repaired int
	)

	err := c.repo.Atomic(ctx, entityID, func(ctx context.Context, tx domain.Store) error {
		slots, err := tx.FindAllBy(ctx, entityID)
		if err != nil {
			return err
		}
		checked = len(slots)

		for _, s := range slots {
			expected := c.opts.Normalizer.DayKeyOf(s.StartAt)
			badRange := !c.opts.Normalizer.ValidateRange(s.StartAt, s.EndAt)
			if expected == s.DayKey && !badRange {
				continue
			}

			found = append(found, Mismatch{
				SlotID:         s.ID.String(),
				EntityID:       s.EntityID,
				StoredDayKey:   s.DayKey,
				ExpectedDayKey: expected,
				InvalidRange:   badRange,
			})

			if !repair || expected == s.DayKey {
				continue
			}
			if _, err := tx.Update(ctx, s.ID, domain.SlotPatch{DayKey: &expected}); err != nil {
				return err
			}
			repaired++
		}
		return nil
	})
	if err != nil {
		return 0, nil, 0, err
	}

	if repaired > 0 {
		c.audit.Dispatch(audit.Event{
			EntityID:   entityID,
			ActorID:    "system",
			Action:     audit.ActionDayKeyRepaired,
			Resource:   audit.ResourceEntity,
			ResourceID: entityID,
			Metadata:   map[string]any{"repaired": repaired},
		})
	}
	return checked, found, repaired, nil
}
