package timeslot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BruksfildServices01/slot-scheduler/internal/audit"
	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

type ApplyInput struct {
	EntityID string

	// EntityOwnerID falls back to the stored entity when empty.
	EntityOwnerID string
	ActorID       string

	Proposals      []domain.Proposal
	AllowPastDates bool
}

// ProposalEngine validates and applies a batch of create/modify/delete
// proposals for one entity. A batch is applied whole or not at all.
type ProposalEngine struct {
	repo     domain.Repository
	recorder *HistoryRecorder
	detector *domain.OverlapDetector
	audit    audit.Sink
	opts     Options
}

func NewProposalEngine(
	repo domain.Repository,
	recorder *HistoryRecorder,
	sink audit.Sink,
	opts Options,
) *ProposalEngine {
	opts = opts.withDefaults()
	if recorder == nil {
		recorder = NewHistoryRecorder(opts.Now)
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	return &ProposalEngine{
		repo:     repo,
		recorder: recorder,
		detector: domain.NewOverlapDetector(opts.Normalizer),
		audit:    sink,
		opts:     opts,
	}
}

// ===============================
// Apply
// ===============================

func (e *ProposalEngine) Apply(ctx context.Context, in ApplyInput) ([]models.TimeSlot, error) {
	if errs := checkApplyInput(in); len(errs) > 0 {
		return nil, errs
	}

	var touched []models.TimeSlot

	err := e.repo.Atomic(ctx, in.EntityID, func(ctx context.Context, tx domain.Store) error {
		active, err := tx.FindActiveBy(ctx, in.EntityID)
		if err != nil {
			return err
		}

		ownerID, err := e.resolveOwner(ctx, tx, in, active)
		if err != nil {
			return err
		}

		ops, errs := e.plan(in, active)
		if len(errs) > 0 {
			return errs
		}

		now := e.opts.Now().UTC()
		touched = make([]models.TimeSlot, 0, len(ops))
		for _, op := range ops {
			slot, err := e.applyOp(ctx, tx, in, ownerID, op, now)
			if err != nil {
				return err
			}
			touched = append(touched, *slot)
		}
		return nil
	})

	if err != nil {
		var ve domain.ValidationErrors
		if errors.As(err, &ve) {
			e.opts.Logger.Info("proposals rejected",
				"entity_id", in.EntityID,
				"actor_id", in.ActorID,
				"errors", len(ve),
			)
			e.audit.Dispatch(audit.Event{
				EntityID:   in.EntityID,
				ActorID:    in.ActorID,
				Action:     audit.ActionProposalRejected,
				Resource:   audit.ResourceEntity,
				ResourceID: in.EntityID,
				Metadata:   map[string]any{"errors": ve},
			})
			return nil, err
		}
		e.opts.Logger.Error("apply proposals failed",
			"entity_id", in.EntityID,
			"error", err,
		)
		return nil, domain.RepositoryFailure("apply proposals", err)
	}

	ids := make([]string, 0, len(touched))
	for _, s := range touched {
		ids = append(ids, s.ID.String())
	}
	e.audit.Dispatch(audit.Event{
		EntityID:   in.EntityID,
		ActorID:    in.ActorID,
		Action:     audit.ActionSlotsProposed,
		Resource:   audit.ResourceEntity,
		ResourceID: in.EntityID,
		Metadata:   map[string]any{"count": len(touched), "slot_ids": ids},
	})
	e.opts.Logger.Info("proposals applied",
		"entity_id", in.EntityID,
		"actor_id", in.ActorID,
		"count", len(touched),
	)

	return touched, nil
}

func checkApplyInput(in ApplyInput) domain.ValidationErrors {
	var errs domain.ValidationErrors
	if in.EntityID == "" {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "entityId", Message: "entityId is required", Index: -1})
	}
	if in.ActorID == "" {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "actorId", Message: "actorId is required", Index: -1})
	}
	if len(in.Proposals) == 0 {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "proposals", Message: "at least one proposal is required", Index: -1})
	}
	return errs
}

// resolveOwner prefers the input, then the entity record, then the owner
// stamped on the entity's active slots.
func (e *ProposalEngine) resolveOwner(
	ctx context.Context,
	tx domain.Store,
	in ApplyInput,
	active []models.TimeSlot,
) (string, error) {
	if in.EntityOwnerID != "" {
		return in.EntityOwnerID, nil
	}

	ent, err := tx.GetEntity(ctx, in.EntityID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if ent != nil && ent.OwnerID != "" {
		return ent.OwnerID, nil
	}

	for _, s := range active {
		if s.EntityOwnerID != "" {
			return s.EntityOwnerID, nil
		}
	}

	return "", domain.ValidationErrors{{
		Code:    domain.CodeMissingField,
		Field:   "entityOwnerId",
		Message: fmt.Sprintf("entity %s has no known owner", in.EntityID),
		Index:   -1,
	}}
}

// ===============================
// Validation
// ===============================

type plannedOp struct {
	index    int
	proposal domain.Proposal
	target   *models.TimeSlot
	interval domain.Interval
}

// plan checks every proposal against the active slots and collects all
// problems. The returned ops are only meaningful when errs is empty.
func (e *ProposalEngine) plan(in ApplyInput, active []models.TimeSlot) ([]plannedOp, domain.ValidationErrors) {
	var (
		errs       domain.ValidationErrors
		ops        = make([]plannedOp, 0, len(in.Proposals))
		candidates []domain.Candidate
		superseded = map[uuid.UUID]bool{}
		targeted   = map[uuid.UUID]int{}
		byID       = make(map[uuid.UUID]models.TimeSlot, len(active))
		creates    int
		deletes    int
		today      = e.opts.Normalizer.Today(e.opts.Now())
	)

	for _, s := range active {
		byID[s.ID] = s
	}

	add := func(code domain.Code, i int, field, msg string) {
		errs = append(errs, domain.FieldError{Code: code, Field: domain.FieldPath(i, field), Message: msg, Index: i})
	}

	target := func(i int, id uuid.UUID) (*models.TimeSlot, bool) {
		if id == uuid.Nil {
			add(domain.CodeMissingField, i, "slotId", "slotId is required")
			return nil, false
		}
		if first, dup := targeted[id]; dup {
			add(domain.CodeDuplicateTarget, i, "slotId", fmt.Sprintf("slot %s is already targeted by proposals[%d]", id, first))
			return nil, false
		}
		targeted[id] = i

		s, ok := byID[id]
		if !ok {
			add(domain.CodeNotFound, i, "slotId", fmt.Sprintf("slot %s is not an active slot of entity %s", id, in.EntityID))
			return nil, false
		}
		return &s, true
	}

	interval := func(i int, start, end time.Time, checkPast bool) (domain.Candidate, bool) {
		if !e.opts.Normalizer.ValidateRange(start, end) {
			add(domain.CodeInvalidRange, i, "endAt", "endAt must be after startAt")
			return domain.Candidate{}, false
		}
		if !e.opts.Normalizer.WithinDay(start, end) {
			add(domain.CodeInvalidRange, i, "endAt", "slot must end on the day it starts")
			return domain.Candidate{}, false
		}
		c := e.detector.Candidate(i, start, end)
		if checkPast && !in.AllowPastDates && c.DayKey < today {
			add(domain.CodePastDate, i, "startAt", fmt.Sprintf("day %s is before today (%s)", c.DayKey, today))
			return domain.Candidate{}, false
		}
		return c, true
	}

	for i, p := range in.Proposals {
		switch p := p.(type) {

		case domain.CreateProposal:
			creates++

			ok := true
			if p.EntityID != "" && p.EntityID != in.EntityID {
				add(domain.CodeEntityMismatch, i, "entityId", fmt.Sprintf("proposal targets entity %s, batch is for %s", p.EntityID, in.EntityID))
				ok = false
			}
			if p.StartAt.IsZero() {
				add(domain.CodeMissingField, i, "startAt", "startAt is required")
				ok = false
			}
			if p.EndAt.IsZero() {
				add(domain.CodeMissingField, i, "endAt", "endAt is required")
				ok = false
			}
			if !ok {
				continue
			}

			c, ok := interval(i, p.StartAt.UTC(), p.EndAt.UTC(), true)
			if !ok {
				continue
			}
			candidates = append(candidates, c)
			ops = append(ops, plannedOp{index: i, proposal: p, interval: c.Interval})

		case domain.ModifyProposal:
			if p.StartAt == nil && p.EndAt == nil && p.Notes == nil {
				add(domain.CodeMissingField, i, "", "modify requires startAt, endAt or notes")
				continue
			}

			t, ok := target(i, p.SlotID)
			if !ok {
				continue
			}
			superseded[t.ID] = true

			start, end := t.StartAt.UTC(), t.EndAt.UTC()
			if p.StartAt != nil {
				start = p.StartAt.UTC()
			}
			if p.EndAt != nil {
				end = p.EndAt.UTC()
			}

			c, ok := interval(i, start, end, p.StartAt != nil || p.EndAt != nil)
			if !ok {
				continue
			}
			candidates = append(candidates, c)
			ops = append(ops, plannedOp{index: i, proposal: p, target: t, interval: c.Interval})

		case domain.DeleteProposal:
			t, ok := target(i, p.SlotID)
			if !ok {
				continue
			}
			deletes++
			superseded[t.ID] = true
			ops = append(ops, plannedOp{index: i, proposal: p, target: t})

		default:
			add(domain.CodeInvalidField, i, "op", "unsupported proposal")
		}
	}

	if projected := len(active) - deletes + creates; projected > e.opts.MaxActiveSlots {
		errs = append(errs, domain.FieldError{
			Code:    domain.CodeCapacityExceeded,
			Field:   "proposals",
			Message: fmt.Sprintf("entity %s would have %d active slots (limit %d)", in.EntityID, projected, e.opts.MaxActiveSlots),
			Index:   -1,
		})
	}

	remaining := make([]models.TimeSlot, 0, len(active))
	for _, s := range active {
		if !superseded[s.ID] {
			remaining = append(remaining, s)
		}
	}
	conflicts := e.detector.DetectAll(candidates, remaining)
	errs = append(errs, domain.AsFieldErrors(conflicts, func(i int) string {
		return domain.FieldPath(i, "")
	})...)

	return ops, errs
}

// ===============================
// Persistence
// ===============================

func (e *ProposalEngine) applyOp(
	ctx context.Context,
	tx domain.Store,
	in ApplyInput,
	ownerID string,
	op plannedOp,
	now time.Time,
) (*models.TimeSlot, error) {

	switch p := op.proposal.(type) {

	case domain.CreateProposal:
		slot := &models.TimeSlot{
			ID:            uuid.New(),
			EntityID:      in.EntityID,
			EntityOwnerID: ownerID,
			ProposedBy:    in.ActorID,
			State:         domain.InitialState(),
			StartAt:       op.interval.StartAt,
			EndAt:         op.interval.EndAt,
			DayKey:        op.interval.DayKey,
			Notes:         p.Notes,
			StampAction:   models.SlotActionCreate,
			StampActor:    in.ActorID,
			StampAt:       &now,
		}
		if err := tx.Insert(ctx, slot); err != nil {
			return nil, err
		}
		if _, err := e.recorder.Record(ctx, tx, HistoryInput{
			SlotID:   slot.ID,
			EntityID: slot.EntityID,
			Action:   models.SlotActionCreate,
			ActorID:  in.ActorID,
			Changes:  domain.Snapshot(*slot).WithStamp(models.SlotActionCreate, in.ActorID, now),
		}); err != nil {
			return nil, err
		}
		return slot, nil

	case domain.ModifyProposal:
		before := *op.target
		state := models.SlotStateModified
		start, end, day := op.interval.StartAt, op.interval.EndAt, op.interval.DayKey

		after, err := tx.Update(ctx, before.ID, domain.SlotPatch{
			StartAt:    &start,
			EndAt:      &end,
			DayKey:     &day,
			Notes:      p.Notes,
			State:      &state,
			ProposedBy: &in.ActorID,
			Stamp:      &domain.Stamp{Action: models.SlotActionModify, Actor: in.ActorID, At: now},
			IfStateIn:  models.ActiveStates,
		})
		if err != nil {
			return nil, err
		}
		if _, err := e.recorder.Record(ctx, tx, HistoryInput{
			SlotID:   after.ID,
			EntityID: after.EntityID,
			Action:   models.SlotActionModify,
			ActorID:  in.ActorID,
			Changes:  domain.Diff(before, *after).WithStamp(models.SlotActionModify, in.ActorID, now),
		}); err != nil {
			return nil, err
		}
		return after, nil

	case domain.DeleteProposal:
		before := *op.target
		state := models.SlotStateDeleted

		after, err := tx.Update(ctx, before.ID, domain.SlotPatch{
			State:     &state,
			Stamp:     &domain.Stamp{Action: models.SlotActionDelete, Actor: in.ActorID, At: now},
			IfStateIn: models.ActiveStates,
		})
		if err != nil {
			return nil, err
		}
		if _, err := e.recorder.Record(ctx, tx, HistoryInput{
			SlotID:   after.ID,
			EntityID: after.EntityID,
			Action:   models.SlotActionDelete,
			ActorID:  in.ActorID,
			Reason:   p.Reason,
			Changes:  domain.StateChange(before.State, state).WithStamp(models.SlotActionDelete, in.ActorID, now),
		}); err != nil {
			return nil, err
		}
		return after, nil
	}

	return nil, fmt.Errorf("unsupported proposal at index %d", op.index)
}
