package timeslot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/BruksfildServices01/slot-scheduler/internal/audit"
	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

const (
	MessageRescheduleApplied = "Reschedule applied immediately."
	MessageReschedulePending = "Reschedule submitted; pending owner validation."
)

// CandidateSlot is one wall-clock interval in the reference zone.
type CandidateSlot struct {
	Date      string  `json:"date"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Notes     *string `json:"notes,omitempty"`
}

type RescheduleInput struct {
	EntityID string

	// Owner data registers an unknown entity and backs up a stored
	// entity that has no owner yet.
	EntityOwnerID    string
	EntityOwnerEmail string

	ActorID    string
	ActorEmail string

	Candidates     []CandidateSlot
	Reason         *string
	AllowPastDates bool
}

// EntitySnapshot is the read model of an entity after a workflow step.
type EntitySnapshot struct {
	ID           string               `json:"id"`
	OwnerID      string               `json:"owner_id"`
	OwnerEmail   string               `json:"owner_email"`
	Status       string               `json:"status"`
	CurrentSlots []models.CurrentSlot `json:"current_slots"`
	ActiveSlots  []models.TimeSlot    `json:"active_slots"`
}

type RescheduleResult struct {
	Entity  EntitySnapshot    `json:"entity"`
	IsOwner bool              `json:"is_owner"`
	Message string            `json:"message"`
	Slots   []models.TimeSlot `json:"slots"`
}

type ResolveDecision string

const (
	ResolveApprove ResolveDecision = "approve"
	ResolveReject  ResolveDecision = "reject"
)

type ResolveInput struct {
	EntityID   string
	ActorID    string
	ActorEmail string
	Decision   ResolveDecision
	Reason     *string
}

// RescheduleCoordinator replaces the whole active schedule of an entity and
// lets its owner accept or roll back a pending replacement.
type RescheduleCoordinator struct {
	repo     domain.Repository
	recorder *HistoryRecorder
	detector *domain.OverlapDetector
	audit    audit.Sink
	opts     Options
}

func NewRescheduleCoordinator(
	repo domain.Repository,
	recorder *HistoryRecorder,
	sink audit.Sink,
	opts Options,
) *RescheduleCoordinator {
	opts = opts.withDefaults()
	if recorder == nil {
		recorder = NewHistoryRecorder(opts.Now)
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	return &RescheduleCoordinator{
		repo:     repo,
		recorder: recorder,
		detector: domain.NewOverlapDetector(opts.Normalizer),
		audit:    sink,
		opts:     opts,
	}
}

// ===============================
// Reschedule
// ===============================

func (c *RescheduleCoordinator) Reschedule(ctx context.Context, in RescheduleInput) (*RescheduleResult, error) {
	candidates, errs := c.checkCandidates(in)
	if len(errs) > 0 {
		return nil, errs
	}

	var result RescheduleResult

	err := c.repo.Atomic(ctx, in.EntityID, func(ctx context.Context, tx domain.Store) error {
		ent, err := c.loadOrRegister(ctx, tx, in)
		if err != nil {
			return err
		}

		now := c.opts.Now().UTC()
		previous, err := tx.FindActiveBy(ctx, in.EntityID)
		if err != nil {
			return err
		}

		for _, s := range previous {
			if err := c.supersede(ctx, tx, s, in, now); err != nil {
				return err
			}
		}

		parents := parentLinks(previous, candidates)

		created := make([]models.TimeSlot, 0, len(candidates))
		for i, cand := range candidates {
			slot := models.TimeSlot{
				ID:            uuid.New(),
				EntityID:      in.EntityID,
				EntityOwnerID: ent.OwnerID,
				ProposedBy:    in.ActorID,
				State:         domain.InitialState(),
				StartAt:       cand.StartAt,
				EndAt:         cand.EndAt,
				DayKey:        cand.DayKey,
				Notes:         in.Candidates[cand.Index].Notes,
				StampAction:   models.SlotActionCreate,
				StampActor:    in.ActorID,
				StampAt:       &now,
			}
			slot.ParentSlotID = parents[i]
			if err := tx.Insert(ctx, &slot); err != nil {
				return err
			}
			if _, err := c.recorder.Record(ctx, tx, HistoryInput{
				SlotID:   slot.ID,
				EntityID: slot.EntityID,
				Action:   models.SlotActionCreate,
				ActorID:  in.ActorID,
				Reason:   in.Reason,
				Changes:  domain.Snapshot(slot).WithStamp(models.SlotActionCreate, in.ActorID, now),
			}); err != nil {
				return err
			}
			created = append(created, slot)
		}

		result.IsOwner = domain.IsOwner(in.ActorID, in.ActorEmail, ent.OwnerID, ent.OwnerEmail)
		result.Slots = created
		result.Message = MessageReschedulePending

		if result.IsOwner {
			result.Message = MessageRescheduleApplied

			before, err := ent.Current()
			if err != nil {
				return fmt.Errorf("decode current slots: %w", err)
			}
			after := currentOf(created)
			if err := tx.SetCurrentSlots(ctx, ent.ID, after); err != nil {
				return err
			}
			if err := c.appendEntityHistory(ctx, tx, ent, in.ActorID, models.EntityActionReschedule, in.Reason, now, map[string]any{
				"previous_slots": before,
				"new_slots":      after,
			}); err != nil {
				return err
			}
		}

		result.Entity, err = snapshotOf(ctx, tx, ent.ID)
		return err
	})
	if err != nil {
		var ve domain.ValidationErrors
		if !errors.As(err, &ve) {
			c.opts.Logger.Error("reschedule failed", "entity_id", in.EntityID, "error", err)
		}
		return nil, domain.RepositoryFailure("reschedule", err)
	}

	action := audit.ActionReschedulePending
	if result.IsOwner {
		action = audit.ActionRescheduleApplied
	}
	c.audit.Dispatch(audit.Event{
		EntityID:   in.EntityID,
		ActorID:    in.ActorID,
		Action:     action,
		Resource:   audit.ResourceEntity,
		ResourceID: in.EntityID,
		Metadata:   map[string]any{"slots": len(result.Slots)},
	})
	c.opts.Logger.Info("reschedule stored",
		"entity_id", in.EntityID,
		"actor_id", in.ActorID,
		"is_owner", result.IsOwner,
		"slots", len(result.Slots),
	)

	return &result, nil
}

// checkCandidates validates the request before any storage access.
func (c *RescheduleCoordinator) checkCandidates(in RescheduleInput) ([]domain.Candidate, domain.ValidationErrors) {
	var errs domain.ValidationErrors

	if in.EntityID == "" {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "entityId", Message: "entityId is required", Index: -1})
	}
	if in.ActorID == "" {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "actorId", Message: "actorId is required", Index: -1})
	}
	if len(in.Candidates) == 0 {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "newSlots", Message: "at least one slot is required", Index: -1})
		return nil, errs
	}
	if len(in.Candidates) > c.opts.MaxActiveSlots {
		errs = append(errs, domain.FieldError{
			Code:    domain.CodeCapacityExceeded,
			Field:   "newSlots",
			Message: fmt.Sprintf("%d slots requested (limit %d)", len(in.Candidates), c.opts.MaxActiveSlots),
			Index:   -1,
		})
	}

	path := func(i int, field string) string {
		if field == "" {
			return fmt.Sprintf("newSlots[%d]", i)
		}
		return fmt.Sprintf("newSlots[%d].%s", i, field)
	}
	add := func(code domain.Code, i int, field, msg string) {
		errs = append(errs, domain.FieldError{Code: code, Field: path(i, field), Message: msg, Index: i})
	}

	today := c.opts.Normalizer.Today(c.opts.Now())
	candidates := make([]domain.Candidate, 0, len(in.Candidates))

	for i, cs := range in.Candidates {
		ok := true
		if cs.Date == "" {
			add(domain.CodeMissingField, i, "date", "date is required")
			ok = false
		}
		if cs.StartTime == "" {
			add(domain.CodeMissingField, i, "startTime", "startTime is required")
			ok = false
		}
		if cs.EndTime == "" {
			add(domain.CodeMissingField, i, "endTime", "endTime is required")
			ok = false
		}
		if !ok {
			continue
		}

		start, err := c.opts.Normalizer.Combine(cs.Date, cs.StartTime)
		if err != nil {
			add(domain.CodeInvalidDate, i, "startTime", fmt.Sprintf("invalid date/time %q %q", cs.Date, cs.StartTime))
			continue
		}
		end, err := c.opts.Normalizer.Combine(cs.Date, cs.EndTime)
		if err != nil {
			add(domain.CodeInvalidDate, i, "endTime", fmt.Sprintf("invalid date/time %q %q", cs.Date, cs.EndTime))
			continue
		}
		if !c.opts.Normalizer.ValidateRange(start, end) {
			add(domain.CodeInvalidRange, i, "endTime", "endTime must be after startTime")
			continue
		}
		if !c.opts.Normalizer.WithinDay(start, end) {
			add(domain.CodeInvalidRange, i, "endTime", "slot must end on the day it starts")
			continue
		}

		cand := c.detector.Candidate(i, start, end)
		if !in.AllowPastDates && cand.DayKey < today {
			add(domain.CodePastDate, i, "date", fmt.Sprintf("day %s is before today (%s)", cand.DayKey, today))
			continue
		}
		candidates = append(candidates, cand)
	}

	conflicts := c.detector.DetectAll(candidates, nil)
	for _, fe := range domain.AsFieldErrors(conflicts, func(i int) string { return path(i, "") }) {
		fe.Message = fmt.Sprintf("overlaps with newSlots[%d]", *fe.ConflictIndex)
		errs = append(errs, fe)
	}

	return candidates, errs
}

// parentLinks pairs each candidate with a superseded slot on the same day,
// earliest with earliest. Candidates on a day with no superseded slot get
// no parent.
func parentLinks(previous []models.TimeSlot, candidates []domain.Candidate) []*uuid.UUID {
	byDay := map[string][]models.TimeSlot{}
	for _, s := range previous {
		byDay[s.DayKey] = append(byDay[s.DayKey], s)
	}
	for _, slots := range byDay {
		sort.SliceStable(slots, func(a, b int) bool { return slots[a].StartAt.Before(slots[b].StartAt) })
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].StartAt.Before(candidates[order[b]].StartAt)
	})

	out := make([]*uuid.UUID, len(candidates))
	for _, i := range order {
		day := candidates[i].DayKey
		if len(byDay[day]) == 0 {
			continue
		}
		id := byDay[day][0].ID
		byDay[day] = byDay[day][1:]
		out[i] = &id
	}
	return out
}

func (c *RescheduleCoordinator) loadOrRegister(ctx context.Context, tx domain.Store, in RescheduleInput) (*models.Entity, error) {
	ent, err := tx.GetEntity(ctx, in.EntityID)
	switch {
	case err == nil:
		if ent.OwnerID == "" && in.EntityOwnerID != "" {
			ent.OwnerID = in.EntityOwnerID
			ent.OwnerEmail = in.EntityOwnerEmail
			if err := tx.SaveEntity(ctx, ent); err != nil {
				return nil, err
			}
		}
		return ent, nil

	case errors.Is(err, domain.ErrNotFound):
		if in.EntityOwnerID == "" {
			return nil, domain.NotFound("entity %s not found", in.EntityID)
		}
		ent = &models.Entity{
			ID:         in.EntityID,
			OwnerID:    in.EntityOwnerID,
			OwnerEmail: in.EntityOwnerEmail,
			Status:     models.EntityStatusScheduled,
		}
		if err := tx.SaveEntity(ctx, ent); err != nil {
			return nil, err
		}
		return tx.GetEntity(ctx, in.EntityID)

	default:
		return nil, err
	}
}

func (c *RescheduleCoordinator) supersede(
	ctx context.Context,
	tx domain.Store,
	s models.TimeSlot,
	in RescheduleInput,
	now time.Time,
) error {
	state := models.SlotStateDeleted
	if _, err := tx.Update(ctx, s.ID, domain.SlotPatch{
		State:     &state,
		Stamp:     &domain.Stamp{Action: models.SlotActionDelete, Actor: in.ActorID, At: now},
		IfStateIn: models.ActiveStates,
	}); err != nil {
		return err
	}
	_, err := c.recorder.Record(ctx, tx, HistoryInput{
		SlotID:   s.ID,
		EntityID: s.EntityID,
		Action:   models.SlotActionDelete,
		ActorID:  in.ActorID,
		Reason:   reasonOr(in.Reason, "Superseded by reschedule"),
		Changes:  domain.StateChange(s.State, state).WithStamp(models.SlotActionDelete, in.ActorID, now),
	})
	return err
}

// ===============================
// Owner resolution
// ===============================

// Resolve lets the owner accept or roll back a pending reschedule. Pending
// slots are active slots that are not part of the current view.
func (c *RescheduleCoordinator) Resolve(ctx context.Context, in ResolveInput) (*EntitySnapshot, error) {
	if in.EntityID == "" || in.ActorID == "" {
		return nil, domain.ValidationErrors{{Code: domain.CodeMissingField, Field: "entityId", Message: "entityId and actorId are required", Index: -1}}
	}
	if in.Decision != ResolveApprove && in.Decision != ResolveReject {
		return nil, domain.ValidationErrors{{Code: domain.CodeMissingField, Field: "decision", Message: "decision must be approve or reject", Index: -1}}
	}

	var snap EntitySnapshot

	err := c.repo.Atomic(ctx, in.EntityID, func(ctx context.Context, tx domain.Store) error {
		ent, err := tx.GetEntity(ctx, in.EntityID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound("entity %s not found", in.EntityID)
		}
		if err != nil {
			return err
		}
		if !domain.IsOwner(in.ActorID, in.ActorEmail, ent.OwnerID, ent.OwnerEmail) {
			return domain.Forbidden("only the owner of entity %s can resolve a reschedule", in.EntityID)
		}

		current, err := ent.Current()
		if err != nil {
			return fmt.Errorf("decode current slots: %w", err)
		}
		active, err := tx.FindActiveBy(ctx, in.EntityID)
		if err != nil {
			return err
		}

		inCurrent := make(map[uuid.UUID]bool, len(current))
		for _, cs := range current {
			inCurrent[cs.SlotID] = true
		}
		var pending []models.TimeSlot
		for _, s := range active {
			if !inCurrent[s.ID] {
				pending = append(pending, s)
			}
		}
		if len(pending) == 0 {
			return domain.AlreadyProcessed("entity %s has no pending reschedule", in.EntityID)
		}

		now := c.opts.Now().UTC()
		if in.Decision == ResolveApprove {
			err = c.approvePending(ctx, tx, ent, in, current, active, now)
		} else {
			err = c.rejectPending(ctx, tx, ent, in, current, active, pending, now)
		}
		if err != nil {
			return err
		}

		snap, err = snapshotOf(ctx, tx, ent.ID)
		return err
	})
	if err != nil {
		return nil, domain.RepositoryFailure("resolve reschedule", err)
	}

	action := audit.ActionRescheduleApproved
	if in.Decision == ResolveReject {
		action = audit.ActionRescheduleRejected
	}
	c.audit.Dispatch(audit.Event{
		EntityID:   in.EntityID,
		ActorID:    in.ActorID,
		Action:     action,
		Resource:   audit.ResourceEntity,
		ResourceID: in.EntityID,
		Metadata:   map[string]any{"current_slots": len(snap.CurrentSlots)},
	})

	return &snap, nil
}

func (c *RescheduleCoordinator) approvePending(
	ctx context.Context,
	tx domain.Store,
	ent *models.Entity,
	in ResolveInput,
	before []models.CurrentSlot,
	active []models.TimeSlot,
	now time.Time,
) error {
	reason := reasonOr(in.Reason, "Reschedule approved by owner")
	stamp := &domain.Stamp{Action: models.SlotActionApprove, Actor: in.ActorID, At: now}

	approved := make([]models.TimeSlot, 0, len(active))
	for _, s := range active {
		patch := domain.SlotPatch{Stamp: stamp}
		if domain.CanApprove(s.State) {
			to := models.SlotStateApproved
			patch.State = &to
			patch.IfStateIn = domain.ApprovableStates
		}

		updated, err := tx.Update(ctx, s.ID, patch)
		if err != nil {
			return err
		}
		if patch.State != nil {
			if _, err := c.recorder.Record(ctx, tx, HistoryInput{
				SlotID:   s.ID,
				EntityID: s.EntityID,
				Action:   models.SlotActionApprove,
				ActorID:  in.ActorID,
				Reason:   reason,
				Changes:  domain.StateChange(s.State, updated.State).WithStamp(models.SlotActionApprove, in.ActorID, now),
			}); err != nil {
				return err
			}
		}
		approved = append(approved, *updated)
	}

	after := currentOf(approved)
	if err := tx.SetCurrentSlots(ctx, ent.ID, after); err != nil {
		return err
	}
	return c.appendEntityHistory(ctx, tx, ent, in.ActorID, models.EntityActionRescheduleApproved, reason, now, map[string]any{
		"previous_slots": before,
		"new_slots":      after,
	})
}

// rejectPending drops the pending slots and brings back every current slot
// the reschedule had superseded, as fresh restored rows.
func (c *RescheduleCoordinator) rejectPending(
	ctx context.Context,
	tx domain.Store,
	ent *models.Entity,
	in ResolveInput,
	before []models.CurrentSlot,
	active []models.TimeSlot,
	pending []models.TimeSlot,
	now time.Time,
) error {
	reason := reasonOr(in.Reason, "Reschedule rejected by owner")

	for _, s := range pending {
		to := models.SlotStateRejected
		if _, err := tx.Update(ctx, s.ID, domain.SlotPatch{
			State:     &to,
			Stamp:     &domain.Stamp{Action: models.SlotActionReject, Actor: in.ActorID, At: now},
			IfStateIn: models.ActiveStates,
		}); err != nil {
			return err
		}
		if _, err := c.recorder.Record(ctx, tx, HistoryInput{
			SlotID:   s.ID,
			EntityID: s.EntityID,
			Action:   models.SlotActionReject,
			ActorID:  in.ActorID,
			Reason:   reason,
			Changes:  domain.StateChange(s.State, to).WithStamp(models.SlotActionReject, in.ActorID, now),
		}); err != nil {
			return err
		}
	}

	stillActive := make(map[uuid.UUID]models.TimeSlot, len(active))
	for _, s := range active {
		stillActive[s.ID] = s
	}

	after := make([]models.CurrentSlot, 0, len(before))
	for _, cs := range before {
		if s, ok := stillActive[cs.SlotID]; ok {
			after = append(after, models.CurrentSlotOf(s))
			continue
		}

		restored, err := c.restoreFrom(ctx, tx, ent, cs, in.ActorID, reason, now)
		if err != nil {
			return err
		}
		after = append(after, models.CurrentSlotOf(*restored))
	}

	if err := tx.SetCurrentSlots(ctx, ent.ID, after); err != nil {
		return err
	}
	return c.appendEntityHistory(ctx, tx, ent, in.ActorID, models.EntityActionRescheduleRejected, reason, now, map[string]any{
		"rejected_slots": currentOf(pending),
		"restored_slots": after,
	})
}

func (c *RescheduleCoordinator) restoreFrom(
	ctx context.Context,
	tx domain.Store,
	ent *models.Entity,
	cs models.CurrentSlot,
	actorID string,
	reason *string,
	now time.Time,
) (*models.TimeSlot, error) {

	parent := cs.SlotID
	slot := &models.TimeSlot{
		ID:            uuid.New(),
		EntityID:      ent.ID,
		EntityOwnerID: ent.OwnerID,
		ProposedBy:    actorID,
		ParentSlotID:  &parent,
		State:         models.SlotStateRestored,
		StartAt:       cs.StartAt.UTC(),
		EndAt:         cs.EndAt.UTC(),
		DayKey:        cs.DayKey,
		StampAction:   models.SlotActionRestore,
		StampActor:    actorID,
		StampAt:       &now,
	}

	if old, err := tx.FindByID(ctx, cs.SlotID); err == nil {
		slot.Notes = old.Notes
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if err := tx.Insert(ctx, slot); err != nil {
		return nil, err
	}
	if _, err := c.recorder.Record(ctx, tx, HistoryInput{
		SlotID:   slot.ID,
		EntityID: slot.EntityID,
		Action:   models.SlotActionRestore,
		ActorID:  actorID,
		Reason:   reason,
		Changes:  domain.Snapshot(*slot).WithStamp(models.SlotActionRestore, actorID, now),
	}); err != nil {
		return nil, err
	}
	return slot, nil
}

// ===============================
// Read model
// ===============================

func (c *RescheduleCoordinator) Snapshot(ctx context.Context, entityID string) (*EntitySnapshot, error) {
	snap, err := snapshotOf(ctx, c.repo, entityID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("entity %s not found", entityID)
	}
	if err != nil {
		return nil, domain.RepositoryFailure("load entity", err)
	}
	return &snap, nil
}

func snapshotOf(ctx context.Context, store domain.Store, entityID string) (EntitySnapshot, error) {
	ent, err := store.GetEntity(ctx, entityID)
	if err != nil {
		return EntitySnapshot{}, err
	}
	current, err := ent.Current()
	if err != nil {
		return EntitySnapshot{}, fmt.Errorf("decode current slots: %w", err)
	}
	active, err := store.FindActiveBy(ctx, entityID)
	if err != nil {
		return EntitySnapshot{}, err
	}
	if active == nil {
		active = []models.TimeSlot{}
	}
	return EntitySnapshot{
		ID:           ent.ID,
		OwnerID:      ent.OwnerID,
		OwnerEmail:   ent.OwnerEmail,
		Status:       ent.Status,
		CurrentSlots: current,
		ActiveSlots:  active,
	}, nil
}

func (c *RescheduleCoordinator) appendEntityHistory(
	ctx context.Context,
	tx domain.Store,
	ent *models.Entity,
	actorID string,
	action string,
	reason *string,
	now time.Time,
	details map[string]any,
) error {
	b, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode entity history: %w", err)
	}
	return tx.AppendEntityHistory(ctx, &models.EntityHistory{
		EntityID:   ent.ID,
		ActorID:    actorID,
		Action:     action,
		FromStatus: ent.Status,
		ToStatus:   ent.Status,
		Reason:     reason,
		Details:    datatypes.JSON(b),
		CreatedAt:  now,
	})
}

func currentOf(slots []models.TimeSlot) []models.CurrentSlot {
	out := make([]models.CurrentSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, models.CurrentSlotOf(s))
	}
	return out
}
