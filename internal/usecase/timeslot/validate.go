package timeslot

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/BruksfildServices01/slot-scheduler/internal/audit"
	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

// Decision is one validator verdict on one slot.
type Decision struct {
	SlotID  uuid.UUID
	ActorID string
	Reason  *string
}

type ItemFailure struct {
	SlotID  uuid.UUID   `json:"slot_id"`
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// BatchResult keeps the slots that transitioned and why the others did not.
type BatchResult struct {
	Succeeded []models.TimeSlot `json:"succeeded"`
	Failed    []ItemFailure     `json:"failed"`
}

type transitionRule struct {
	from          []models.SlotState
	to            models.SlotState
	action        models.SlotAction
	defaultReason string
	auditAction   string
}

var (
	approveRule = transitionRule{
		from:          domain.ApprovableStates,
		to:            models.SlotStateApproved,
		action:        models.SlotActionApprove,
		defaultReason: "Slot approved by validator",
		auditAction:   audit.ActionSlotApproved,
	}
	rejectRule = transitionRule{
		from:          domain.ApprovableStates,
		to:            models.SlotStateRejected,
		action:        models.SlotActionReject,
		defaultReason: "Slot rejected by validator",
		auditAction:   audit.ActionSlotRejected,
	}
)

// ValidationEngine resolves pending slots one by one. Each slot is its own
// atomic unit; a batch never rolls back slots that already succeeded.
type ValidationEngine struct {
	repo     domain.Repository
	recorder *HistoryRecorder
	detector *domain.OverlapDetector
	audit    audit.Sink
	opts     Options
}

func NewValidationEngine(
	repo domain.Repository,
	recorder *HistoryRecorder,
	sink audit.Sink,
	opts Options,
) *ValidationEngine {
	opts = opts.withDefaults()
	if recorder == nil {
		recorder = NewHistoryRecorder(opts.Now)
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	return &ValidationEngine{
		repo:     repo,
		recorder: recorder,
		detector: domain.NewOverlapDetector(opts.Normalizer),
		audit:    sink,
		opts:     opts,
	}
}

// ===============================
// Single slot
// ===============================

func (e *ValidationEngine) ApproveOne(ctx context.Context, d Decision) (*models.TimeSlot, error) {
	return e.transition(ctx, d, approveRule)
}

func (e *ValidationEngine) RejectOne(ctx context.Context, d Decision) (*models.TimeSlot, error) {
	return e.transition(ctx, d, rejectRule)
}

func (e *ValidationEngine) transition(ctx context.Context, d Decision, rule transitionRule) (*models.TimeSlot, error) {
	if errs := checkDecision(d); len(errs) > 0 {
		return nil, errs
	}

	slot, err := e.repo.FindByID(ctx, d.SlotID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("slot %s not found", d.SlotID)
	}
	if err != nil {
		return nil, domain.RepositoryFailure("find slot", err)
	}
	if !slices.Contains(rule.from, slot.State) {
		return nil, domain.AlreadyProcessed("slot %s is already %s", slot.ID, slot.State)
	}

	var (
		updated *models.TimeSlot
		from    models.SlotState
	)

	err = e.repo.Atomic(ctx, slot.EntityID, func(ctx context.Context, tx domain.Store) error {
		cur, err := tx.FindByID(ctx, slot.ID)
		if err != nil {
			return err
		}
		if !slices.Contains(rule.from, cur.State) {
			return domain.AlreadyProcessed("slot %s is already %s", cur.ID, cur.State)
		}
		from = cur.State

		now := e.opts.Now().UTC()
		to := rule.to
		updated, err = tx.Update(ctx, cur.ID, domain.SlotPatch{
			State:     &to,
			Stamp:     &domain.Stamp{Action: rule.action, Actor: d.ActorID, At: now},
			IfStateIn: rule.from,
		})
		if errors.Is(err, domain.ErrStaleState) {
			return domain.AlreadyProcessed("slot %s was resolved concurrently", cur.ID)
		}
		if err != nil {
			return err
		}

		_, err = e.recorder.Record(ctx, tx, HistoryInput{
			SlotID:   cur.ID,
			EntityID: cur.EntityID,
			Action:   rule.action,
			ActorID:  d.ActorID,
			Reason:   reasonOr(d.Reason, rule.defaultReason),
			Changes:  domain.StateChange(cur.State, to).WithStamp(rule.action, d.ActorID, now),
		})
		return err
	})
	if err != nil {
		return nil, domain.RepositoryFailure(string(rule.action)+" slot", err)
	}

	e.audit.Dispatch(audit.Event{
		EntityID:   updated.EntityID,
		ActorID:    d.ActorID,
		Action:     rule.auditAction,
		Resource:   audit.ResourceSlot,
		ResourceID: updated.ID.String(),
		Metadata:   map[string]any{"from": from, "to": updated.State},
	})
	e.opts.Logger.Info("slot resolved",
		"slot_id", updated.ID,
		"entity_id", updated.EntityID,
		"state", updated.State,
		"actor_id", d.ActorID,
	)

	return updated, nil
}

func checkDecision(d Decision) domain.ValidationErrors {
	var errs domain.ValidationErrors
	if d.SlotID == uuid.Nil {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "slotId", Message: "slotId is required", Index: -1})
	}
	if d.ActorID == "" {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "actorId", Message: "actorId is required", Index: -1})
	}
	return errs
}

// ===============================
// Batches
// ===============================

func (e *ValidationEngine) ApproveBatch(ctx context.Context, decisions []Decision) BatchResult {
	return e.batch(ctx, decisions, approveRule)
}

func (e *ValidationEngine) RejectBatch(ctx context.Context, decisions []Decision) BatchResult {
	return e.batch(ctx, decisions, rejectRule)
}

func (e *ValidationEngine) batch(ctx context.Context, decisions []Decision, rule transitionRule) BatchResult {
	res := BatchResult{
		Succeeded: make([]models.TimeSlot, 0, len(decisions)),
		Failed:    []ItemFailure{},
	}

	for _, d := range decisions {
		slot, err := e.transition(ctx, d, rule)
		if err != nil {
			code := domain.CodeOf(err)
			if code == "" {
				code = domain.CodeRepositoryFailure
			}
			res.Failed = append(res.Failed, ItemFailure{SlotID: d.SlotID, Code: code, Message: err.Error()})

			e.opts.Logger.Warn("batch item failed",
				"slot_id", d.SlotID,
				"action", rule.action,
				"code", code,
				"error", err,
			)
			continue
		}
		res.Succeeded = append(res.Succeeded, *slot)
	}

	return res
}

// ===============================
// Restore
// ===============================

// RestoreOne brings a deleted or rejected slot back into the active set.
// The slot must still fit next to the current active slots.
func (e *ValidationEngine) RestoreOne(ctx context.Context, d Decision) (*models.TimeSlot, error) {
	if errs := checkDecision(d); len(errs) > 0 {
		return nil, errs
	}

	slot, err := e.repo.FindByID(ctx, d.SlotID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("slot %s not found", d.SlotID)
	}
	if err != nil {
		return nil, domain.RepositoryFailure("find slot", err)
	}

	var (
		restored *models.TimeSlot
		from     models.SlotState
	)

	err = e.repo.Atomic(ctx, slot.EntityID, func(ctx context.Context, tx domain.Store) error {
		cur, err := tx.FindByID(ctx, slot.ID)
		if err != nil {
			return err
		}
		if !domain.CanRestore(cur.State) {
			return domain.AlreadyProcessed("slot %s is %s; only deleted or rejected slots can be restored", cur.ID, cur.State)
		}
		from = cur.State

		active, err := tx.FindActiveBy(ctx, cur.EntityID)
		if err != nil {
			return err
		}

		var errs domain.ValidationErrors
		if !e.opts.Normalizer.WithinDay(cur.StartAt, cur.EndAt) {
			errs = append(errs, domain.FieldError{
				Code:    domain.CodeInvalidRange,
				Field:   "slotId",
				Message: fmt.Sprintf("slot %s crosses a day boundary", cur.ID),
				Index:   -1,
			})
		}
		if len(active)+1 > e.opts.MaxActiveSlots {
			errs = append(errs, domain.FieldError{
				Code:    domain.CodeCapacityExceeded,
				Field:   "slotId",
				Message: fmt.Sprintf("entity %s already has %d active slots (limit %d)", cur.EntityID, len(active), e.opts.MaxActiveSlots),
				Index:   -1,
			})
		}
		conflicts := e.detector.Detect(domain.Candidate{Index: 0, Interval: domain.IntervalOf(*cur)}, active, nil)
		errs = append(errs, domain.AsFieldErrors(conflicts, func(int) string { return "slotId" })...)
		if len(errs) > 0 {
			return errs
		}

		now := e.opts.Now().UTC()
		to := models.SlotStateRestored
		restored, err = tx.Update(ctx, cur.ID, domain.SlotPatch{
			State:     &to,
			Stamp:     &domain.Stamp{Action: models.SlotActionRestore, Actor: d.ActorID, At: now},
			IfStateIn: domain.RestorableStates,
		})
		if err != nil {
			return err
		}

		_, err = e.recorder.Record(ctx, tx, HistoryInput{
			SlotID:   cur.ID,
			EntityID: cur.EntityID,
			Action:   models.SlotActionRestore,
			ActorID:  d.ActorID,
			Reason:   reasonOr(d.Reason, "Slot restored"),
			Changes:  domain.StateChange(cur.State, to).WithStamp(models.SlotActionRestore, d.ActorID, now),
		})
		return err
	})
	if err != nil {
		return nil, domain.RepositoryFailure("restore slot", err)
	}

	e.audit.Dispatch(audit.Event{
		EntityID:   restored.EntityID,
		ActorID:    d.ActorID,
		Action:     audit.ActionSlotRestored,
		Resource:   audit.ResourceSlot,
		ResourceID: restored.ID.String(),
		Metadata:   map[string]any{"from": from},
	})

	return restored, nil
}
