package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/dto"
	"github.com/BruksfildServices01/slot-scheduler/internal/httperr"
	"github.com/BruksfildServices01/slot-scheduler/internal/httpresp"
	"github.com/BruksfildServices01/slot-scheduler/internal/middleware"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
	ucTimeSlot "github.com/BruksfildServices01/slot-scheduler/internal/usecase/timeslot"
)

// ======================================================
// HANDLER
// ======================================================

type TimeSlotHandler struct {
	proposals  *ucTimeSlot.ProposalEngine
	validation *ucTimeSlot.ValidationEngine
	slots      domain.SlotStore
	parser     domain.InstantParser
}

func NewTimeSlotHandler(
	proposals *ucTimeSlot.ProposalEngine,
	validation *ucTimeSlot.ValidationEngine,
	slots domain.SlotStore,
	parser domain.InstantParser,
) *TimeSlotHandler {
	return &TimeSlotHandler{
		proposals:  proposals,
		validation: validation,
		slots:      slots,
		parser:     parser,
	}
}

// ======================================================
// PROPOSALS
// ======================================================

func (h *TimeSlotHandler) Propose(c *gin.Context) {
	actorID, _, _ := middleware.Actor(c)
	entityID := c.Param("entityId")

	var req dto.ProposalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "Invalid JSON body.")
		return
	}

	proposals, errs := domain.DecodeProposals(req.Proposals, h.parser)
	if len(errs) > 0 {
		httperr.FromError(c, errs)
		return
	}

	slots, err := h.proposals.Apply(c.Request.Context(), ucTimeSlot.ApplyInput{
		EntityID:       entityID,
		EntityOwnerID:  req.EntityOwnerID,
		ActorID:        actorID,
		Proposals:      proposals,
		AllowPastDates: req.AllowPastDates,
	})
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	httpresp.Created(c, gin.H{"slots": slots})
}

// ======================================================
// QUERIES
// ======================================================

// ListByEntity accepts state=active, a comma separated list of states, or
// nothing for every slot.
func (h *TimeSlotHandler) ListByEntity(c *gin.Context) {
	entityID := c.Param("entityId")
	filter := strings.TrimSpace(c.Query("state"))

	var (
		slots []models.TimeSlot
		err   error
	)

	switch filter {
	case "active":
		slots, err = h.slots.FindActiveBy(c.Request.Context(), entityID)
	case "":
		slots, err = h.slots.FindAllBy(c.Request.Context(), entityID)
	default:
		var states []models.SlotState
		for _, raw := range strings.Split(filter, ",") {
			s := models.SlotState(strings.TrimSpace(raw))
			if !s.IsValid() {
				httperr.BadRequest(c, string(domain.CodeInvalidField), "Unknown slot state: "+raw)
				return
			}
			states = append(states, s)
		}
		slots, err = h.slots.FindAllBy(c.Request.Context(), entityID, states...)
	}
	if err != nil {
		httperr.FromError(c, domain.RepositoryFailure("list slots", err))
		return
	}

	httpresp.List(c, slots)
}

func (h *TimeSlotHandler) History(c *gin.Context) {
	slotID, ok := slotIDParam(c)
	if !ok {
		return
	}

	slot, err := h.slots.FindByID(c.Request.Context(), slotID)
	if errors.Is(err, domain.ErrNotFound) {
		httperr.NotFound(c, string(domain.CodeNotFound), "Slot not found.")
		return
	}
	if err != nil {
		httperr.FromError(c, domain.RepositoryFailure("find slot", err))
		return
	}

	entries, err := h.slots.FindHistory(c.Request.Context(), slotID)
	if err != nil {
		httperr.FromError(c, domain.RepositoryFailure("load history", err))
		return
	}

	resp := dto.SlotHistoryResponse{
		SlotID:       slot.ID,
		State:        slot.State,
		ReplayedFrom: len(entries),
		History:      dto.SlotHistoryFrom(entries),
	}

	replayed, err := domain.Replay(entries)
	switch {
	case err != nil:
		resp.ReplayError = err.Error()
	case replayed != slot.State:
		resp.ReplayedState = replayed
		resp.ReplayError = fmt.Sprintf("history replays to %s, stored state is %s", replayed, slot.State)
	default:
		resp.ReplayedState = replayed
		resp.Consistent = true
	}

	httpresp.OK(c, resp)
}

// ======================================================
// VALIDATION
// ======================================================

func (h *TimeSlotHandler) Approve(c *gin.Context) {
	h.decide(c, h.validation.ApproveOne)
}

func (h *TimeSlotHandler) Reject(c *gin.Context) {
	h.decide(c, h.validation.RejectOne)
}

func (h *TimeSlotHandler) Restore(c *gin.Context) {
	h.decide(c, h.validation.RestoreOne)
}

func (h *TimeSlotHandler) decide(
	c *gin.Context,
	fn func(ctx context.Context, d ucTimeSlot.Decision) (*models.TimeSlot, error),
) {
	actorID, _, _ := middleware.Actor(c)

	slotID, ok := slotIDParam(c)
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	slot, err := fn(c.Request.Context(), ucTimeSlot.Decision{
		SlotID:  slotID,
		ActorID: actorID,
		Reason:  req.Reason,
	})
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	httpresp.OK(c, slot)
}

func (h *TimeSlotHandler) ApproveBatch(c *gin.Context) {
	h.decideBatch(c, h.validation.ApproveBatch)
}

func (h *TimeSlotHandler) RejectBatch(c *gin.Context) {
	h.decideBatch(c, h.validation.RejectBatch)
}

// decideBatch reports unparsable ids as failed items next to the engine's
// own failures.
func (h *TimeSlotHandler) decideBatch(
	c *gin.Context,
	fn func(ctx context.Context, decisions []ucTimeSlot.Decision) ucTimeSlot.BatchResult,
) {
	actorID, _, _ := middleware.Actor(c)

	var req dto.BatchDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "Invalid JSON body.")
		return
	}
	if len(req.Items) == 0 {
		httperr.BadRequest(c, string(domain.CodeMissingField), "At least one item is required.")
		return
	}

	var (
		decisions = make([]ucTimeSlot.Decision, 0, len(req.Items))
		invalid   []ucTimeSlot.ItemFailure
	)
	for _, item := range req.Items {
		id, err := uuid.Parse(strings.TrimSpace(item.SlotID))
		if err != nil {
			invalid = append(invalid, ucTimeSlot.ItemFailure{
				Code:    domain.CodeInvalidField,
				Message: "slotId " + item.SlotID + " is not a valid identifier",
			})
			continue
		}
		decisions = append(decisions, ucTimeSlot.Decision{SlotID: id, ActorID: actorID, Reason: item.Reason})
	}

	res := fn(c.Request.Context(), decisions)
	res.Failed = append(res.Failed, invalid...)

	httpresp.OK(c, res)
}

// ======================================================
// HELPERS
// ======================================================

func slotIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.BadRequest(c, string(domain.CodeInvalidField), "Invalid slot id.")
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, out any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		httperr.BadRequest(c, "invalid_request", "Invalid JSON body.")
		return false
	}
	return true
}
