package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/slot-scheduler/internal/dto"
	"github.com/BruksfildServices01/slot-scheduler/internal/httperr"
	"github.com/BruksfildServices01/slot-scheduler/internal/httpresp"
	"github.com/BruksfildServices01/slot-scheduler/internal/middleware"
	ucTimeSlot "github.com/BruksfildServices01/slot-scheduler/internal/usecase/timeslot"
)

// ======================================================
// HANDLER
// ======================================================

type EntityHandler struct {
	coordinator *ucTimeSlot.RescheduleCoordinator
}

func NewEntityHandler(coordinator *ucTimeSlot.RescheduleCoordinator) *EntityHandler {
	return &EntityHandler{coordinator: coordinator}
}

// ======================================================
// ENTITY
// ======================================================

func (h *EntityHandler) Upsert(c *gin.Context) {
	var req dto.EntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "Invalid JSON body.")
		return
	}

	snap, err := h.coordinator.Register(c.Request.Context(), ucTimeSlot.RegisterInput{
		EntityID:   c.Param("entityId"),
		OwnerID:    req.OwnerID,
		OwnerEmail: req.OwnerEmail,
		Status:     req.Status,
	})
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	httpresp.OK(c, snap)
}

func (h *EntityHandler) Get(c *gin.Context) {
	snap, err := h.coordinator.Snapshot(c.Request.Context(), c.Param("entityId"))
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	httpresp.OK(c, snap)
}

func (h *EntityHandler) History(c *gin.Context) {
	entries, err := h.coordinator.EntityHistory(c.Request.Context(), c.Param("entityId"))
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	httpresp.List(c, entries)
}

// ======================================================
// RESCHEDULE
// ======================================================

func (h *EntityHandler) Reschedule(c *gin.Context) {
	actorID, actorEmail, _ := middleware.Actor(c)

	var req dto.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "Invalid JSON body.")
		return
	}

	candidates := make([]ucTimeSlot.CandidateSlot, 0, len(req.NewSlots))
	for _, s := range req.NewSlots {
		candidates = append(candidates, ucTimeSlot.CandidateSlot{
			Date:      s.Date,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Notes:     s.Notes,
		})
	}

	res, err := h.coordinator.Reschedule(c.Request.Context(), ucTimeSlot.RescheduleInput{
		EntityID:         c.Param("entityId"),
		EntityOwnerID:    req.EntityOwnerID,
		EntityOwnerEmail: req.EntityOwnerEmail,
		ActorID:          actorID,
		ActorEmail:       actorEmail,
		Candidates:       candidates,
		Reason:           req.Reason,
		AllowPastDates:   req.AllowPastDates,
	})
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	httpresp.OK(c, res)
}

func (h *EntityHandler) ApproveReschedule(c *gin.Context) {
	h.resolve(c, ucTimeSlot.ResolveApprove)
}

func (h *EntityHandler) RejectReschedule(c *gin.Context) {
	h.resolve(c, ucTimeSlot.ResolveReject)
}

func (h *EntityHandler) resolve(c *gin.Context, decision ucTimeSlot.ResolveDecision) {
	actorID, actorEmail, _ := middleware.Actor(c)

	var req dto.DecisionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	snap, err := h.coordinator.Resolve(c.Request.Context(), ucTimeSlot.ResolveInput{
		EntityID:   c.Param("entityId"),
		ActorID:    actorID,
		ActorEmail: actorEmail,
		Decision:   decision,
		Reason:     req.Reason,
	})
	if err != nil {
		httperr.FromError(c, err)
		return
	}

	httpresp.OK(c, snap)
}
