package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/BruksfildServices01/slot-scheduler/internal/audit"
	"github.com/BruksfildServices01/slot-scheduler/internal/config"
	"github.com/BruksfildServices01/slot-scheduler/internal/handlers"
	"github.com/BruksfildServices01/slot-scheduler/internal/infra/lock"
	infraRepo "github.com/BruksfildServices01/slot-scheduler/internal/infra/repository"
	"github.com/BruksfildServices01/slot-scheduler/internal/middleware"
	"github.com/BruksfildServices01/slot-scheduler/internal/timezone"
	ucTimeSlot "github.com/BruksfildServices01/slot-scheduler/internal/usecase/timeslot"
)

// Deps are the process-wide singletons built in main.
type Deps struct {
	Locker lock.Locker
	Audit  audit.Sink
	Logger *slog.Logger
}

func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, deps Deps) {

	// ======================================================
	// 🔧 INFRA (SINGLETONS)
	// ======================================================
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}

	slotRepo := infraRepo.NewTimeSlotGormRepository(db, deps.Locker)
	normalizer := timezone.NewNormalizer(cfg.Timezone)

	opts := ucTimeSlot.Options{
		Normalizer:     normalizer,
		MaxActiveSlots: cfg.MaxActiveSlots,
		Logger:         deps.Logger,
	}

	// ======================================================
	// 🧠 USE CASES: TIME SLOTS
	// ======================================================
	recorder := ucTimeSlot.NewHistoryRecorder(nil)

	proposalEngine := ucTimeSlot.NewProposalEngine(slotRepo, recorder, deps.Audit, opts)
	validationEngine := ucTimeSlot.NewValidationEngine(slotRepo, recorder, deps.Audit, opts)
	coordinator := ucTimeSlot.NewRescheduleCoordinator(slotRepo, recorder, deps.Audit, opts)

	// ======================================================
	// 🧩 HANDLERS
	// ======================================================
	meHandler := handlers.NewMeHandler()
	auditLogsHandler := handlers.NewAuditLogsHandler(db)

	timeSlotHandler := handlers.NewTimeSlotHandler(
		proposalEngine,
		validationEngine,
		slotRepo,
		normalizer,
	)
	entityHandler := handlers.NewEntityHandler(coordinator)

	// ======================================================
	// 🌐 API (JSON)
	// ======================================================
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))
	{
		api.GET("/me", meHandler.GetMe)
		api.GET("/audit-logs", auditLogsHandler.List)

		// ------------------------------
		// ENTITIES
		// ------------------------------
		api.PUT("/entities/:entityId", entityHandler.Upsert)
		api.GET("/entities/:entityId", entityHandler.Get)
		api.GET("/entities/:entityId/history", entityHandler.History)
		api.POST("/entities/:entityId/reschedule", entityHandler.Reschedule)
		api.POST("/entities/:entityId/reschedule/approve", entityHandler.ApproveReschedule)
		api.POST("/entities/:entityId/reschedule/reject", entityHandler.RejectReschedule)

		// ------------------------------
		// SLOTS
		// ------------------------------
		api.GET("/entities/:entityId/slots", timeSlotHandler.ListByEntity)
		api.POST("/entities/:entityId/proposals", timeSlotHandler.Propose)

		api.GET("/slots/:id/history", timeSlotHandler.History)
		api.POST("/slots/:id/approve", timeSlotHandler.Approve)
		api.POST("/slots/:id/reject", timeSlotHandler.Reject)
		api.POST("/slots/:id/restore", timeSlotHandler.Restore)

		api.POST("/slots/approve-batch", timeSlotHandler.ApproveBatch)
		api.POST("/slots/reject-batch", timeSlotHandler.RejectBatch)
	}
}
