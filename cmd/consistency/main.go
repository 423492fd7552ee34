package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BruksfildServices01/slot-scheduler/internal/audit"
	"github.com/BruksfildServices01/slot-scheduler/internal/config"
	dbpkg "github.com/BruksfildServices01/slot-scheduler/internal/db"
	"github.com/BruksfildServices01/slot-scheduler/internal/infra/lock"
	infraRepo "github.com/BruksfildServices01/slot-scheduler/internal/infra/repository"
	"github.com/BruksfildServices01/slot-scheduler/internal/timezone"
	ucTimeSlot "github.com/BruksfildServices01/slot-scheduler/internal/usecase/timeslot"
)

func main() {
	repair := flag.Bool("repair", false, "Rewrite day keys that disagree with the stored instants")
	workers := flag.Int("workers", 0, "Entities checked in parallel (default CONSISTENCY_WORKERS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	db, err := dbpkg.NewDB(cfg, logger)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	if *workers <= 0 {
		*workers = cfg.ConsistencyWorkers
	}

	// repairs run under the same entity lock as the API
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to set up redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client, cfg.LockTTL, logger)
	}

	dispatcher := audit.NewDispatcher(audit.New(db), cfg.AuditQueueSize, logger)

	checker := ucTimeSlot.NewConsistencyChecker(
		infraRepo.NewTimeSlotGormRepository(db, locker),
		dispatcher,
		*workers,
		ucTimeSlot.Options{
			Normalizer:     timezone.NewNormalizer(cfg.Timezone),
			MaxActiveSlots: cfg.MaxActiveSlots,
			Logger:         logger,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := checker.Run(ctx, *repair)
	dispatcher.Close()
	if err != nil {
		logger.Error("consistency run failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("failed to write report", "error", err)
		os.Exit(1)
	}

	logger.Info("consistency run finished",
		"entities", report.Entities,
		"checked", report.Checked,
		"mismatches", len(report.Mismatches),
		"repaired", report.Repaired,
	)
}
