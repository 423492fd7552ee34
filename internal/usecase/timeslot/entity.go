package timeslot

import (
	"context"
	"errors"
	"strings"

	domain "github.com/BruksfildServices01/slot-scheduler/internal/domain/timeslot"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
	"github.com/BruksfildServices01/slot-scheduler/internal/validators"
)

type RegisterInput struct {
	EntityID   string
	OwnerID    string
	OwnerEmail string
	Status     string
}

// Register creates an entity or updates its owner data. The current
// schedule view is left untouched.
func (c *RescheduleCoordinator) Register(ctx context.Context, in RegisterInput) (*EntitySnapshot, error) {
	var errs domain.ValidationErrors
	if strings.TrimSpace(in.EntityID) == "" {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "entityId", Message: "entityId is required", Index: -1})
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		errs = append(errs, domain.FieldError{Code: domain.CodeMissingField, Field: "ownerId", Message: "ownerId is required", Index: -1})
	}
	if in.OwnerEmail != "" && !validators.LooksLikeEmail(in.OwnerEmail) {
		errs = append(errs, domain.FieldError{Code: domain.CodeInvalidField, Field: "ownerEmail", Message: "ownerEmail is not a valid address", Index: -1})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var snap EntitySnapshot
	err := c.repo.Atomic(ctx, in.EntityID, func(ctx context.Context, tx domain.Store) error {
		status := in.Status
		if status == "" {
			existing, err := tx.GetEntity(ctx, in.EntityID)
			switch {
			case err == nil:
				status = existing.Status
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}

		if err := tx.SaveEntity(ctx, &models.Entity{
			ID:         in.EntityID,
			OwnerID:    strings.TrimSpace(in.OwnerID),
			OwnerEmail: validators.NormalizeEmail(in.OwnerEmail),
			Status:     status,
		}); err != nil {
			return err
		}

		var err error
		snap, err = snapshotOf(ctx, tx, in.EntityID)
		return err
	})
	if err != nil {
		return nil, domain.RepositoryFailure("register entity", err)
	}

	c.opts.Logger.Info("entity registered", "entity_id", in.EntityID, "owner_id", in.OwnerID)
	return &snap, nil
}

func (c *RescheduleCoordinator) EntityHistory(ctx context.Context, entityID string) ([]models.EntityHistory, error) {
	if _, err := c.repo.GetEntity(ctx, entityID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("entity %s not found", entityID)
		}
		return nil, domain.RepositoryFailure("load entity", err)
	}

	entries, err := c.repo.FindEntityHistory(ctx, entityID)
	if err != nil {
		return nil, domain.RepositoryFailure("load entity history", err)
	}
	return entries, nil
}
