package timeslot

import "github.com/BruksfildServices01/slot-scheduler/internal/validators"

// IsOwner matches the acting party against the entity owner by identifier
// first and falls back to the e-mail address. Blank values never match.
func IsOwner(actorID, actorEmail, entityOwnerID, entityOwnerEmail string) bool {
	if actorID != "" && actorID == entityOwnerID {
		return true
	}

	a := validators.NormalizeEmail(actorEmail)
	o := validators.NormalizeEmail(entityOwnerEmail)
	return a != "" && a == o
}
