package timeslot

import "github.com/BruksfildServices01/slot-scheduler/internal/models"

// ===============================
// Transition guards
// ===============================

// ApprovableStates are the states a validator can approve or reject from.
var ApprovableStates = []models.SlotState{
	models.SlotStateCreated,
	models.SlotStateModified,
}

// RestorableStates are the states an explicit restore can start from.
var RestorableStates = []models.SlotState{
	models.SlotStateDeleted,
	models.SlotStateRejected,
}

func in(s models.SlotState, set []models.SlotState) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// CanApprove also guards rejection; both resolve a pending slot.
func CanApprove(current models.SlotState) bool {
	return in(current, ApprovableStates)
}

func CanRestore(current models.SlotState) bool {
	return in(current, RestorableStates)
}

func CanEdit(current models.SlotState) bool {
	return current.IsActive()
}

func InitialState() models.SlotState {
	return models.SlotStateCreated
}
