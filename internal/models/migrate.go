package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the scheduler owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Entity{},
		&EntityHistory{},
		&TimeSlot{},
		&SlotHistory{},
		&AuditLog{},
	)
}
